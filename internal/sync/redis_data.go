package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/spaceseries/spacechat/internal/config"
	"github.com/spaceseries/spacechat/internal/player"
)

// sweepConcurrency caps parallel presence removals during a stale sweep.
const sweepConcurrency = 8

// RedisDataService backs the data contract with a Redis instance shared by the
// whole network. Keys follow the configured templates; no locking is used, so
// concurrent mutation of the same player's state from two servers is an
// accepted, low-probability inconsistency window.
type RedisDataService struct {
	client     *redis.Client
	keys       config.RedisConfig
	identifier string
	roster     *player.Roster
	log        zerolog.Logger
}

// NewRedisDataService constructs the network data backend.
func NewRedisDataService(client *redis.Client, keys config.RedisConfig, identifier string, roster *player.Roster, log zerolog.Logger) *RedisDataService {
	return &RedisDataService{
		client:     client,
		keys:       keys,
		identifier: identifier,
		roster:     roster,
		log:        log.With().Str("component", "redis-data").Logger(),
	}
}

// Subscribe pushes the channel onto the player's subscription list and the
// player onto the channel's subscriber list. Removing before pushing keeps
// both lists duplicate-free, so subscribing twice is a no-op.
func (s *RedisDataService) Subscribe(ctx context.Context, id uuid.UUID, channel string) error {
	playerKey := s.keys.SubscribedChannelsKeyFor(id)
	channelKey := s.keys.ChannelSubscribersKeyFor(channel)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, playerKey, 0, channel)
		pipe.LPush(ctx, playerKey, channel)
		pipe.LRem(ctx, channelKey, 0, id.String())
		pipe.LPush(ctx, channelKey, id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe %s to %q: %w", id, channel, err)
	}
	return nil
}

// Unsubscribe removes the pair from both lists.
func (s *RedisDataService) Unsubscribe(ctx context.Context, id uuid.UUID, channel string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, s.keys.SubscribedChannelsKeyFor(id), 0, channel)
		pipe.LRem(ctx, s.keys.ChannelSubscribersKeyFor(channel), 0, id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("unsubscribe %s from %q: %w", id, channel, err)
	}
	return nil
}

// SetCurrentChannel overwrites the scalar current-channel key, or deletes it
// when clearing back to global chat.
func (s *RedisDataService) SetCurrentChannel(ctx context.Context, id uuid.UUID, channel string) error {
	key := s.keys.CurrentChannelKeyFor(id)
	var err error
	if channel == "" {
		err = s.client.Del(ctx, key).Err()
	} else {
		err = s.client.Set(ctx, key, channel, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("set current channel for %s: %w", id, err)
	}
	return nil
}

// SubscribedChannels reads the player's subscription list.
func (s *RedisDataService) SubscribedChannels(ctx context.Context, id uuid.UUID) ([]string, error) {
	values, err := s.client.LRange(ctx, s.keys.SubscribedChannelsKeyFor(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("subscribed channels for %s: %w", id, err)
	}
	return dedupe(values), nil
}

// CurrentChannel reads the player's current channel. An absent key is global
// chat, not an error.
func (s *RedisDataService) CurrentChannel(ctx context.Context, id uuid.UUID) (string, error) {
	value, err := s.client.Get(ctx, s.keys.CurrentChannelKeyFor(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("current channel for %s: %w", id, err)
	}
	return value, nil
}

// Subscribers reads the channel's raw subscriber list and filters it against
// local presence. Entries for disconnected players and unparsable ids are
// expected staleness and skipped silently.
func (s *RedisDataService) Subscribers(ctx context.Context, channel string) ([]uuid.UUID, error) {
	values, err := s.client.LRange(ctx, s.keys.ChannelSubscribersKeyFor(channel), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("subscribers of %q: %w", channel, err)
	}
	ids := make([]uuid.UUID, 0, len(values))
	seen := make(map[uuid.UUID]struct{}, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup || !s.roster.IsOnline(id) {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// AddPlayer claims the player's presence record for this server and adds them
// to the global online list.
func (s *RedisDataService) AddPlayer(ctx context.Context, username string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keys.PlayerServerKeyFor(username), s.identifier, 0)
		pipe.LRem(ctx, s.keys.OnlinePlayersKey, 0, username)
		pipe.LPush(ctx, s.keys.OnlinePlayersKey, username)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add player %q: %w", username, err)
	}
	return nil
}

// RemovePlayer drops the presence record, but only when it is owned by this
// server or already orphaned. Another server's legitimate record survives,
// which matters when a player hops between gateways.
func (s *RedisDataService) RemovePlayer(ctx context.Context, username string) error {
	key := s.keys.PlayerServerKeyFor(username)
	owner, err := s.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("remove player %q: %w", username, err)
	}
	if err == nil && !strings.EqualFold(owner, s.identifier) {
		return nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.LRem(ctx, s.keys.OnlinePlayersKey, 0, username)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove player %q: %w", username, err)
	}
	return nil
}

// SweepStalePlayers removes presence records for every known player that is
// not actually connected here. Removals are independent round trips, so they
// run in parallel.
func (s *RedisDataService) SweepStalePlayers(ctx context.Context) error {
	names, err := s.Players(ctx)
	if err != nil {
		return fmt.Errorf("sweep stale players: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, name := range names {
		if s.roster.GetByName(name) != nil {
			continue
		}
		name := name
		g.Go(func() error {
			return s.RemovePlayer(ctx, name)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sweep stale players: %w", err)
	}
	return nil
}

// PlayerServer resolves which server hosts the named player. ErrNotFound means
// confirmed offline; any other error means the answer is unknown.
func (s *RedisDataService) PlayerServer(ctx context.Context, username string) (string, error) {
	value, err := s.client.Get(ctx, s.keys.PlayerServerKeyFor(username)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("player server for %q: %w", username, err)
	}
	return value, nil
}

// Players reads the global online-player list.
func (s *RedisDataService) Players(ctx context.Context) ([]string, error) {
	values, err := s.client.LRange(ctx, s.keys.OnlinePlayersKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return dedupe(values), nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
