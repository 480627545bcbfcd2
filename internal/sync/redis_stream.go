package sync

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/spaceseries/spacechat/internal/config"
	"github.com/spaceseries/spacechat/internal/sync/packet"
)

// ErrNotStarted reports a publish attempted before Start established the
// messenger.
var ErrNotStarted = errors.New("stream service not started")

// RedisStreamService relays chat events through Redis pub/sub. Serialization
// lives here; connection management lives in the Messenger.
type RedisStreamService struct {
	inbound
	client *redis.Client
	keys   config.RedisConfig

	messenger *Messenger
}

// NewRedisStreamService constructs the network relay.
func NewRedisStreamService(client *redis.Client, keys config.RedisConfig, identity string, handler Handler, log zerolog.Logger) *RedisStreamService {
	return &RedisStreamService{
		inbound: inbound{
			identity: identity,
			handler:  handler,
			log:      log.With().Str("component", "redis-stream").Logger(),
		},
		client: client,
		keys:   keys,
	}
}

// PublishChat serializes and publishes a chat packet.
func (s *RedisStreamService) PublishChat(ctx context.Context, p *packet.Chat) error {
	if s.messenger == nil {
		return ErrNotStarted
	}
	wire, err := packet.MarshalChat(p)
	if err != nil {
		return err
	}
	return s.messenger.Publish(ctx, s.keys.ChatChannel, wire)
}

// PublishPrivateChat serializes and publishes a private chat packet.
func (s *RedisStreamService) PublishPrivateChat(ctx context.Context, p *packet.PrivateChat) error {
	if s.messenger == nil {
		return ErrNotStarted
	}
	wire, err := packet.MarshalPrivateChat(p)
	if err != nil {
		return err
	}
	return s.messenger.Publish(ctx, s.keys.PrivateChatChannel, wire)
}

// PublishBroadcast serializes and publishes a broadcast packet.
func (s *RedisStreamService) PublishBroadcast(ctx context.Context, p *packet.Broadcast) error {
	if s.messenger == nil {
		return ErrNotStarted
	}
	wire, err := packet.MarshalBroadcast(p)
	if err != nil {
		return err
	}
	return s.messenger.Publish(ctx, s.keys.BroadcastChannel, wire)
}

// ReceiveChat deserializes and routes an inbound chat payload.
func (s *RedisStreamService) ReceiveChat(raw string) { s.receiveChat(raw) }

// ReceivePrivateChat deserializes and routes an inbound private chat payload.
func (s *RedisStreamService) ReceivePrivateChat(raw string) { s.receivePrivateChat(raw) }

// ReceiveBroadcast deserializes and routes an inbound broadcast payload.
func (s *RedisStreamService) ReceiveBroadcast(raw string) { s.receiveBroadcast(raw) }

// Start wires up the messenger and its listener goroutine.
func (s *RedisStreamService) Start(ctx context.Context) error {
	s.messenger = newMessenger(s.client, s.keys.ChatChannel, s.keys.PrivateChatChannel, s.keys.BroadcastChannel, s, s.log)
	return s.messenger.Start(ctx)
}

// End shuts the messenger down. Safe after a partial Start.
func (s *RedisStreamService) End() error {
	if s.messenger != nil {
		s.messenger.Shutdown()
	}
	return nil
}
