package sync

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// receiver is the inbound side of a stream service, as seen by the messenger.
type receiver interface {
	ReceiveChat(raw string)
	ReceivePrivateChat(raw string)
	ReceiveBroadcast(raw string)
}

// Messenger owns the long-lived pub/sub subscription and the publish path. Its
// listener runs on a dedicated goroutine for the lifetime of the process; the
// underlying client resubscribes transparently after a connection drop, so a
// failed publish is logged and dropped rather than treated as fatal.
type Messenger struct {
	client *redis.Client
	keys   channelNames
	stream receiver
	log    zerolog.Logger

	pubsub *redis.PubSub
	done   chan struct{}
}

type channelNames struct {
	chat        string
	privateChat string
	broadcast   string
}

func newMessenger(client *redis.Client, chat, privateChat, broadcast string, stream receiver, log zerolog.Logger) *Messenger {
	return &Messenger{
		client: client,
		keys:   channelNames{chat: chat, privateChat: privateChat, broadcast: broadcast},
		stream: stream,
		log:    log.With().Str("component", "messenger").Logger(),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the three logical channels and launches the listener
// goroutine. The subscription is established (and re-established) in the
// background, so a currently unreachable backend delays delivery rather than
// failing startup.
func (m *Messenger) Start(ctx context.Context) error {
	m.pubsub = m.client.Subscribe(ctx, m.keys.chat, m.keys.privateChat, m.keys.broadcast)
	go m.listen()
	return nil
}

func (m *Messenger) listen() {
	defer close(m.done)
	for msg := range m.pubsub.ChannelWithSubscriptions() {
		switch v := msg.(type) {
		case *redis.Subscription:
			m.log.Info().
				Str("kind", v.Kind).
				Str("channel", v.Channel).
				Int("count", v.Count).
				Msg("subscription state changed")
		case *redis.Message:
			m.dispatch(v.Channel, v.Payload)
		}
	}
	m.log.Info().Msg("listener stopped")
}

func (m *Messenger) dispatch(channel, payload string) {
	switch channel {
	case m.keys.chat:
		m.stream.ReceiveChat(payload)
	case m.keys.privateChat:
		m.stream.ReceivePrivateChat(payload)
	case m.keys.broadcast:
		m.stream.ReceiveBroadcast(payload)
	default:
		m.log.Debug().Str("channel", channel).Msg("message on unexpected channel")
	}
}

// Publish sends a payload to the named logical channel.
func (m *Messenger) Publish(ctx context.Context, channel, payload string) error {
	if err := m.client.Publish(ctx, channel, payload).Err(); err != nil {
		m.log.Warn().Err(err).Str("channel", channel).Msg("publish failed")
		return err
	}
	return nil
}

// Shutdown unsubscribes and stops the listener. Safe to call if Start never
// ran.
func (m *Messenger) Shutdown() {
	if m.pubsub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.pubsub.Unsubscribe(ctx, m.keys.chat, m.keys.privateChat, m.keys.broadcast); err != nil {
		m.log.Warn().Err(err).Msg("unsubscribe failed")
	}
	if err := m.pubsub.Close(); err != nil {
		m.log.Warn().Err(err).Msg("closing pubsub failed")
	}
	<-m.done
}
