package sync

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/spaceseries/spacechat/internal/sync/packet"
)

// MemoryStreamService is the relay for single-server deployments. There are no
// other servers to relay to, so publishes are no-ops; local delivery has
// already happened at the call site before the event reaches the relay. The
// receive half still performs full deserialization and self-echo suppression
// so that behavior is identical to the network backend.
type MemoryStreamService struct {
	inbound
}

// NewMemoryStreamService constructs the in-process relay.
func NewMemoryStreamService(identity string, handler Handler, log zerolog.Logger) *MemoryStreamService {
	return &MemoryStreamService{inbound: inbound{
		identity: identity,
		handler:  handler,
		log:      log,
	}}
}

// PublishChat is a no-op; there is no remote side.
func (s *MemoryStreamService) PublishChat(context.Context, *packet.Chat) error { return nil }

// PublishPrivateChat is a no-op; there is no remote side.
func (s *MemoryStreamService) PublishPrivateChat(context.Context, *packet.PrivateChat) error {
	return nil
}

// PublishBroadcast is a no-op; there is no remote side.
func (s *MemoryStreamService) PublishBroadcast(context.Context, *packet.Broadcast) error { return nil }

// ReceiveChat deserializes and routes an inbound chat payload.
func (s *MemoryStreamService) ReceiveChat(raw string) { s.receiveChat(raw) }

// ReceivePrivateChat deserializes and routes an inbound private chat payload.
func (s *MemoryStreamService) ReceivePrivateChat(raw string) { s.receivePrivateChat(raw) }

// ReceiveBroadcast deserializes and routes an inbound broadcast payload.
func (s *MemoryStreamService) ReceiveBroadcast(raw string) { s.receiveBroadcast(raw) }

// Start is a no-op.
func (s *MemoryStreamService) Start(context.Context) error { return nil }

// End is a no-op.
func (s *MemoryStreamService) End() error { return nil }
