package sync

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/spaceseries/spacechat/internal/sync/packet"
)

// inbound is the receive half shared by both stream backends: deserialize,
// suppress self-echo, route to the handler. A malformed payload is logged and
// dropped so one bad packet can never kill the listener.
type inbound struct {
	identity string
	handler  Handler
	log      zerolog.Logger
}

func (i inbound) receiveChat(raw string) {
	p, err := packet.UnmarshalChat(raw)
	if err != nil {
		i.log.Warn().Err(err).Msg("dropping malformed chat packet")
		return
	}
	if i.selfOriginated(p.ServerIdentifier) {
		return
	}
	i.handler.HandleRemoteChat(p)
}

func (i inbound) receivePrivateChat(raw string) {
	p, err := packet.UnmarshalPrivateChat(raw)
	if err != nil {
		i.log.Warn().Err(err).Msg("dropping malformed private chat packet")
		return
	}
	if i.selfOriginated(p.ServerIdentifier) {
		return
	}
	i.handler.HandleRemotePrivateChat(p)
}

func (i inbound) receiveBroadcast(raw string) {
	p, err := packet.UnmarshalBroadcast(raw)
	if err != nil {
		i.log.Warn().Err(err).Msg("dropping malformed broadcast packet")
		return
	}
	if i.selfOriginated(p.ServerIdentifier) {
		return
	}
	i.handler.HandleRemoteBroadcast(p)
}

func (i inbound) selfOriginated(serverIdentifier string) bool {
	return strings.EqualFold(serverIdentifier, i.identity)
}
