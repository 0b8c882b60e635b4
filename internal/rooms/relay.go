package rooms

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/schoolmesh/studyrooms/internal/eventbus"
	"github.com/schoolmesh/studyrooms/internal/telemetry"
)

// Relay pipes offer/answer/candidate envelopes between two named connections.
// It never looks inside the payload and never blocks on acknowledgment; the
// per-connection eventbus channel keeps messages between the same pair in
// send order.
type Relay struct {
	members   *Manager
	publisher eventbus.Publisher
}

func NewRelay(members *Manager, publisher eventbus.Publisher) *Relay {
	return &Relay{
		members:   members,
		publisher: publisher,
	}
}

// Forward delivers (kind, source, payload) to the target connection. A
// vanished target is not an error: the sender learns of the departure through
// its own user-disconnected notification and tears down negotiation state
// itself.
func (r *Relay) Forward(kind Method, sourceConnID, targetConnID string, payload json.RawMessage) {
	if !r.members.IsLive(targetConnID) {
		telemetry.SignalDropped()
		log.Debug().
			Str("service", "rooms").
			Str("kind", string(kind)).
			Str("connectionID", targetConnID).
			Msg("relay target is gone, dropping")
		return
	}

	ev := NewSignalEvent(kind, sourceConnID, payload)
	if err := r.publisher.PublishClient(targetConnID, ev); err != nil {
		log.Error().Err(err).Str("service", "rooms").Str("connectionID", targetConnID).Msg("publish signal")
		return
	}

	telemetry.SignalRelayed(string(kind))
}
