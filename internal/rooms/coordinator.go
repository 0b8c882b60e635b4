package rooms

import (
	"bytes"
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/schoolmesh/studyrooms/internal/core"
	"github.com/schoolmesh/studyrooms/internal/eventbus"
	"github.com/schoolmesh/studyrooms/internal/telemetry"
)

// Coordinator is the single owner of all room state in the process. Inbound
// connection events are routed to the registry, the gate, the relay and the
// membership manager; nothing else in the server touches those directly.
type Coordinator struct {
	registry *Registry
	gate     *Gate
	relay    *Relay
	members  *Manager
	notifier Notifier
}

type Options struct {
	Finder    core.CreatorFinder
	Publisher eventbus.Publisher
	Notifier  Notifier

	// LookupTimeout bounds the one-time group-study store lookup per room.
	LookupTimeout time.Duration
	// JoinRequestTTL bounds how long an unanswered join request pends.
	// Zero leaves requests pending until answered or the requester leaves.
	JoinRequestTTL time.Duration
}

func NewCoordinator(opts Options) *Coordinator {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}

	registry := NewRegistry(opts.Finder, opts.LookupTimeout)
	members := NewManager(registry, opts.Publisher)

	return &Coordinator{
		registry: registry,
		gate:     NewGate(registry, opts.Publisher, notifier, opts.JoinRequestTTL),
		relay:    NewRelay(members, opts.Publisher),
		members:  members,
		notifier: notifier,
	}
}

// Connect records a fresh, unbound connection.
func (c *Coordinator) Connect(connectionID, userID string) {
	c.members.Add(connectionID, userID)

	log.Debug().
		Str("service", "rooms").
		Str("connectionID", connectionID).
		Str("userID", userID).
		Msg("connection opened")
}

// Disconnect cancels whatever the connection was involved in: pending join
// requests, room membership, host status.
func (c *Coordinator) Disconnect(connectionID string) {
	c.gate.CancelByConnection(connectionID)

	key, wasHost := c.members.Disconnect(connectionID)
	if wasHost {
		telemetry.RoomClosed()
		c.notifier.RoomClosed(key.RoomID())
	}

	log.Debug().
		Str("service", "rooms").
		Str("connectionID", connectionID).
		Msg("connection closed")
}

// Dispatch handles one raw inbound event from a connection. Malformed or
// unauthorized events are logged and dropped; nothing that happens here may
// take the process down or touch another room's state.
func (c *Coordinator) Dispatch(connectionID string, raw []byte) {
	ev, err := EventFromReader(bytes.NewReader(raw))
	if err != nil {
		log.Error().Err(err).Str("service", "rooms").Str("connectionID", connectionID).Msg("drop inbound event")
		return
	}

	// Identity comes from the connection bound at upgrade time, never from
	// event params.
	userID, ok := c.members.UserID(connectionID)
	if !ok {
		log.Warn().Str("service", "rooms").Str("connectionID", connectionID).Msg("event from unknown connection")
		return
	}

	switch e := ev.(type) {
	case *JoinRoomEvent:
		key, err := core.ParseRoomID(e.Params.RoomID)
		if err != nil {
			log.Error().Err(err).Str("service", "rooms").Str("connectionID", connectionID).Msg("join-room")
			return
		}
		c.joinRoom(key, connectionID, userID)
	case *JoinRequestEvent:
		key, err := core.ParseRoomID(e.Params.RoomID)
		if err != nil {
			log.Error().Err(err).Str("service", "rooms").Str("connectionID", connectionID).Msg("join-request")
			return
		}
		c.gate.Request(key, connectionID, userID, e.Params.DisplayName)
	case *AdmissionEvent:
		key, err := core.ParseRoomID(e.Params.RoomID)
		if err != nil {
			log.Error().Err(err).Str("service", "rooms").Str("connectionID", connectionID).Msg("admission verdict")
			return
		}
		if e.GetMethod() == ApproveRequestMethod {
			c.gate.Approve(connectionID, e.Params.TargetConnectionID, key)
		} else {
			c.gate.Reject(connectionID, e.Params.TargetConnectionID, key, e.Params.Reason)
		}
	case *SignalEvent:
		c.relay.Forward(e.GetMethod(), connectionID, e.Params.TargetConnectionID, e.Params.Payload)
	}
}

// joinRoom attempts host registration for the room's authorized creator and
// binds the connection into the membership set either way. An unauthorized
// host claim is not an error: the connection simply joins as an ordinary
// member.
func (c *Coordinator) joinRoom(key core.RoomKey, connectionID, userID string) {
	creatorID, err := c.registry.ResolveAuthorizedCreator(context.Background(), key)
	if err == nil && creatorID != "" && creatorID == userID {
		_, hadHost := c.registry.CurrentHost(key)
		if c.registry.RegisterHostIfAuthorized(key, connectionID, userID) && !hadHost {
			telemetry.RoomHosted()
			c.notifier.RoomOpened(key.RoomID(), userID)

			log.Info().
				Str("service", "rooms").
				Str("roomID", key.RoomID()).
				Str("connectionID", connectionID).
				Msg("host registered")
		}
	}

	leftKey, leftHost := c.members.Join(key, connectionID)
	if leftHost {
		telemetry.RoomClosed()
		c.notifier.RoomClosed(leftKey.RoomID())
	}
}

// Rooms reports the live rooms for the read-only listing endpoint.
func (c *Coordinator) Rooms() []RoomInfo {
	return c.registry.Snapshot()
}
