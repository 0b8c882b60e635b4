package notify

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const ActivitySubject = "studyrooms.activity"

type activityKind string

const (
	roomOpened    activityKind = "room_opened"
	roomClosed    activityKind = "room_closed"
	guestAdmitted activityKind = "guest_admitted"
	guestRejected activityKind = "guest_rejected"
)

type activityMessage struct {
	Kind   activityKind `json:"kind"`
	RoomID string       `json:"room_id"`
	UserID string       `json:"user_id,omitempty"`
	Reason string       `json:"reason,omitempty"`
	At     time.Time    `json:"at"`
}

// Notifier publishes room activity to NATS for the rest of the school
// platform (activity feeds, audit). Fire and forget: a publish failure is
// logged and the coordination path moves on.
type Notifier struct {
	nc *nats.Conn
}

func New(natsAddr string) (*Notifier, error) {
	nc, err := nats.Connect(natsAddr, nats.NoEcho())
	if err != nil {
		return nil, err
	}

	return &Notifier{nc: nc}, nil
}

func (n *Notifier) Close() error {
	return n.nc.Drain()
}

func (n *Notifier) RoomOpened(roomID, hostUserID string) {
	n.publish(activityMessage{Kind: roomOpened, RoomID: roomID, UserID: hostUserID})
}

func (n *Notifier) RoomClosed(roomID string) {
	n.publish(activityMessage{Kind: roomClosed, RoomID: roomID})
}

func (n *Notifier) GuestAdmitted(roomID, userID string) {
	n.publish(activityMessage{Kind: guestAdmitted, RoomID: roomID, UserID: userID})
}

func (n *Notifier) GuestRejected(roomID, userID, reason string) {
	n.publish(activityMessage{Kind: guestRejected, RoomID: roomID, UserID: userID, Reason: reason})
}

func (n *Notifier) publish(msg activityMessage) {
	msg.At = time.Now().UTC()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("service", "notify").Msg("marshal activity")
		return
	}

	if err := n.nc.Publish(ActivitySubject, data); err != nil {
		log.Error().Err(err).Str("service", "notify").Str("kind", string(msg.Kind)).Msg("publish activity")
	}
}
