package rooms

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/schoolmesh/studyrooms/internal/core"
	"github.com/schoolmesh/studyrooms/internal/eventbus"
	"github.com/schoolmesh/studyrooms/internal/telemetry"
)

const (
	// RejectedDefaultReason is used when the host gives none.
	RejectedDefaultReason = "Rejected"
	// RejectedNoHostReason resolves a request against a hostless room.
	RejectedNoHostReason = "Host not connected"
	// RejectedTimeoutReason resolves a request nobody answered in time.
	RejectedTimeoutReason = "Request timed out"
)

// JoinRequest is one pending admission attempt. At most one may be
// outstanding per (room, requester connection).
type JoinRequest struct {
	Room         core.RoomKey
	ConnectionID string
	UserID       string
	DisplayName  string

	timer *time.Timer
}

// Gate runs the request/approve/reject admission protocol between a
// prospective guest and the current host of a room. The gate only needs to
// exist for the window between "I'd like to join" and "you may/may not":
// nothing here is persisted.
type Gate struct {
	registry  *Registry
	publisher eventbus.Publisher
	notifier  Notifier
	ttl       time.Duration

	mu     sync.Mutex
	byConn map[string]map[core.RoomKey]struct{}
}

// NewGate builds a gate. ttl bounds how long an unanswered request may pend;
// zero disables the bound and requests wait indefinitely.
func NewGate(registry *Registry, publisher eventbus.Publisher, notifier Notifier, ttl time.Duration) *Gate {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Gate{
		registry:  registry,
		publisher: publisher,
		notifier:  notifier,
		ttl:       ttl,
		byConn:    make(map[string]map[core.RoomKey]struct{}),
	}
}

// Request asks the room's host to admit the requester. With no host present
// the request resolves immediately as rejected, reported to the requester
// only. A duplicate request from the same connection is coalesced, not
// queued.
func (g *Gate) Request(key core.RoomKey, requesterConnID, requesterUserID, displayName string) {
	hostConnID, ok := g.registry.CurrentHost(key)
	if !ok {
		g.notifyRejected(key, requesterConnID, requesterUserID, RejectedNoHostReason)
		return
	}

	rm := g.registry.getOrCreate(key)

	rm.mu.Lock()
	if _, dup := rm.pending[requesterConnID]; dup {
		rm.mu.Unlock()
		return
	}
	jr := &JoinRequest{
		Room:         key,
		ConnectionID: requesterConnID,
		UserID:       requesterUserID,
		DisplayName:  displayName,
	}
	if g.ttl > 0 {
		jr.timer = time.AfterFunc(g.ttl, func() { g.expire(key, requesterConnID) })
	}
	rm.pending[requesterConnID] = jr
	rm.mu.Unlock()

	g.index(requesterConnID, key)

	ev := NewHostJoinRequestEvent(key.RoomID(), requesterUserID, displayName, requesterConnID)
	if err := g.publisher.PublishClient(hostConnID, ev); err != nil {
		log.Error().Err(err).Str("service", "rooms").Str("connectionID", hostConnID).Msg("publish join-request")
	}
}

// Approve admits a pending requester. Only the connection currently recorded
// as host may approve: a stale host that lost the binding is ignored.
func (g *Gate) Approve(hostConnID, targetConnID string, key core.RoomKey) {
	jr, ok := g.take(hostConnID, targetConnID, key)
	if !ok {
		return
	}

	telemetry.JoinResolved("approved")
	g.notifier.GuestAdmitted(key.RoomID(), jr.UserID)

	if err := g.publisher.PublishClient(targetConnID, NewJoinApprovedEvent(key.RoomID())); err != nil {
		log.Error().Err(err).Str("service", "rooms").Str("connectionID", targetConnID).Msg("publish join-approved")
	}
}

// Reject turns a pending requester away. Symmetric to Approve.
func (g *Gate) Reject(hostConnID, targetConnID string, key core.RoomKey, reason string) {
	if reason == "" {
		reason = RejectedDefaultReason
	}

	jr, ok := g.take(hostConnID, targetConnID, key)
	if !ok {
		return
	}

	g.notifyRejected(key, targetConnID, jr.UserID, reason)
}

// CancelByConnection drops every request the connection had pending. Called
// on disconnect; a vanished requester needs no answer.
func (g *Gate) CancelByConnection(connectionID string) {
	g.mu.Lock()
	keys := g.byConn[connectionID]
	delete(g.byConn, connectionID)
	g.mu.Unlock()

	for key := range keys {
		rm, found := g.registry.get(key)
		if !found {
			continue
		}
		rm.mu.Lock()
		jr := rm.pending[connectionID]
		delete(rm.pending, connectionID)
		rm.mu.Unlock()

		if jr != nil && jr.timer != nil {
			jr.timer.Stop()
		}
		g.registry.maybeDrop(key)
	}
}

// take removes the pending request after verifying the caller still holds the
// host binding. The check and the removal happen in one critical section on
// the room mutex: a handover cannot interleave between them, so a verdict from
// a connection that just lost the binding never lands.
func (g *Gate) take(hostConnID, targetConnID string, key core.RoomKey) (*JoinRequest, bool) {
	rm, found := g.registry.get(key)
	if !found {
		return nil, false
	}

	rm.mu.Lock()
	if rm.hostConnID == "" || rm.hostConnID != hostConnID {
		rm.mu.Unlock()
		log.Warn().
			Str("service", "rooms").
			Str("roomID", key.RoomID()).
			Str("connectionID", hostConnID).
			Msg("admission verdict from a connection that is not the host")
		return nil, false
	}
	jr, exists := rm.pending[targetConnID]
	if exists {
		delete(rm.pending, targetConnID)
	}
	rm.mu.Unlock()

	if !exists {
		return nil, false
	}
	if jr.timer != nil {
		jr.timer.Stop()
	}
	g.unindex(targetConnID, key)

	return jr, true
}

// expire fires when a request outlived the configured bound. The pending
// table is re-checked: the request may have been resolved while the timer was
// in flight.
func (g *Gate) expire(key core.RoomKey, requesterConnID string) {
	rm, found := g.registry.get(key)
	if !found {
		return
	}

	rm.mu.Lock()
	jr, exists := rm.pending[requesterConnID]
	if exists {
		delete(rm.pending, requesterConnID)
	}
	rm.mu.Unlock()

	if !exists {
		return
	}
	g.unindex(requesterConnID, key)

	g.notifyRejected(key, requesterConnID, jr.UserID, RejectedTimeoutReason)
	g.registry.maybeDrop(key)
}

func (g *Gate) notifyRejected(key core.RoomKey, connectionID, userID, reason string) {
	telemetry.JoinResolved("rejected")
	g.notifier.GuestRejected(key.RoomID(), userID, reason)

	if err := g.publisher.PublishClient(connectionID, NewJoinRejectedEvent(key.RoomID(), reason)); err != nil {
		log.Error().Err(err).Str("service", "rooms").Str("connectionID", connectionID).Msg("publish join-rejected")
	}
}

func (g *Gate) index(connectionID string, key core.RoomKey) {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := g.byConn[connectionID]
	if keys == nil {
		keys = make(map[core.RoomKey]struct{})
		g.byConn[connectionID] = keys
	}
	keys[key] = struct{}{}
}

func (g *Gate) unindex(connectionID string, key core.RoomKey) {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := g.byConn[connectionID]
	if keys == nil {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(g.byConn, connectionID)
	}
}
