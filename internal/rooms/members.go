package rooms

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/schoolmesh/studyrooms/internal/core"
	"github.com/schoolmesh/studyrooms/internal/eventbus"
	"github.com/schoolmesh/studyrooms/internal/telemetry"
)

// Connection is one live websocket endpoint. UserID is the identity bound at
// upgrade time by the auth layer; Room is set once the connection joins one.
type Connection struct {
	ID     string
	UserID string
	Room   *core.RoomKey
}

// Manager owns the table of live connections and each room's membership set.
type Manager struct {
	registry  *Registry
	publisher eventbus.Publisher

	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewManager(registry *Registry, publisher eventbus.Publisher) *Manager {
	return &Manager{
		registry:  registry,
		publisher: publisher,
		conns:     make(map[string]*Connection),
	}
}

func (m *Manager) Add(connectionID, userID string) {
	m.mu.Lock()
	m.conns[connectionID] = &Connection{ID: connectionID, UserID: userID}
	m.mu.Unlock()

	telemetry.ConnectionOpened()
}

func (m *Manager) IsLive(connectionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.conns[connectionID]
	return ok
}

func (m *Manager) UserID(connectionID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[connectionID]
	if !ok {
		return "", false
	}
	return conn.UserID, true
}

// Join binds the connection into the room's membership set and announces it
// to the members already there, so each of them can start negotiating toward
// the newcomer. Membership is exclusive: a connection bound to another room is
// torn out of it first, exactly as a disconnect would. Reports the room left
// behind, if any, and whether the connection was its host.
func (m *Manager) Join(key core.RoomKey, connectionID string) (left core.RoomKey, leftHost bool) {
	m.mu.Lock()
	conn, ok := m.conns[connectionID]
	if !ok {
		m.mu.Unlock()
		return core.RoomKey{}, false
	}
	var previous *core.RoomKey
	if conn.Room != nil && *conn.Room != key {
		previous = conn.Room
	}
	k := key
	conn.Room = &k
	userID := conn.UserID
	m.mu.Unlock()

	if previous != nil {
		left = *previous
		leftHost = m.leave(left, connectionID)
	}

	rm := m.registry.getOrCreate(key)

	rm.mu.Lock()
	if _, already := rm.members[connectionID]; already {
		rm.mu.Unlock()
		return left, leftHost
	}
	others := make([]string, 0, len(rm.members))
	for id := range rm.members {
		others = append(others, id)
	}
	rm.members[connectionID] = userID
	rm.mu.Unlock()

	ev := NewUserConnectedEvent(key.RoomID(), userID, connectionID)
	for _, id := range others {
		if err := m.publisher.PublishClient(id, ev); err != nil {
			log.Error().Err(err).Str("service", "rooms").Str("connectionID", id).Msg("publish user-connected")
		}
	}

	return left, leftHost
}

// Disconnect tears down everything the connection held: its membership, its
// host binding if it still owns one, and the peers' view of it. A disconnect
// for a connection that never joined a room is a silent no-op; disconnects
// race incomplete joins all the time. Reports whether the connection was the
// host of the room it leaves.
func (m *Manager) Disconnect(connectionID string) (core.RoomKey, bool) {
	m.mu.Lock()
	conn, ok := m.conns[connectionID]
	if ok {
		delete(m.conns, connectionID)
	}
	m.mu.Unlock()

	if !ok {
		return core.RoomKey{}, false
	}
	telemetry.ConnectionClosed()

	if conn.Room == nil {
		return core.RoomKey{}, false
	}
	key := *conn.Room

	return key, m.leave(key, connectionID)
}

// leave removes the connection from the room: its membership, its host
// binding if it still owns one, and the peers' view of it. Reports whether
// the connection was the host.
func (m *Manager) leave(key core.RoomKey, connectionID string) bool {
	rm, found := m.registry.get(key)
	if !found {
		return false
	}

	rm.mu.Lock()
	delete(rm.members, connectionID)
	wasHost := rm.hostConnID == connectionID
	if wasHost {
		rm.hostConnID = ""
	}
	remaining := make([]string, 0, len(rm.members))
	for id := range rm.members {
		remaining = append(remaining, id)
	}
	rm.mu.Unlock()

	ev := NewUserDisconnectedEvent(key.RoomID(), connectionID)
	for _, id := range remaining {
		if err := m.publisher.PublishClient(id, ev); err != nil {
			log.Error().Err(err).Str("service", "rooms").Str("connectionID", id).Msg("publish user-disconnected")
		}
	}

	if wasHost {
		log.Info().Str("service", "rooms").Str("roomID", key.RoomID()).Msg("host left the room")
	}

	m.registry.maybeDrop(key)

	return wasHost
}
