package rooms

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schoolmesh/studyrooms/internal/core"
)

const (
	connC1 = "conn-c1"
	connC2 = "conn-c2"
	connC3 = "conn-c3"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *MockPublisher, *MockNotifier) {
	t.Helper()

	publisher := NewMockPublisher()
	notifier := &MockNotifier{}

	coordinator := NewCoordinator(Options{
		Finder:    NewMockFinder(map[string]string{"42": "creator-1"}),
		Publisher: publisher,
		Notifier:  notifier,
	})

	return coordinator, publisher, notifier
}

func mustJSON(t *testing.T, ev Event) []byte {
	t.Helper()

	raw, err := ev.ToJSON()
	assert.Nil(t, err)
	return raw
}

func joinRoom(t *testing.T, c *Coordinator, connID, roomID string) {
	t.Helper()

	c.Dispatch(connID, mustJSON(t, &JoinRoomEvent{head(JoinRoomMethod), &JoinRoomParams{RoomID: roomID}}))
}

// Scenario: the group's creator connects and joins its room.
func TestCreatorBecomesHost(t *testing.T) {
	coordinator, _, notifier := newTestCoordinator(t)

	coordinator.Connect(connC1, "creator-1")
	joinRoom(t, coordinator, connC1, testKey.RoomID())

	host, ok := coordinator.registry.CurrentHost(testKey)
	assert.True(t, ok)
	assert.Equal(t, connC1, host)

	assert.Equal(t, []string{testKey.RoomID()}, notifier.Opened)
}

func TestNonCreatorJoinsAsOrdinaryMember(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t)

	coordinator.Connect(connC2, "u2")
	joinRoom(t, coordinator, connC2, testKey.RoomID())

	_, ok := coordinator.registry.CurrentHost(testKey)
	assert.False(t, ok)

	infos := coordinator.Rooms()
	assert.Len(t, infos, 1)
	assert.Equal(t, 1, infos[0].Members)
	assert.False(t, infos[0].HostConnected)
}

// A userId asserted in the event payload must not override the identity bound
// to the connection at upgrade time.
func TestWireUserIDIsIgnored(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t)

	coordinator.Connect(connC2, "u2")
	coordinator.Dispatch(connC2, mustJSON(t, &JoinRoomEvent{
		head(JoinRoomMethod),
		&JoinRoomParams{RoomID: testKey.RoomID(), UserID: "creator-1"},
	}))

	_, ok := coordinator.registry.CurrentHost(testKey)
	assert.False(t, ok)
}

// Scenario: guest asks, host approves, guest joins, peers get presence.
func TestJoinRequestApproveFlow(t *testing.T) {
	coordinator, publisher, notifier := newTestCoordinator(t)

	coordinator.Connect(connC1, "creator-1")
	joinRoom(t, coordinator, connC1, testKey.RoomID())

	coordinator.Connect(connC2, "u2")
	coordinator.Dispatch(connC2, mustJSON(t, &JoinRequestEvent{
		head(JoinRequestMethod),
		&JoinRequestParams{RoomID: testKey.RoomID(), DisplayName: "Alice"},
	}))

	req, ok := publisher.LastEvent(connC1).(*HostJoinRequestEvent)
	assert.True(t, ok)
	assert.Equal(t, "u2", req.Params.UserID)
	assert.Equal(t, "Alice", req.Params.DisplayName)
	assert.Equal(t, connC2, req.Params.ConnectionID)

	coordinator.Dispatch(connC1, mustJSON(t, &AdmissionEvent{
		head(ApproveRequestMethod),
		&AdmissionParams{RoomID: testKey.RoomID(), TargetConnectionID: connC2},
	}))

	approved, ok := publisher.LastEvent(connC2).(*AdmissionEvent)
	assert.True(t, ok)
	assert.Equal(t, JoinApprovedMethod, approved.GetMethod())
	assert.Equal(t, testKey.RoomID(), approved.Params.RoomID)
	assert.Equal(t, []string{"u2"}, notifier.Admitted)

	joinRoom(t, coordinator, connC2, testKey.RoomID())

	presence, ok := publisher.LastEvent(connC1).(*PresenceEvent)
	assert.True(t, ok)
	assert.Equal(t, UserConnectedMethod, presence.GetMethod())
	assert.Equal(t, "u2", presence.Params.UserID)
	assert.Equal(t, connC2, presence.Params.ConnectionID)
}

// Scenario: the host disconnects before answering; the request stays pending
// and the room reports no host.
func TestHostDisconnectLeavesRequestPending(t *testing.T) {
	coordinator, publisher, notifier := newTestCoordinator(t)

	coordinator.Connect(connC1, "creator-1")
	joinRoom(t, coordinator, connC1, testKey.RoomID())

	coordinator.Connect(connC2, "u2")
	coordinator.Dispatch(connC2, mustJSON(t, &JoinRequestEvent{
		head(JoinRequestMethod),
		&JoinRequestParams{RoomID: testKey.RoomID(), DisplayName: "Alice"},
	}))

	coordinator.Disconnect(connC1)

	_, ok := coordinator.registry.CurrentHost(testKey)
	assert.False(t, ok)
	assert.Equal(t, []string{testKey.RoomID()}, notifier.Closed)

	infos := coordinator.Rooms()
	assert.Len(t, infos, 1)
	assert.Equal(t, 1, infos[0].Pending)

	// No verdict ever reached the requester.
	assert.Len(t, publisher.Sent(connC2), 0)
}

// Scenario: join request for a room that never had a host.
func TestJoinRequestWithoutHost(t *testing.T) {
	coordinator, publisher, _ := newTestCoordinator(t)

	key := core.RoomKey{GroupID: "99", Nonce: "x"}

	coordinator.Connect(connC2, "u2")
	coordinator.Dispatch(connC2, mustJSON(t, &JoinRequestEvent{
		head(JoinRequestMethod),
		&JoinRequestParams{RoomID: key.RoomID(), DisplayName: "Alice"},
	}))

	assert.Equal(t, 1, publisher.Total())

	rejected, ok := publisher.LastEvent(connC2).(*AdmissionEvent)
	assert.True(t, ok)
	assert.Equal(t, JoinRejectedMethod, rejected.GetMethod())
	assert.Equal(t, key.RoomID(), rejected.Params.RoomID)
	assert.Equal(t, RejectedNoHostReason, rejected.Params.Reason)
}

func TestRelayKeepsPayloadIntact(t *testing.T) {
	coordinator, publisher, _ := newTestCoordinator(t)

	coordinator.Connect(connC1, "creator-1")
	coordinator.Connect(connC2, "u2")

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"}`)

	coordinator.Dispatch(connC2, mustJSON(t, &SignalEvent{
		head(OfferMethod),
		&SignalParams{TargetConnectionID: connC1, Payload: payload},
	}))

	relayed, ok := publisher.LastEvent(connC1).(*SignalEvent)
	assert.True(t, ok)
	assert.Equal(t, OfferMethod, relayed.GetMethod())
	assert.Equal(t, connC2, relayed.Params.SourceConnectionID)
	assert.Equal(t, []byte(payload), []byte(relayed.Params.Payload))
}

func TestRelayToVanishedTargetIsDropped(t *testing.T) {
	coordinator, publisher, _ := newTestCoordinator(t)

	coordinator.Connect(connC2, "u2")

	coordinator.Dispatch(connC2, mustJSON(t, &SignalEvent{
		head(CandidateMethod),
		&SignalParams{TargetConnectionID: "gone", Payload: json.RawMessage(`{}`)},
	}))

	assert.Equal(t, 0, publisher.Total())
}

func TestRelayPreservesPairOrder(t *testing.T) {
	coordinator, publisher, _ := newTestCoordinator(t)

	coordinator.Connect(connC1, "creator-1")
	coordinator.Connect(connC2, "u2")

	methods := []Method{OfferMethod, CandidateMethod, CandidateMethod, AnswerMethod}
	for i, m := range methods {
		payload, _ := json.Marshal(map[string]int{"seq": i})
		coordinator.Dispatch(connC2, mustJSON(t, &SignalEvent{
			head(m),
			&SignalParams{TargetConnectionID: connC1, Payload: payload},
		}))
	}

	sent := publisher.Sent(connC1)
	assert.Len(t, sent, len(methods))
	for i, msg := range sent {
		ev := msg.(*SignalEvent)
		assert.Equal(t, methods[i], ev.GetMethod())

		var p struct {
			Seq int `json:"seq"`
		}
		assert.Nil(t, json.Unmarshal(ev.Params.Payload, &p))
		assert.Equal(t, i, p.Seq)
	}
}

func TestDisconnectCleansMembership(t *testing.T) {
	coordinator, publisher, _ := newTestCoordinator(t)

	coordinator.Connect(connC1, "creator-1")
	joinRoom(t, coordinator, connC1, testKey.RoomID())

	coordinator.Connect(connC2, "u2")
	joinRoom(t, coordinator, connC2, testKey.RoomID())

	coordinator.Connect(connC3, "u3")
	joinRoom(t, coordinator, connC3, testKey.RoomID())

	coordinator.Disconnect(connC2)

	gone, ok := publisher.LastEvent(connC1).(*PresenceEvent)
	assert.True(t, ok)
	assert.Equal(t, UserDisconnectedMethod, gone.GetMethod())
	assert.Equal(t, connC2, gone.Params.ConnectionID)

	infos := coordinator.Rooms()
	assert.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].Members)
	assert.True(t, infos[0].HostConnected)
}

// Scenario: a connection moves to another room, then disconnects. The first
// room must not retain its membership or host binding.
func TestRejoinLeavesPreviousRoom(t *testing.T) {
	coordinator, publisher, notifier := newTestCoordinator(t)

	keyA := core.RoomKey{GroupID: "42", Nonce: "a"}
	keyB := core.RoomKey{GroupID: "42", Nonce: "b"}

	coordinator.Connect(connC1, "creator-1")
	joinRoom(t, coordinator, connC1, keyA.RoomID())

	coordinator.Connect(connC2, "u2")
	joinRoom(t, coordinator, connC2, keyA.RoomID())

	joinRoom(t, coordinator, connC1, keyB.RoomID())

	// The first room lost its host and c2 saw the departure.
	_, ok := coordinator.registry.CurrentHost(keyA)
	assert.False(t, ok)
	assert.Equal(t, []string{keyA.RoomID()}, notifier.Closed)

	gone, ok := publisher.LastEvent(connC2).(*PresenceEvent)
	assert.True(t, ok)
	assert.Equal(t, UserDisconnectedMethod, gone.GetMethod())
	assert.Equal(t, connC1, gone.Params.ConnectionID)

	host, ok := coordinator.registry.CurrentHost(keyB)
	assert.True(t, ok)
	assert.Equal(t, connC1, host)

	// Disconnects now find only the rooms the connections actually occupy.
	coordinator.Disconnect(connC1)
	coordinator.Disconnect(connC2)

	assert.Len(t, coordinator.Rooms(), 0)
	assert.Equal(t, []string{keyA.RoomID(), keyB.RoomID()}, notifier.Closed)
}

// Re-sending join-room for the current room must not count as leaving it.
func TestRejoinSameRoomIsIdempotent(t *testing.T) {
	coordinator, publisher, notifier := newTestCoordinator(t)

	coordinator.Connect(connC1, "creator-1")
	joinRoom(t, coordinator, connC1, testKey.RoomID())
	joinRoom(t, coordinator, connC1, testKey.RoomID())

	host, ok := coordinator.registry.CurrentHost(testKey)
	assert.True(t, ok)
	assert.Equal(t, connC1, host)

	assert.Len(t, notifier.Closed, 0)
	assert.Equal(t, 0, publisher.Total())
}

func TestDisconnectOfUnboundConnectionIsNoop(t *testing.T) {
	coordinator, publisher, _ := newTestCoordinator(t)

	coordinator.Connect(connC1, "u1")
	coordinator.Disconnect(connC1)
	// Disconnects race incomplete joins; an unknown id must also be silent.
	coordinator.Disconnect("never-seen")

	assert.Equal(t, 0, publisher.Total())
}

func TestMalformedEventsAreDropped(t *testing.T) {
	coordinator, publisher, _ := newTestCoordinator(t)

	coordinator.Connect(connC1, "u1")

	coordinator.Dispatch(connC1, []byte(`not json`))
	coordinator.Dispatch(connC1, []byte(`{"jsonrpc":"2.0","method":"no-such-method","params":{}}`))
	coordinator.Dispatch(connC1, mustJSON(t, &JoinRoomEvent{head(JoinRoomMethod), &JoinRoomParams{RoomID: "bogus"}}))

	assert.Equal(t, 0, publisher.Total())
	assert.Len(t, coordinator.Rooms(), 0)
}

// Two connections of the authorized user racing join-room must end with
// exactly one host binding.
func TestConcurrentHostJoins(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t)

	coordinator.Connect(connC1, "creator-1")
	coordinator.Connect(connC2, "creator-1")

	done := make(chan struct{})
	go func() {
		joinRoom(t, coordinator, connC1, testKey.RoomID())
		close(done)
	}()
	joinRoom(t, coordinator, connC2, testKey.RoomID())
	<-done

	host, ok := coordinator.registry.CurrentHost(testKey)
	assert.True(t, ok)
	assert.Contains(t, []string{connC1, connC2}, host)
}
