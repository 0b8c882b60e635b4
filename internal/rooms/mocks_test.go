package rooms

import (
	"context"
	"sync"

	"github.com/schoolmesh/studyrooms/internal/eventbus"
)

// MockPublisher records every client-bound message in publish order.
type MockPublisher struct {
	mu       sync.Mutex
	messages map[string][]eventbus.Message
	MockErr  error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		messages: make(map[string][]eventbus.Message),
	}
}

func (p *MockPublisher) PublishClient(connectionID string, msg eventbus.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.messages[connectionID] = append(p.messages[connectionID], msg)

	return p.MockErr
}

func (p *MockPublisher) Sent(connectionID string) []eventbus.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]eventbus.Message, len(p.messages[connectionID]))
	copy(out, p.messages[connectionID])
	return out
}

func (p *MockPublisher) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, msgs := range p.messages {
		total += len(msgs)
	}
	return total
}

func (p *MockPublisher) LastEvent(connectionID string) Event {
	msgs := p.Sent(connectionID)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1].(Event)
}

// MockFinder is an in-memory group-study store.
type MockFinder struct {
	mu       sync.Mutex
	creators map[string]string
	MockErr  error
	Calls    int
}

func NewMockFinder(creators map[string]string) *MockFinder {
	if creators == nil {
		creators = make(map[string]string)
	}
	return &MockFinder{creators: creators}
}

func (f *MockFinder) FindCreator(ctx context.Context, groupID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls++
	if f.MockErr != nil {
		return "", f.MockErr
	}
	return f.creators[groupID], nil
}

func (f *MockFinder) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.MockErr = err
}

// MockNotifier records activity notifications.
type MockNotifier struct {
	mu       sync.Mutex
	Opened   []string
	Closed   []string
	Admitted []string
	Rejected []string
}

func (n *MockNotifier) RoomOpened(roomID, hostUserID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Opened = append(n.Opened, roomID)
}

func (n *MockNotifier) RoomClosed(roomID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Closed = append(n.Closed, roomID)
}

func (n *MockNotifier) GuestAdmitted(roomID, userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Admitted = append(n.Admitted, userID)
}

func (n *MockNotifier) GuestRejected(roomID, userID, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Rejected = append(n.Rejected, reason)
}
