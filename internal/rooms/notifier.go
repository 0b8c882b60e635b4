package rooms

// Notifier publishes room activity to the rest of the platform. Best effort:
// implementations must not block the coordination path.
type Notifier interface {
	RoomOpened(roomID, hostUserID string)
	RoomClosed(roomID string)
	GuestAdmitted(roomID, userID string)
	GuestRejected(roomID, userID, reason string)
}

type NopNotifier struct{}

func (NopNotifier) RoomOpened(roomID, hostUserID string)        {}
func (NopNotifier) RoomClosed(roomID string)                    {}
func (NopNotifier) GuestAdmitted(roomID, userID string)         {}
func (NopNotifier) GuestRejected(roomID, userID, reason string) {}
