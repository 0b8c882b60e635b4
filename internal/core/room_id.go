package core

import (
	"errors"
	"fmt"
	"strings"
)

const roomIDPrefix = "room"

var ErrMalformedRoomID = errors.New("malformed room id")

// RoomKey is the structured identity of a live study room. GroupID points at
// the group-study record that owns the room, Nonce distinguishes separate
// sittings of the same group.
type RoomKey struct {
	GroupID string
	Nonce   string
}

// ParseRoomID parses the wire form "room_<groupID>_<nonce>".
func ParseRoomID(roomID string) (RoomKey, error) {
	parts := strings.SplitN(roomID, "_", 3)
	if len(parts) != 3 || parts[0] != roomIDPrefix || parts[1] == "" || parts[2] == "" {
		return RoomKey{}, fmt.Errorf("%w: %q", ErrMalformedRoomID, roomID)
	}

	return RoomKey{GroupID: parts[1], Nonce: parts[2]}, nil
}

// RoomID renders the wire form of the key.
func (k RoomKey) RoomID() string {
	return roomIDPrefix + "_" + k.GroupID + "_" + k.Nonce
}
