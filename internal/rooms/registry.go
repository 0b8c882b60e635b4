package rooms

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/schoolmesh/studyrooms/internal/core"
)

const defaultLookupTimeout = 5 * time.Second

// room is the unit of serialization: every transition of one room's state
// happens under its mutex, distinct rooms never contend.
type room struct {
	key core.RoomKey

	mu         sync.Mutex
	hostConnID string
	creatorID  string            // empty until resolved from the group-study store
	members    map[string]string // connectionID -> userID
	pending    map[string]*JoinRequest
}

func newRoom(key core.RoomKey) *room {
	return &room{
		key:     key,
		members: make(map[string]string),
		pending: make(map[string]*JoinRequest),
	}
}

func (rm *room) empty() bool {
	return rm.hostConnID == "" && len(rm.members) == 0 && len(rm.pending) == 0
}

// Registry maps rooms to their current host and caches which user is allowed
// to become one. Rooms are created implicitly on first reference and dropped
// once they empty out; a re-referenced room is rebuilt identically, with the
// creator re-resolved from the store.
type Registry struct {
	finder        core.CreatorFinder
	lookupTimeout time.Duration

	mu    sync.RWMutex
	rooms map[core.RoomKey]*room
}

func NewRegistry(finder core.CreatorFinder, lookupTimeout time.Duration) *Registry {
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}
	return &Registry{
		finder:        finder,
		lookupTimeout: lookupTimeout,
		rooms:         make(map[core.RoomKey]*room),
	}
}

func (r *Registry) getOrCreate(key core.RoomKey) *room {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[key]
	if rm == nil {
		rm = newRoom(key)
		r.rooms[key] = rm
	}
	return rm
}

func (r *Registry) get(key core.RoomKey) (*room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[key]
	return rm, ok
}

// maybeDrop removes a room that holds no state anymore. Registry lock is
// taken before the room lock; no caller may do the reverse.
func (r *Registry) maybeDrop(key core.RoomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[key]
	if rm == nil {
		return
	}

	rm.mu.Lock()
	empty := rm.empty()
	rm.mu.Unlock()

	if empty {
		delete(r.rooms, key)
	}
}

// ResolveAuthorizedCreator returns the user allowed to host the room,
// consulting the group-study store on first call and caching the answer for
// the room's lifetime. Lookup failures and records without a creator are not
// cached, so a later call retries. The store is never queried under a lock:
// a slow lookup for one room cannot stall any other.
func (r *Registry) ResolveAuthorizedCreator(ctx context.Context, key core.RoomKey) (string, error) {
	rm := r.getOrCreate(key)

	rm.mu.Lock()
	cached := rm.creatorID
	rm.mu.Unlock()

	if cached != "" {
		return cached, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	creatorID, err := r.finder.FindCreator(lookupCtx, key.GroupID)
	if err != nil {
		log.Error().Err(err).Str("service", "rooms").Str("groupID", key.GroupID).Msg("creator lookup failed")
		return "", err
	}
	if creatorID == "" {
		return "", nil
	}

	rm.mu.Lock()
	// A concurrent resolver may have merged first; both queried the same
	// record, so keep whichever landed.
	if rm.creatorID == "" {
		rm.creatorID = creatorID
	}
	resolved := rm.creatorID
	rm.mu.Unlock()

	return resolved, nil
}

// RegisterHostIfAuthorized binds the connection as host when its user matches
// the resolved creator. Fails closed while the creator is unknown.
// Re-registering the same connection is a no-op; a newer connection of the
// authorized user takes the binding over.
func (r *Registry) RegisterHostIfAuthorized(key core.RoomKey, connectionID, userID string) bool {
	rm := r.getOrCreate(key)

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.creatorID == "" || rm.creatorID != userID {
		return false
	}

	rm.hostConnID = connectionID
	return true
}

func (r *Registry) CurrentHost(key core.RoomKey) (string, bool) {
	rm, ok := r.get(key)
	if !ok {
		return "", false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.hostConnID == "" {
		return "", false
	}
	return rm.hostConnID, true
}

// ReleaseHostIfMatches clears the host binding only when the departing
// connection still holds it, so a stale disconnect can't clobber a newer
// binding.
func (r *Registry) ReleaseHostIfMatches(key core.RoomKey, connectionID string) {
	rm, ok := r.get(key)
	if !ok {
		return
	}

	rm.mu.Lock()
	if rm.hostConnID == connectionID {
		rm.hostConnID = ""
	}
	rm.mu.Unlock()

	r.maybeDrop(key)
}

// RoomInfo is a point-in-time view of one live room.
type RoomInfo struct {
	RoomID        string `json:"roomId"`
	HostConnected bool   `json:"hostConnected"`
	Members       int    `json:"members"`
	Pending       int    `json:"pendingRequests"`
}

func (r *Registry) Snapshot() []RoomInfo {
	r.mu.RLock()
	rms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rms = append(rms, rm)
	}
	r.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(rms))
	for _, rm := range rms {
		rm.mu.Lock()
		infos = append(infos, RoomInfo{
			RoomID:        rm.key.RoomID(),
			HostConnected: rm.hostConnID != "",
			Members:       len(rm.members),
			Pending:       len(rm.pending),
		})
		rm.mu.Unlock()
	}
	return infos
}
