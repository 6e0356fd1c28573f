package rooms

import (
	"errors"
	"sort"
	"sync"
)

// ErrRoomFull is returned by Join when the room's occupancy policy rejects
// a new member. The channel is left unregistered and does not count toward
// occupancy.
var ErrRoomFull = errors.New("rooms: room full")

// MemberChannel is the send side of one joined signaling connection, as the
// registry sees it. Sends must not block: a full send queue or a dead
// connection drops the frame.
type MemberChannel interface {
	TrySend(data []byte) bool
}

// room holds the membership of one named room.
//
// nextID only ever increases; member ids are never reused after being freed.
// The counter advances even when a join is rejected for occupancy, matching
// the relay's historical behavior (the rejected client is never registered,
// so the burned id is simply skipped).
type room struct {
	nextID  int
	members map[int]MemberChannel
}

// Registry maps room names to their members and assigns per-room member ids.
//
// All operations are serialized by a single mutex: join/leave/lookup are
// read-modify-write operations whose interleaving must not corrupt id
// assignment or membership snapshots. Rooms are created lazily on first join
// and never deleted, even when empty; ids stay stable for late rejoins at
// the cost of unbounded growth in the number of idle room entries.
type Registry struct {
	maxOccupancy int

	mu    sync.Mutex
	rooms map[string]*room
}

// NewRegistry returns a Registry enforcing maxOccupancy members per room.
// maxOccupancy <= 0 means unbounded.
func NewRegistry(maxOccupancy int) *Registry {
	return &Registry{
		maxOccupancy: maxOccupancy,
		rooms:        make(map[string]*room),
	}
}

// Join allocates the next member id for the named room, registers ch under
// it, and returns the id together with the membership snapshot (all member
// ids in the room, ascending, including the new one).
func (r *Registry) Join(name string, ch MemberChannel) (int, []int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		rm = &room{members: make(map[int]MemberChannel)}
		r.rooms[name] = rm
	}

	rm.nextID++
	id := rm.nextID

	if r.maxOccupancy > 0 && len(rm.members) >= r.maxOccupancy {
		return 0, nil, ErrRoomFull
	}

	rm.members[id] = ch
	return id, memberIDsLocked(rm), nil
}

// Leave removes ch from the named room and returns the freed member id for
// departure broadcast. The room entry is kept even when it becomes empty.
func (r *Registry) Leave(name string, ch MemberChannel) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return 0, false
	}
	for id, member := range rm.members {
		if member == ch {
			delete(rm.members, id)
			return id, true
		}
	}
	return 0, false
}

// Lookup resolves a forwarding target. A miss means the peer already
// departed; the caller drops the frame.
func (r *Registry) Lookup(name string, id int) (MemberChannel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return nil, false
	}
	ch, ok := rm.members[id]
	return ch, ok
}

// Members returns the ids currently in the named room, ascending.
func (r *Registry) Members(name string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return nil
	}
	return memberIDsLocked(rm)
}

// Remaining returns the channels still registered in the named room, for
// departure broadcast. The snapshot is taken under the registry lock; sends
// happen outside it.
func (r *Registry) Remaining(name string) []MemberChannel {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return nil
	}
	out := make([]MemberChannel, 0, len(rm.members))
	for _, ch := range rm.members {
		out = append(out, ch)
	}
	return out
}

func memberIDsLocked(rm *room) []int {
	ids := make([]int, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
