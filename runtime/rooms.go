package runtime

import (
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
)

// Rooms is the in-memory subscription table mapping each room to the
// connections that joined it. It holds connections, not users: one
// user on three devices appears three times, and exclusions by user or
// by connection are resolved during fan-out.
type Rooms struct {
	mu      sync.RWMutex
	members map[domain.RoomID]map[string]contract.RoomMember // room -> connID -> member
	byConn  map[string]map[domain.RoomID]struct{}            // connID -> rooms, for fast teardown
}

var _ contract.IRooms = (*Rooms)(nil)

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[domain.RoomID]map[string]contract.RoomMember),
		byConn:  make(map[string]map[domain.RoomID]struct{}),
	}
}

// Join registers a connection in a room. If the room does not yet
// exist in the table, it is initialized on the fly. Re-joining
// overwrites the previous entry for the same connection.
func (r *Rooms) Join(roomID domain.RoomID, member contract.RoomMember) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[roomID]; !ok {
		r.members[roomID] = make(map[string]contract.RoomMember)
	}
	r.members[roomID][member.ConnID] = member

	if _, ok := r.byConn[member.ConnID]; !ok {
		r.byConn[member.ConnID] = make(map[domain.RoomID]struct{})
	}
	r.byConn[member.ConnID][roomID] = struct{}{}
}

// Leave removes a connection from one room. Empty rooms are removed
// entirely so the table does not accumulate every room ever seen.
func (r *Rooms) Leave(roomID domain.RoomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(roomID, connID)
}

func (r *Rooms) leaveLocked(roomID domain.RoomID, connID string) {
	if members, ok := r.members[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.members, roomID)
		}
	}
	if rooms, ok := r.byConn[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.byConn, connID)
		}
	}
}

// LeaveAll drops the connection from every room it joined and returns
// those rooms. Called on disconnect.
func (r *Rooms) LeaveAll(connID string) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make([]domain.RoomID, 0, len(r.byConn[connID]))
	for roomID := range r.byConn[connID] {
		rooms = append(rooms, roomID)
	}
	for _, roomID := range rooms {
		r.leaveLocked(roomID, connID)
	}
	return rooms
}

// Members returns the connections currently in the room. Returns nil
// if the room doesn't exist or has no members.
func (r *Rooms) Members(roomID domain.RoomID) []contract.RoomMember {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.members[roomID]
	if !ok {
		return nil
	}
	out := make([]contract.RoomMember, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}

func (r *Rooms) InRoom(roomID domain.RoomID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[roomID][connID]
	return ok
}

func (r *Rooms) Stats() (rooms, subscriptions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, members := range r.members {
		subscriptions += len(members)
	}
	return len(r.members), subscriptions
}
