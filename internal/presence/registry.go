// Package presence keeps the connected-user records of this process.
//
// Registry is not safe for concurrent use. The gateway controller owns it and
// serializes every call under its own lock together with the room index.
package presence

import (
	"slices"
	"sort"
	"time"
)

// ConnectedUser is the live record of one identified user.
type ConnectedUser struct {
	UserID       string
	Identity     string
	ConnectionID string
	LastSeen     time.Time
	rooms        []string
}

// Rooms returns a copy of the joined room ids in join order.
func (u *ConnectedUser) Rooms() []string {
	return slices.Clone(u.rooms)
}

func (u *ConnectedUser) InRoom(roomID string) bool {
	return slices.Contains(u.rooms, roomID)
}

// AddRoom appends roomID unless already present. Reports whether it was added.
func (u *ConnectedUser) AddRoom(roomID string) bool {
	if u.InRoom(roomID) {
		return false
	}
	u.rooms = append(u.rooms, roomID)
	return true
}

// RemoveRoom drops roomID. Reports whether it was present.
func (u *ConnectedUser) RemoveRoom(roomID string) bool {
	i := slices.Index(u.rooms, roomID)
	if i < 0 {
		return false
	}
	u.rooms = slices.Delete(u.rooms, i, i+1)
	return true
}

type Registry struct {
	users  map[string]*ConnectedUser // userID -> record
	byConn map[string]string         // connectionID -> userID
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[string]*ConnectedUser),
		byConn: make(map[string]string),
		now:    time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Register creates or replaces the record for userID. The new record starts
// with no rooms. Two earlier records may be dropped and are returned so the
// caller can reconcile their memberships: prev, the user's own record, and
// displaced, the record of another user that held connectionID.
func (r *Registry) Register(userID, identity, connectionID string) (u, prev, displaced *ConnectedUser) {
	prev = r.users[userID]
	if prev != nil {
		delete(r.byConn, prev.ConnectionID)
	}
	// a connection represents at most one user
	if other, ok := r.byConn[connectionID]; ok && other != userID {
		displaced = r.users[other]
		delete(r.users, other)
	}
	u = &ConnectedUser{
		UserID:       userID,
		Identity:     identity,
		ConnectionID: connectionID,
		LastSeen:     r.now(),
	}
	r.users[userID] = u
	r.byConn[connectionID] = userID
	return u, prev, displaced
}

func (r *Registry) FindByConnectionID(connectionID string) (*ConnectedUser, bool) {
	userID, ok := r.byConn[connectionID]
	if !ok {
		return nil, false
	}
	u, ok := r.users[userID]
	return u, ok
}

func (r *Registry) Get(userID string) (*ConnectedUser, bool) {
	u, ok := r.users[userID]
	return u, ok
}

// Touch refreshes LastSeen. Unknown users are ignored.
func (r *Registry) Touch(userID string) {
	if u, ok := r.users[userID]; ok {
		u.LastSeen = r.now()
	}
}

func (r *Registry) Remove(userID string) {
	u, ok := r.users[userID]
	if !ok {
		return
	}
	if r.byConn[u.ConnectionID] == userID {
		delete(r.byConn, u.ConnectionID)
	}
	delete(r.users, userID)
}

// All returns every record ordered by user id.
func (r *Registry) All() []*ConnectedUser {
	out := make([]*ConnectedUser, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (r *Registry) Count() int {
	return len(r.users)
}
