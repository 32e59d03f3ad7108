// Package rooms maps room ids to the user ids currently joined.
//
// A room exists only while it has members. Index is not safe for concurrent
// use; the gateway controller serializes access.
package rooms

import "sort"

type Index struct {
	rooms map[string]map[string]struct{}
}

func NewIndex() *Index {
	return &Index{rooms: make(map[string]map[string]struct{})}
}

// Join adds userID to roomID, creating the room if needed. Reports whether the
// membership is new.
func (x *Index) Join(roomID, userID string) bool {
	members, ok := x.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		x.rooms[roomID] = members
	}
	if _, ok := members[userID]; ok {
		return false
	}
	members[userID] = struct{}{}
	return true
}

// Leave removes userID from roomID and deletes the room once it is empty.
// Unknown rooms or members are ignored. Reports whether a membership was removed.
func (x *Index) Leave(roomID, userID string) bool {
	members, ok := x.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[userID]; !ok {
		return false
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(x.rooms, roomID)
	}
	return true
}

// MembersOf returns the member ids of roomID sorted, or an empty slice.
func (x *Index) MembersOf(roomID string) []string {
	members := x.rooms[roomID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (x *Index) IsMember(roomID, userID string) bool {
	_, ok := x.rooms[roomID][userID]
	return ok
}

func (x *Index) Exists(roomID string) bool {
	_, ok := x.rooms[roomID]
	return ok
}

// Rooms lists the room ids that currently have members.
func (x *Index) Rooms() []string {
	out := make([]string, 0, len(x.rooms))
	for id := range x.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (x *Index) Count() int {
	return len(x.rooms)
}
