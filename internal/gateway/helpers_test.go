package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errGone = errors.New("connection gone")

// fakeEmitter records every frame queued per connection.
type fakeEmitter struct {
	mu      sync.Mutex
	frames  map[string][]Envelope
	subs    map[string]map[string]bool
	failing map[string]bool
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{
		frames:  make(map[string][]Envelope),
		subs:    make(map[string]map[string]bool),
		failing: make(map[string]bool),
	}
}

func (f *fakeEmitter) Emit(connID string, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[connID] {
		return errGone
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	f.frames[connID] = append(f.frames[connID], env)
	return nil
}

func (f *fakeEmitter) Subscribe(connID, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[connID] == nil {
		f.subs[connID] = make(map[string]bool)
	}
	f.subs[connID][roomID] = true
}

func (f *fakeEmitter) Unsubscribe(connID, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[connID], roomID)
}

func (f *fakeEmitter) subscribed(connID, roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[connID][roomID]
}

func (f *fakeEmitter) fail(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[connID] = true
}

func (f *fakeEmitter) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = make(map[string][]Envelope)
}

func (f *fakeEmitter) events(connID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames[connID]))
	for _, env := range f.frames[connID] {
		out = append(out, env.Type)
	}
	return out
}

func (f *fakeEmitter) count(connID, event string) int {
	n := 0
	for _, e := range f.events(connID) {
		if e == event {
			n++
		}
	}
	return n
}

func (f *fakeEmitter) total(event string) int {
	f.mu.Lock()
	conns := make([]string, 0, len(f.frames))
	for c := range f.frames {
		conns = append(conns, c)
	}
	f.mu.Unlock()
	n := 0
	for _, c := range conns {
		n += f.count(c, event)
	}
	return n
}

// payloads decodes every payload of the given event sent to connID.
func payloads[T any](t *testing.T, f *fakeEmitter, connID, event string) []T {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []T
	for _, env := range f.frames[connID] {
		if env.Type != event {
			continue
		}
		var v T
		require.NoError(t, json.Unmarshal(env.Payload, &v))
		out = append(out, v)
	}
	return out
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestController(emitter Emitter, store ConversationStore, opts ...Option) *Controller {
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	return NewController(emitter, store, zap.NewNop(), opts...)
}

func connect(c *Controller, connID, userID, identity string) {
	c.Connect(context.Background(), connID, ConnectPayload{UserID: userID, Identity: identity})
}

func join(c *Controller, connID, roomID, identity string) {
	c.JoinRoom(context.Background(), connID, RoomPayload{ConversationID: roomID, Identity: identity})
}

func leave(c *Controller, connID, roomID, identity string) {
	c.LeaveRoom(context.Background(), connID, RoomPayload{ConversationID: roomID, Identity: identity})
}

// requireConsistent checks that room membership and user room lists mirror each other
// and that no room is kept without members.
func requireConsistent(t *testing.T, c *Controller) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, roomID := range c.rooms.Rooms() {
		members := c.rooms.MembersOf(roomID)
		require.NotEmpty(t, members, "room %s exists with no members", roomID)
		for _, userID := range members {
			u, ok := c.registry.Get(userID)
			require.True(t, ok, "room %s lists unknown user %s", roomID, userID)
			require.True(t, u.InRoom(roomID), "user %s missing room %s", userID, roomID)
		}
	}
	for _, u := range c.registry.All() {
		for _, roomID := range u.Rooms() {
			require.True(t, c.rooms.IsMember(roomID, u.UserID),
				"user %s lists room %s but the index does not", u.UserID, roomID)
		}
	}
}
