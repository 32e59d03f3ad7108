package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/mocks"
	"github.com/fathima-sithara/chat-relay/internal/models"
)

func TestController_AliceAndBob(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockConversationStore(ctrl)
	em := newFakeEmitter()
	c := newTestController(em, store)
	ctx := context.Background()

	// Given alice is connected and joined R1
	connect(c, "c-alice", "u1", "alice")
	join(c, "c-alice", "R1", "alice")
	em.reset()

	// When bob connects and joins R1
	connect(c, "c-bob", "u2", "bob")
	join(c, "c-bob", "R1", "bob")

	// Then only alice hears about it, exactly once, with bob's identity
	joined := payloads[MembershipNotice](t, em, "c-alice", EventUserJoined)
	req.Len(joined, 1)
	req.Equal("bob", joined[0].Identity)
	req.Equal("R1", joined[0].ConversationID)
	req.Zero(em.count("c-bob", EventUserJoined))

	// When alice sends "hi"
	store.EXPECT().CreateMessage(gomock.Any(), "R1", "hi", "alice", gomock.Nil()).
		Return(&models.Message{ID: "m1", ConversationID: "R1", Body: "hi", Author: "alice", CreatedAt: t0}, nil).
		Times(1)
	c.SendMessage(ctx, "c-alice", SendMessagePayload{ConversationID: "R1", Body: "hi", Author: "alice"})

	// Then both receive new_message and only alice gets message_sent
	for _, conn := range []string{"c-alice", "c-bob"} {
		msgs := payloads[NewMessage](t, em, conn, EventNewMessage)
		req.Len(msgs, 1, conn)
		req.Equal("hi", msgs[0].Message.Body)
		req.Equal("m1", msgs[0].Message.ID)
	}
	sent := payloads[MessageSent](t, em, "c-alice", EventMessageSent)
	req.Len(sent, 1)
	req.Equal("m1", sent[0].MessageID)
	req.Zero(em.count("c-bob", EventMessageSent))

	// When bob disconnects
	c.Disconnect(ctx, "c-bob")

	// Then alice hears one user_left for bob and R1 holds only alice
	left := payloads[MembershipNotice](t, em, "c-alice", EventUserLeft)
	req.Len(left, 1)
	req.Equal("bob", left[0].Identity)
	req.Equal([]string{"u1"}, c.UsersInConversation("R1"))
	requireConsistent(t, c)
}

func TestController_JoinOrderAndSelfExclusion(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)

	connect(c, "c1", "u1", "alice")
	connect(c, "c2", "u2", "bob")
	join(c, "c1", "R1", "alice")
	em.reset()

	join(c, "c2", "R1", "bob")

	// the joiner gets the snapshot then the ack, never its own user_joined
	req.Equal([]string{EventConversationUsers, EventJoinedConversation}, em.events("c2"))
	snapshot := payloads[ConversationUsers](t, em, "c2", EventConversationUsers)
	req.Len(snapshot, 1)
	req.Len(snapshot[0].OnlineUsers, 2)
	req.Equal("u1", snapshot[0].OnlineUsers[0].UserID)
	req.Equal("u2", snapshot[0].OnlineUsers[1].UserID)

	ack := payloads[JoinedConversation](t, em, "c2", EventJoinedConversation)
	req.True(ack[0].Success)
	req.Equal("R1", ack[0].ConversationID)

	req.Equal([]string{EventUserJoined}, em.events("c1"))
}

func TestController_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)

	connect(c, "c1", "u1", "alice")
	connect(c, "c2", "u2", "bob")
	join(c, "c1", "R1", "alice")
	join(c, "c2", "R1", "bob")

	// When bob joins R1 a second time
	join(c, "c2", "R1", "bob")

	// Then alice got a single user_joined and bob is listed once
	req.Equal(1, em.count("c1", EventUserJoined))
	req.Equal([]string{"u1", "u2"}, c.UsersInConversation("R1"))
	req.Equal(2, em.count("c2", EventJoinedConversation))
	u, _ := c.registry.Get("u2")
	req.Equal([]string{"R1"}, u.Rooms())
	requireConsistent(t, c)
}

func TestController_JoinWithoutIdentitySubscribesTransportOnly(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)

	// Given a socket that never sent connect
	join(c, "anon", "R1", "ghost")

	// Then the transport is subscribed and acked, but nothing is recorded
	req.True(em.subscribed("anon", "R1"))
	req.Equal([]string{EventJoinedConversation}, em.events("anon"))
	req.Empty(c.UsersInConversation("R1"))
	req.False(c.rooms.Exists("R1"))
}

func TestController_LeaveRoom(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)

	connect(c, "c1", "u1", "alice")
	connect(c, "c2", "u2", "bob")
	join(c, "c1", "R1", "alice")
	join(c, "c2", "R1", "bob")
	em.reset()

	leave(c, "c2", "R1", "bob")

	// no ack for the leaver, one user_left for the remaining member
	req.Empty(em.events("c2"))
	req.False(em.subscribed("c2", "R1"))
	left := payloads[MembershipNotice](t, em, "c1", EventUserLeft)
	req.Len(left, 1)
	req.Equal("bob", left[0].Identity)
	requireConsistent(t, c)

	// the last member leaving deletes the room
	leave(c, "c1", "R1", "alice")
	req.False(c.rooms.Exists("R1"))

	// leaving again is a silent no-op
	em.reset()
	leave(c, "c1", "R1", "alice")
	req.Empty(em.events("c1"))
	requireConsistent(t, c)
}

func TestController_DisconnectCleansEveryRoom(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)

	connect(c, "c1", "u1", "alice")
	connect(c, "c2", "u2", "bob")
	join(c, "c1", "R1", "alice")
	join(c, "c1", "R2", "alice")
	join(c, "c2", "R2", "bob")
	em.reset()

	// When alice drops
	c.Disconnect(context.Background(), "c1")

	// Then R1 is gone, R2 keeps bob, bob is told once
	req.False(c.rooms.Exists("R1"))
	req.Equal([]string{"u2"}, c.UsersInConversation("R2"))
	req.Equal(1, em.count("c2", EventUserLeft))
	req.Equal(1, c.ConnectedUsersCount())
	_, online := c.OnlineUser("u1")
	req.False(online)
	requireConsistent(t, c)

	// a second disconnect of the same socket does nothing
	c.Disconnect(context.Background(), "c1")
	req.Equal(1, em.count("c2", EventUserLeft))
}

func TestController_DisconnectBothRoomsEmptied(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)

	connect(c, "c1", "u1", "alice")
	join(c, "c1", "R1", "alice")
	join(c, "c1", "R2", "alice")

	c.Disconnect(context.Background(), "c1")

	req.Empty(c.rooms.Rooms())
	req.Zero(c.ConnectedUsersCount())
}

func TestController_DisconnectSurvivesFailedNotifications(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)

	connect(c, "c1", "u1", "alice")
	connect(c, "c2", "u2", "bob")
	connect(c, "c3", "u3", "carol")
	join(c, "c1", "R1", "alice")
	join(c, "c1", "R2", "alice")
	join(c, "c2", "R1", "bob")
	join(c, "c3", "R2", "carol")

	// Given bob's socket can no longer be written to
	em.fail("c2")

	c.Disconnect(context.Background(), "c1")

	// Then the failure in R1 did not stop R2 from being cleaned and notified
	req.Equal([]string{"u2"}, c.UsersInConversation("R1"))
	req.Equal([]string{"u3"}, c.UsersInConversation("R2"))
	req.Equal(1, em.count("c3", EventUserLeft))
	requireConsistent(t, c)
}

func TestController_SendMessageFanoutCounts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockConversationStore(ctrl)
	em := newFakeEmitter()
	c := newTestController(em, store)

	for i := 1; i <= 3; i++ {
		conn, user := fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i)
		connect(c, conn, user, user)
		join(c, conn, "R1", user)
	}
	// a member of another room must not hear it
	connect(c, "c9", "u9", "zed")
	join(c, "c9", "R2", "zed")
	em.reset()

	store.EXPECT().CreateMessage(gomock.Any(), "R1", "hello", "u1", []string{"https://cdn/a.png"}).
		Return(&models.Message{ID: "m7", Body: "hello", Author: "u1", Media: []string{"https://cdn/a.png"}, CreatedAt: t0}, nil)

	c.SendMessage(context.Background(), "c1", SendMessagePayload{
		ConversationID: "R1", Body: "hello", Author: "u1", Media: []string{"https://cdn/a.png"},
	})

	req.Equal(3, em.total(EventNewMessage))
	req.Equal(1, em.total(EventMessageSent))
	req.Equal(1, em.count("c1", EventMessageSent))
	req.Zero(em.count("c9", EventNewMessage))

	msg := payloads[NewMessage](t, em, "c2", EventNewMessage)[0]
	req.Equal("R1", msg.ConversationID)
	req.Equal([]string{"https://cdn/a.png"}, msg.Message.Media)
}

func TestController_SendMessageStoreFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockConversationStore(ctrl)
	em := newFakeEmitter()
	c := newTestController(em, store)

	connect(c, "c1", "u1", "alice")
	connect(c, "c2", "u2", "bob")
	join(c, "c1", "R1", "alice")
	join(c, "c2", "R1", "bob")
	em.reset()

	store.EXPECT().CreateMessage(gomock.Any(), "R1", "hi", "alice", gomock.Any()).
		Return(nil, errors.New("provider unavailable"))

	c.SendMessage(context.Background(), "c1", SendMessagePayload{ConversationID: "R1", Body: "hi", Author: "alice"})

	req.Zero(em.total(EventNewMessage))
	req.Zero(em.total(EventMessageSent))
	req.Equal([]string{EventMessageError}, em.events("c1"))
	req.Empty(em.events("c2"))
	errEv := payloads[MessageError](t, em, "c1", EventMessageError)[0]
	req.False(errEv.Success)
	req.Equal("provider unavailable", errEv.Error)
	req.Equal("R1", errEv.ConversationID)
	requireConsistent(t, c)
}

func TestController_SendMessageUsesMembershipAtCompletion(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockConversationStore(ctrl)
	em := newFakeEmitter()
	c := newTestController(em, store)

	connect(c, "c1", "u1", "alice")
	connect(c, "c2", "u2", "bob")
	join(c, "c1", "R1", "alice")
	join(c, "c2", "R1", "bob")
	em.reset()

	// Given the sender disconnects while the store call is in flight
	store.EXPECT().CreateMessage(gomock.Any(), "R1", "bye", "alice", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, _ string, _ []string) (*models.Message, error) {
			c.Disconnect(context.Background(), "c1")
			return &models.Message{ID: "m9", Body: "bye", Author: "alice", CreatedAt: t0}, nil
		})

	c.SendMessage(context.Background(), "c1", SendMessagePayload{ConversationID: "R1", Body: "bye", Author: "alice"})

	// Then the broadcast still fires, to the members left at completion time
	req.Equal(1, em.count("c2", EventNewMessage))
	req.Zero(em.count("c1", EventNewMessage))
}

func TestController_TypingReachesOthersOnly(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)

	connect(c, "c1", "u1", "alice")
	connect(c, "c2", "u2", "bob")
	join(c, "c1", "R1", "alice")
	join(c, "c2", "R1", "bob")
	em.reset()

	c.Typing(context.Background(), "c1", RoomPayload{ConversationID: "R1", Identity: "alice"}, true)
	c.Typing(context.Background(), "c1", RoomPayload{ConversationID: "R1", Identity: "alice"}, false)

	req.Empty(em.events("c1"))
	typing := payloads[UserTyping](t, em, "c2", EventUserTyping)
	req.Len(typing, 2)
	req.True(typing[0].IsTyping)
	req.False(typing[1].IsTyping)
	req.Equal("alice", typing[0].Identity)
}

func TestController_GetOnlineUsers(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)
	connect(c, "c1", "u1", "alice")

	// an empty room answers with an empty list
	c.GetOnlineUsers(context.Background(), "c1", OnlineUsersPayload{ConversationID: "nobody-here"})
	res := payloads[OnlineUsers](t, em, "c1", EventOnlineUsers)
	req.Len(res, 1)
	req.NotNil(res[0].Users)
	req.Empty(res[0].Users)

	// a stale membership without a record is skipped
	join(c, "c1", "R1", "alice")
	c.mu.Lock()
	c.rooms.Join("R1", "ghost")
	c.mu.Unlock()
	em.reset()

	c.GetOnlineUsers(context.Background(), "c1", OnlineUsersPayload{ConversationID: "R1"})
	res = payloads[OnlineUsers](t, em, "c1", EventOnlineUsers)
	req.Len(res[0].Users, 1)
	req.Equal("alice", res[0].Users[0].Identity)
}

func TestController_PingTouchesLastSeen(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	now := t0
	c := NewController(em, nil, zap.NewNop(), WithClock(func() time.Time { return now }))

	connect(c, "c1", "u1", "alice")
	now = now.Add(time.Minute)
	c.Ping(context.Background(), "c1")
	c.Ping(context.Background(), "anon")

	u, ok := c.OnlineUser("u1")
	req.True(ok)
	req.Equal(now, u.LastSeen)
	pong := payloads[Pong](t, em, "c1", EventPong)
	req.Len(pong, 1)
	req.Equal(now, pong[0].Timestamp)
	req.Equal(1, em.count("anon", EventPong))
}

func TestController_ReconnectRequiresRejoin(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)

	connect(c, "c1", "u1", "alice")
	connect(c, "c2", "u2", "bob")
	join(c, "c1", "R1", "alice")
	join(c, "c2", "R1", "bob")
	em.reset()

	// When alice reconnects from a new socket
	connect(c, "c1b", "u1", "alice")

	// Then her old membership is dropped and the new record starts outside every room
	req.Equal([]string{"u2"}, c.UsersInConversation("R1"))
	req.Equal(1, em.count("c2", EventUserLeft))
	req.Equal([]string{EventUserConnected}, em.events("c1b"))
	req.False(em.subscribed("c1", "R1"))
	req.True(em.subscribed("c2", "R1"))
	requireConsistent(t, c)

	// the stale socket closing later does not touch the new record
	c.Disconnect(context.Background(), "c1")
	_, online := c.OnlineUser("u1")
	req.True(online)

	join(c, "c1b", "R1", "alice")
	req.Equal([]string{"u1", "u2"}, c.UsersInConversation("R1"))
	requireConsistent(t, c)
}

func TestController_RandomSequencesStayConsistent(t *testing.T) {
	em := newFakeEmitter()
	c := newTestController(em, nil)
	rnd := rand.New(rand.NewSource(42))
	ctx := context.Background()

	conns := []string{"c1", "c2", "c3", "c4"}
	users := []string{"u1", "u2", "u3"}
	roomIDs := []string{"A", "B", "C"}

	for i := 0; i < 2000; i++ {
		conn := conns[rnd.Intn(len(conns))]
		room := roomIDs[rnd.Intn(len(roomIDs))]
		switch rnd.Intn(5) {
		case 0:
			user := users[rnd.Intn(len(users))]
			connect(c, conn, user, user)
		case 1, 2:
			join(c, conn, room, "")
		case 3:
			leave(c, conn, room, "")
		case 4:
			c.Disconnect(ctx, conn)
		}
		requireConsistent(t, c)
	}
}

func TestController_SocketReidentifiesAsAnotherUser(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)

	connect(c, "c1", "u1", "alice")
	connect(c, "c2", "u2", "bob")
	join(c, "c1", "R1", "alice")
	join(c, "c2", "R1", "bob")
	em.reset()

	// When the socket that carried alice sends connect as carol
	connect(c, "c1", "u3", "carol")

	// Then alice leaves her rooms on both sides and the socket stops listening to them
	_, online := c.OnlineUser("u1")
	req.False(online)
	req.Equal([]string{"u2"}, c.UsersInConversation("R1"))
	req.Equal(1, em.count("c2", EventUserLeft))
	req.False(em.subscribed("c1", "R1"))
	requireConsistent(t, c)
}
