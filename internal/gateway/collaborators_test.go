package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fathima-sithara/chat-relay/internal/mocks"
	"github.com/fathima-sithara/chat-relay/internal/models"
)

func TestController_PresenceMirrorFollowsLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	mirror := mocks.NewMockPresenceMirror(ctrl)
	em := newFakeEmitter()
	c := newTestController(em, nil, WithPresenceMirror(mirror))

	gomock.InOrder(
		mirror.EXPECT().SetOnline(gomock.Any(), "u1", "alice", "c1").Return(nil),
		mirror.EXPECT().Touch(gomock.Any(), "u1").Return(errors.New("redis down")),
		mirror.EXPECT().SetOffline(gomock.Any(), "u1").Return(nil),
	)

	connect(c, "c1", "u1", "alice")
	c.Ping(context.Background(), "c1")
	c.Disconnect(context.Background(), "c1")

	// a mirror failure never blocks the local answer
	require.Equal(t, 1, em.count("c1", EventPong))
}

func TestController_SendMessageRelaysAndPublishes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockConversationStore(ctrl)
	relay := mocks.NewMockRelay(ctrl)
	pub := mocks.NewMockMessagePublisher(ctrl)
	em := newFakeEmitter()
	c := newTestController(em, store, WithRelay(relay), WithMessagePublisher(pub), WithNodeID("node-a"))

	connect(c, "c1", "u1", "alice")
	join(c, "c1", "R1", "alice")

	msg := &models.Message{ID: "m1", ConversationID: "R1", Body: "hi", Author: "alice", CreatedAt: t0}
	store.EXPECT().CreateMessage(gomock.Any(), "R1", "hi", "alice", gomock.Any()).Return(msg, nil)

	var relayed []byte
	relay.EXPECT().Publish(gomock.Any(), "R1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, frame []byte) error {
			relayed = frame
			return nil
		})
	pub.EXPECT().PublishMessageSent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev models.MessageEvent) error {
			req.Equal("R1", ev.ConversationID)
			req.Equal("node-a", ev.Origin)
			req.Equal("m1", ev.Message.ID)
			return errors.New("broker unavailable")
		})

	c.SendMessage(context.Background(), "c1", SendMessagePayload{ConversationID: "R1", Body: "hi", Author: "alice"})

	// the relayed frame is the same new_message the local room received
	req.NotEmpty(relayed)
	req.Contains(string(relayed), `"type":"new_message"`)
	req.Equal(1, em.count("c1", EventMessageSent))
}

func TestController_FailedSendSkipsRelayAndPublish(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockConversationStore(ctrl)
	relay := mocks.NewMockRelay(ctrl)
	pub := mocks.NewMockMessagePublisher(ctrl)
	em := newFakeEmitter()
	c := newTestController(em, store, WithRelay(relay), WithMessagePublisher(pub))

	connect(c, "c1", "u1", "alice")
	store.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("nope"))
	relay.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	pub.EXPECT().PublishMessageSent(gomock.Any(), gomock.Any()).Times(0)

	c.SendMessage(context.Background(), "c1", SendMessagePayload{ConversationID: "R1", Body: "x", Author: "alice"})

	require.Equal(t, 1, em.count("c1", EventMessageError))
}

func TestController_SendMessageWithoutStore(t *testing.T) {
	req := require.New(t)
	em := newFakeEmitter()
	c := newTestController(em, nil)
	connect(c, "c1", "u1", "alice")

	c.SendMessage(context.Background(), "c1", SendMessagePayload{ConversationID: "R1", Body: "x", Author: "alice"})

	errs := payloads[MessageError](t, em, "c1", EventMessageError)
	req.Len(errs, 1)
	req.Equal(errNoStore.Error(), errs[0].Error)
}
