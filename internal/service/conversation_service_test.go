package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fathima-sithara/chat-relay/internal/models"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

func TestCreateMessage_UnknownConversation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.convs.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, utils.ErrNotFound)

	_, err := f.svc.CreateMessage(context.Background(), "missing", "hi", "alice", nil)
	req.ErrorIs(err, utils.ErrNotFound)
}

func TestCreateMessage_RequiresContent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	_, err := f.svc.CreateMessage(context.Background(), "c1", "   ", "alice", nil)
	req.ErrorIs(err, utils.ErrBadRequest)

	_, err = f.svc.CreateMessage(context.Background(), "c1", "hi", "", nil)
	req.ErrorIs(err, utils.ErrBadRequest)
}

func TestSendMessage_StoresTouchesAndBroadcasts(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	var stored *models.Message
	f.convs.EXPECT().GetByID(gomock.Any(), "c1").Return(&models.Conversation{ID: "c1"}, nil)
	f.messages.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *models.Message) error {
		stored = m
		return nil
	})
	f.convs.EXPECT().Touch(gomock.Any(), "c1", t0).Return(errors.New("write conflict"))
	f.bridge.EXPECT().BroadcastMessageToRoom(gomock.Any(), "c1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, m models.Message) int {
			req.Equal("hello", m.Body)
			return 2
		})

	msg, err := f.svc.SendMessage(ctx, "c1", "hello", "alice", nil)

	// a failed touch is not a failed send
	req.NoError(err)
	req.Same(stored, msg)
	req.NotEmpty(msg.ID)
	req.Equal("alice", msg.Author)
	req.Equal(t0, msg.CreatedAt)
}

func TestCreateConversation_DerivesName(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	var inserted []*models.Conversation
	f.convs.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c *models.Conversation) error {
		inserted = append(inserted, c)
		return nil
	}).Times(3)
	f.events.EXPECT().PublishConversationCreated(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	f.events.EXPECT().PublishConversationCreated(gomock.Any(), gomock.Any()).Return(errors.New("nats down"))

	// Given profile participants
	var profiles []ParticipantInput
	req.NoError(json.Unmarshal([]byte(`[{"id":"u1","name":"Alice","image":"a.png"},{"id":"u2","name":"Bob"}]`), &profiles))
	conv, err := f.svc.CreateConversation(ctx, "", profiles)
	req.NoError(err)
	req.Equal("u1_Alice_a.png+u2_Bob_", conv.FriendlyName)
	req.Len(conv.Participants, 2)
	req.Equal(models.ParticipantChat, conv.Participants[0].Kind)

	// Given bare identities
	var plain []ParticipantInput
	req.NoError(json.Unmarshal([]byte(`["alice","bob","alice"]`), &plain))
	conv, err = f.svc.CreateConversation(ctx, "", plain)
	req.NoError(err)
	req.Equal("alice_bob", conv.FriendlyName)
	req.Len(conv.Participants, 2)

	// An explicit name wins, and a failed announcement does not fail creation
	conv, err = f.svc.CreateConversation(ctx, "Team", plain)
	req.NoError(err)
	req.Equal("Team", conv.FriendlyName)
	req.Len(inserted, 3)
}

func TestCreatePrivateConversation_ReturnsExisting(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.noAttachments()

	existing := &models.Conversation{ID: "c9", FriendlyName: "alice_bob", UniqueName: "alice_bob"}
	f.convs.EXPECT().FindByUniqueName(gomock.Any(), "alice_bob").Return(existing, nil)
	f.messages.EXPECT().List(gomock.Any(), "c9", int64(messagePageSize)).
		Return([]models.Message{{ID: "m1", Body: "hey"}, {ID: "m2", Body: "yo"}}, nil)

	// order of participants does not matter
	res, err := f.svc.CreatePrivateConversation(context.Background(), "", []ParticipantInput{{ID: "bob"}, {ID: "alice"}})
	req.NoError(err)
	req.True(res.Existing)
	req.Equal("c9", res.ID)
	req.Len(res.Messages, 2)
}

func TestCreatePrivateConversation_CreatesWithUniqueName(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.convs.EXPECT().FindByUniqueName(gomock.Any(), "alice_bob").Return(nil, utils.ErrNotFound)
	f.convs.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c *models.Conversation) error {
		req.Equal("alice_bob", c.UniqueName)
		req.Equal("bob_alice", c.FriendlyName)
		return nil
	})
	f.events.EXPECT().PublishConversationCreated(gomock.Any(), gomock.Any()).Return(nil)

	res, err := f.svc.CreatePrivateConversation(context.Background(), "", []ParticipantInput{{ID: "bob"}, {ID: "alice"}})
	req.NoError(err)
	req.False(res.Existing)
	req.Empty(res.Messages)

	_, err = f.svc.CreatePrivateConversation(context.Background(), "", nil)
	req.ErrorIs(err, utils.ErrBadRequest)
}

func TestCreatePrivateConversation_ConcurrentCreate(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.noAttachments()

	// Given the other participant creates the conversation between our lookup and insert
	winner := &models.Conversation{ID: "c1", UniqueName: "alice_bob"}
	gomock.InOrder(
		f.convs.EXPECT().FindByUniqueName(gomock.Any(), "alice_bob").Return(nil, utils.ErrNotFound),
		f.convs.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(utils.ErrConflict),
		f.convs.EXPECT().FindByUniqueName(gomock.Any(), "alice_bob").Return(winner, nil),
	)
	f.messages.EXPECT().List(gomock.Any(), "c1", gomock.Any()).Return([]models.Message{}, nil)

	// Then the winner's conversation is returned
	res, err := f.svc.CreatePrivateConversation(context.Background(), "", []ParticipantInput{{ID: "alice"}, {ID: "bob"}})
	req.NoError(err)
	req.True(res.Existing)
	req.Equal("c1", res.ID)
}

func TestAddParticipants(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.convs.EXPECT().AddParticipant(gomock.Any(), "c1", models.Participant{Identity: "carol", Kind: models.ParticipantChat, JoinedAt: t0}).Return(nil)
	f.convs.EXPECT().AddParticipant(gomock.Any(), "c1", models.Participant{Kind: models.ParticipantSMS, Address: "+14155550100", JoinedAt: t0}).Return(nil)

	p, err := f.svc.AddParticipant(ctx, "c1", "carol")
	req.NoError(err)
	req.Equal("carol", p.Identity)

	p, err = f.svc.AddSMSParticipant(ctx, "c1", "+14155550100")
	req.NoError(err)
	req.Equal("+14155550100", p.Address)

	_, err = f.svc.AddSMSParticipant(ctx, "c1", "555-0100")
	req.ErrorIs(err, utils.ErrBadRequest)

	_, err = f.svc.AddParticipant(ctx, "c1", "")
	req.ErrorIs(err, utils.ErrBadRequest)
}

func TestListConversations_AttachesLastMessage(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.convs.EXPECT().List(gomock.Any(), "alice", int64(conversationLimit)).
		Return([]models.Conversation{{ID: "c1"}, {ID: "c2"}}, nil)
	f.messages.EXPECT().Last(gomock.Any(), "c1").Return(&models.Message{ID: "m1", Body: "pic"}, nil)
	f.messages.EXPECT().Last(gomock.Any(), "c2").Return(nil, utils.ErrNotFound)
	f.fileRepo.EXPECT().ListByMessage(gomock.Any(), "m1").
		Return([]models.FileMetadata{{ID: "f1", Key: "images/f1.png", URL: "https://cdn/f1.png"}}, nil)

	out, err := f.svc.ListConversations(context.Background(), "alice")
	req.NoError(err)
	req.Len(out, 2)
	req.Equal([]string{"https://cdn/f1.png"}, out[0].LastMessage.Media)
	req.Nil(out[1].LastMessage)
}

func TestDeleteConversation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.convs.EXPECT().Delete(gomock.Any(), "c1").Return(nil)
	f.messages.EXPECT().DeleteByConversation(gomock.Any(), "c1").Return(int64(0), errors.New("timeout"))
	req.NoError(f.svc.DeleteConversation(ctx, "c1"))

	f.convs.EXPECT().Delete(gomock.Any(), "nope").Return(utils.ErrNotFound)
	req.ErrorIs(f.svc.DeleteConversation(ctx, "nope"), utils.ErrNotFound)
}

func TestSyncGroups(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given g1 has no conversation yet and g3 already has one
	f.convs.EXPECT().FindByUniqueName(gomock.Any(), "group_g1").Return(nil, utils.ErrNotFound)
	f.convs.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c *models.Conversation) error {
		req.Equal("Engineering", c.FriendlyName)
		req.Len(c.Participants, 2)
		return nil
	})
	f.events.EXPECT().PublishConversationCreated(gomock.Any(), gomock.Any()).Return(nil)
	f.convs.EXPECT().FindByUniqueName(gomock.Any(), "group_g3").Return(&models.Conversation{ID: "c3"}, nil)
	f.groups.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	results := f.svc.SyncGroups(context.Background(), []GroupInput{
		{GroupID: "g1", GroupName: "Engineering", Members: []string{"u1", "u2"}},
		{GroupID: "g2"},
		{GroupID: "g3", GroupName: "Sales"},
	})

	// Then each group reports independently
	req.Len(results, 3)
	req.True(results[0].Success)
	req.NotEmpty(results[0].ConversationID)
	req.False(results[1].Success)
	req.NotEmpty(results[1].Error)
	req.True(results[2].Success)
	req.Equal("c3", results[2].ConversationID)
}

func TestAddGroupParticipants(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.convs.EXPECT().FindByUniqueName(gomock.Any(), "group_g1").Return(&models.Conversation{ID: "c1"}, nil)
	f.convs.EXPECT().AddParticipant(gomock.Any(), "c1", gomock.Any()).Return(nil)
	f.convs.EXPECT().AddParticipant(gomock.Any(), "c1", gomock.Any()).Return(utils.ErrConflict)
	f.groups.EXPECT().AddMembers(gomock.Any(), "g1", []string{"u1"}, t0).Return(nil)

	res, err := f.svc.AddGroupParticipants(ctx, "g1", []string{"u1", "u2"})
	req.NoError(err)
	req.Equal("c1", res.ConversationID)
	req.Len(res.Results, 2)
	req.True(res.Results[0].Success)
	req.False(res.Results[1].Success)

	f.convs.EXPECT().FindByUniqueName(gomock.Any(), "group_zz").Return(nil, utils.ErrNotFound)
	_, err = f.svc.AddGroupParticipants(ctx, "zz", []string{"u1"})
	req.ErrorIs(err, utils.ErrNotFound)
}

func TestSendMessageWithFiles(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.convs.EXPECT().GetByID(gomock.Any(), "c1").Return(&models.Conversation{ID: "c1"}, nil).Times(2)
	f.blobs.EXPECT().Upload(gomock.Any(), gomock.Any(), "text/plain", []byte("hello")).
		DoAndReturn(func(_ context.Context, key, _ string, _ []byte) (string, error) {
			req.True(strings.HasPrefix(key, "documents/"))
			req.True(strings.HasSuffix(key, ".txt"))
			return "https://cdn/" + key, nil
		})
	f.fileRepo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	f.messages.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	f.convs.EXPECT().Touch(gomock.Any(), "c1", gomock.Any()).Return(nil)
	f.fileRepo.EXPECT().SetMessageID(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.bridge.EXPECT().BroadcastMessageToRoom(gomock.Any(), "c1", gomock.Any()).Return(1)

	// Given one acceptable file and one the allow-list rejects
	res, err := f.svc.SendMessageWithFiles(ctx, "c1", "see attached", "alice", []Upload{
		{Name: "notes.txt", Data: []byte("hello")},
		{Name: "setup.exe", ContentType: "application/x-msdownload", Data: []byte("MZ")},
	})

	// Then the message carries only the accepted file, linked to it
	req.NoError(err)
	req.Len(res.Files, 1)
	req.Len(res.MediaURLs, 1)
	req.Equal(res.MediaURLs, res.Message.Media)
	req.Equal(res.Message.ID, res.Files[0].MessageID)
	req.Equal(models.FileDocument, res.Files[0].FileType)
}

func TestParticipantInputForms(t *testing.T) {
	req := require.New(t)

	var in []ParticipantInput
	req.NoError(json.Unmarshal([]byte(`["a",{"id":"b","name":"B"}]`), &in))
	req.Equal([]ParticipantInput{{ID: "a"}, {ID: "b", Name: "B"}}, in)

	req.Error(json.Unmarshal([]byte(`[42]`), &in))
}
