package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/models"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

const (
	messagePageSize   = 100
	conversationLimit = 1000
	groupUniquePrefix = "group_"
)

// ParticipantInput is either a bare identity or a profile object. Both JSON
// forms are accepted: "alice" and {"id":"alice","name":"Alice","image":"..."}.
type ParticipantInput struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

func (p *ParticipantInput) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*p = ParticipantInput{ID: id}
		return nil
	}
	type plain ParticipantInput
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = ParticipantInput(v)
	return nil
}

func (p ParticipantInput) isProfile() bool { return p.Name != "" || p.Image != "" }

type GroupInput struct {
	GroupID   string   `json:"group_id" validate:"required"`
	GroupName string   `json:"group_name" validate:"required"`
	CreatedBy string   `json:"created_by,omitempty"`
	Members   []string `json:"members,omitempty"`
}

type GroupSyncResult struct {
	GroupID        string `json:"groupId"`
	ConversationID string `json:"conversationId,omitempty"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
}

type ParticipantResult struct {
	Participant string `json:"participant"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

type GroupParticipants struct {
	GroupID        string              `json:"groupId"`
	ConversationID string              `json:"conversationId"`
	Results        []ParticipantResult `json:"results"`
}

// PrivateConversation is the answer of CreatePrivateConversation. Existing is
// set when the pair already had a conversation; Messages then holds its history.
type PrivateConversation struct {
	models.Conversation
	Existing bool             `json:"existing"`
	Messages []models.Message `json:"messages,omitempty"`
}

type MessageWithFiles struct {
	Message   models.Message        `json:"message"`
	Files     []models.FileMetadata `json:"uploadedFiles"`
	MediaURLs []string              `json:"mediaUrls"`
}

type ConversationService struct {
	convs    ConversationRepository
	messages MessageRepository
	groups   GroupRepository
	files    *FileService
	bridge   MessageBroadcaster
	events   ConversationEvents
	logger   *zap.Logger
	now      func() time.Time
}

func NewConversationService(convs ConversationRepository, messages MessageRepository, groups GroupRepository, files *FileService, bridge MessageBroadcaster, events ConversationEvents, logger *zap.Logger) *ConversationService {
	return &ConversationService{
		convs:    convs,
		messages: messages,
		groups:   groups,
		files:    files,
		bridge:   bridge,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateMessage persists a message without broadcasting it. The realtime
// gateway uses it and fans the result out itself.
func (s *ConversationService) CreateMessage(ctx context.Context, conversationID, body, author string, media []string) (*models.Message, error) {
	if conversationID == "" || author == "" {
		return nil, fmt.Errorf("%w: conversation id and author are required", utils.ErrBadRequest)
	}
	if strings.TrimSpace(body) == "" && len(media) == 0 {
		return nil, fmt.Errorf("%w: message body or media is required", utils.ErrBadRequest)
	}
	if _, err := s.convs.GetByID(ctx, conversationID); err != nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, err)
	}

	now := s.now()
	msg := &models.Message{
		ID:             utils.NewID(),
		ConversationID: conversationID,
		Body:           body,
		Author:         author,
		Media:          media,
		CreatedAt:      now,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.convs.Touch(ctx, conversationID, now); err != nil {
		s.logger.Warn("conversation touch failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return msg, nil
}

// SendMessage stores the message and broadcasts it to the room.
func (s *ConversationService) SendMessage(ctx context.Context, conversationID, body, author string, media []string) (*models.Message, error) {
	msg, err := s.CreateMessage(ctx, conversationID, body, author, media)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, *msg)
	return msg, nil
}

// SendMessageWithFiles uploads the files, sends a message carrying their URLs
// and links the uploads to it.
func (s *ConversationService) SendMessageWithFiles(ctx context.Context, conversationID, body, author string, files []Upload) (*MessageWithFiles, error) {
	if conversationID == "" || author == "" {
		return nil, fmt.Errorf("%w: conversation id and author are required", utils.ErrBadRequest)
	}
	if _, err := s.convs.GetByID(ctx, conversationID); err != nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, err)
	}

	uploaded := s.files.UploadMany(ctx, files, UploadMeta{ConversationID: conversationID, UploadedBy: author})
	urls := make([]string, 0, len(uploaded))
	for _, f := range uploaded {
		urls = append(urls, f.URL)
	}

	msg, err := s.CreateMessage(ctx, conversationID, body, author, urls)
	if err != nil {
		return nil, err
	}
	for i := range uploaded {
		if err := s.files.repo.SetMessageID(ctx, uploaded[i].ID, msg.ID, msg.CreatedAt); err != nil {
			s.logger.Warn("file link failed", zap.String("file_id", uploaded[i].ID), zap.Error(err))
			continue
		}
		uploaded[i].MessageID = msg.ID
	}
	s.broadcast(ctx, *msg)

	return &MessageWithFiles{Message: *msg, Files: uploaded, MediaURLs: urls}, nil
}

func (s *ConversationService) broadcast(ctx context.Context, msg models.Message) {
	if s.bridge == nil {
		return
	}
	n := s.bridge.BroadcastMessageToRoom(ctx, msg.ConversationID, msg)
	s.logger.Debug("message broadcast", zap.String("conversation_id", msg.ConversationID), zap.Int("reached", n))
}

// ListMessages returns the newest page of messages in chronological order.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs, err := s.messages.List(ctx, conversationID, messagePageSize)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		s.withMedia(ctx, &msgs[i])
	}
	return msgs, nil
}

func (s *ConversationService) withMedia(ctx context.Context, m *models.Message) {
	if s.files == nil {
		return
	}
	if urls := s.files.mediaURLs(ctx, m.ID); len(urls) > 0 {
		m.Media = urls
	}
}

func (s *ConversationService) CreateConversation(ctx context.Context, friendlyName string, participants []ParticipantInput) (*models.Conversation, error) {
	name := friendlyName
	if name == "" {
		name = deriveName(participants)
	}
	conv := s.newConversation(name, "", identitiesOf(participants))
	if err := s.convs.Insert(ctx, conv); err != nil {
		return nil, err
	}
	s.announce(ctx, *conv)
	return conv, nil
}

// CreatePrivateConversation returns the conversation of exactly these
// participants, creating it on first use.
func (s *ConversationService) CreatePrivateConversation(ctx context.Context, friendlyName string, participants []ParticipantInput) (*PrivateConversation, error) {
	ids := identitiesOf(participants)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: participants are required", utils.ErrBadRequest)
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	uniqueName := strings.Join(sorted, "_")

	if existing, err := s.existingPrivate(ctx, uniqueName); err != nil || existing != nil {
		return existing, err
	}

	name := friendlyName
	if name == "" {
		name = deriveName(participants)
	}
	if name == "" {
		name = "Private Conversation"
		if len(ids) >= 2 {
			name = fmt.Sprintf("Private: %s & %s", ids[0], ids[1])
		}
	}

	conv := s.newConversation(name, uniqueName, ids)
	if err := s.convs.Insert(ctx, conv); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			// created concurrently by the other participant
			if existing, ferr := s.existingPrivate(ctx, uniqueName); ferr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	s.announce(ctx, *conv)
	return &PrivateConversation{Conversation: *conv}, nil
}

func (s *ConversationService) existingPrivate(ctx context.Context, uniqueName string) (*PrivateConversation, error) {
	conv, err := s.convs.FindByUniqueName(ctx, uniqueName)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		s.logger.Warn("history lookup failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		msgs = []models.Message{}
	}
	return &PrivateConversation{Conversation: *conv, Existing: true, Messages: msgs}, nil
}

func (s *ConversationService) AddParticipant(ctx context.Context, conversationID, identity string) (*models.Participant, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: identity is required", utils.ErrBadRequest)
	}
	p := models.Participant{Identity: identity, Kind: models.ParticipantChat, JoinedAt: s.now()}
	if err := s.convs.AddParticipant(ctx, conversationID, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AddSMSParticipant binds a phone number to the conversation.
func (s *ConversationService) AddSMSParticipant(ctx context.Context, conversationID, phone string) (*models.Participant, error) {
	if err := utils.Validator().Var(phone, "required,e164"); err != nil {
		return nil, fmt.Errorf("%w: phone number must be in E.164 format", utils.ErrBadRequest)
	}
	p := models.Participant{Kind: models.ParticipantSMS, Address: phone, JoinedAt: s.now()}
	if err := s.convs.AddParticipant(ctx, conversationID, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListConversations lists the conversations userID takes part in, or all of
// them when userID is empty, each with its latest message.
func (s *ConversationService) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	convs, err := s.convs.List(ctx, userID, conversationLimit)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		sum := models.ConversationSummary{Conversation: c}
		last, err := s.messages.Last(ctx, c.ID)
		switch {
		case err == nil:
			s.withMedia(ctx, last)
			sum.LastMessage = last
		case !errors.Is(err, utils.ErrNotFound):
			s.logger.Warn("last message lookup failed", zap.String("conversation_id", c.ID), zap.Error(err))
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *ConversationService) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.convs.Delete(ctx, conversationID); err != nil {
		return err
	}
	n, err := s.messages.DeleteByConversation(ctx, conversationID)
	if err != nil {
		s.logger.Warn("message cleanup failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	s.logger.Info("conversation deleted", zap.String("conversation_id", conversationID), zap.Int64("messages", n))
	return nil
}

// SyncGroups makes sure every group has its conversation. Groups are handled
// independently; one failing does not stop the others.
func (s *ConversationService) SyncGroups(ctx context.Context, groups []GroupInput) []GroupSyncResult {
	results := make([]GroupSyncResult, 0, len(groups))
	for _, g := range groups {
		res := GroupSyncResult{GroupID: g.GroupID}
		convID, err := s.syncGroup(ctx, g)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
			res.ConversationID = convID
		}
		results = append(results, res)
	}
	return results
}

func (s *ConversationService) syncGroup(ctx context.Context, g GroupInput) (string, error) {
	if err := utils.ValidateStruct(g); err != nil {
		return "", err
	}
	uniqueName := groupUniquePrefix + g.GroupID

	conv, err := s.convs.FindByUniqueName(ctx, uniqueName)
	switch {
	case errors.Is(err, utils.ErrNotFound):
		conv = s.newConversation(g.GroupName, uniqueName, g.Members)
		if err := s.convs.Insert(ctx, conv); err != nil {
			return "", err
		}
		s.announce(ctx, *conv)
	case err != nil:
		return "", err
	}

	now := s.now()
	if err := s.groups.Upsert(ctx, &models.Group{
		ID:             g.GroupID,
		GroupName:      g.GroupName,
		ConversationID: conv.ID,
		CreatedBy:      g.CreatedBy,
		Members:        nonNil(g.Members),
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		return "", err
	}
	return conv.ID, nil
}

// AddGroupParticipants adds each user to the group conversation and reports
// the outcome per user.
func (s *ConversationService) AddGroupParticipants(ctx context.Context, groupID string, userIDs []string) (*GroupParticipants, error) {
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: participants are required", utils.ErrBadRequest)
	}
	conv, err := s.convs.FindByUniqueName(ctx, groupUniquePrefix+groupID)
	if err != nil {
		return nil, fmt.Errorf("group conversation: %w", err)
	}

	out := &GroupParticipants{GroupID: groupID, ConversationID: conv.ID}
	added := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		res := ParticipantResult{Participant: id}
		if _, err := s.AddParticipant(ctx, conv.ID, id); err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
			added = append(added, id)
		}
		out.Results = append(out.Results, res)
	}

	if len(added) > 0 {
		if err := s.groups.AddMembers(ctx, groupID, added, s.now()); err != nil && !errors.Is(err, utils.ErrNotFound) {
			s.logger.Warn("group member update failed", zap.String("group_id", groupID), zap.Error(err))
		}
	}
	return out, nil
}

func (s *ConversationService) newConversation(name, uniqueName string, identities []string) *models.Conversation {
	now := s.now()
	conv := &models.Conversation{
		ID:           utils.NewID(),
		FriendlyName: name,
		UniqueName:   uniqueName,
		Participants: make([]models.Participant, 0, len(identities)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, id := range identities {
		conv.Participants = append(conv.Participants, models.Participant{Identity: id, Kind: models.ParticipantChat, JoinedAt: now})
	}
	return conv
}

func (s *ConversationService) announce(ctx context.Context, conv models.Conversation) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishConversationCreated(ctx, conv); err != nil {
		s.logger.Warn("conversation.created publish failed", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
}

// deriveName builds a display name from the participants: profiles become
// id_name_image joined by "+", bare identities are joined by "_".
func deriveName(participants []ParticipantInput) string {
	if len(participants) == 0 {
		return ""
	}
	if participants[0].isProfile() {
		parts := make([]string, 0, len(participants))
		for _, p := range participants {
			parts = append(parts, p.ID+"_"+p.Name+"_"+p.Image)
		}
		return strings.Join(parts, "+")
	}
	return strings.Join(identitiesOf(participants), "_")
}

func identitiesOf(participants []ParticipantInput) []string {
	seen := make(map[string]struct{}, len(participants))
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.ID == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p.ID)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
