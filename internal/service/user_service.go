package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/models"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

type CreateUserInput struct {
	Identity     string `json:"identity" validate:"required,max=128"`
	FriendlyName string `json:"friendly_name,omitempty" validate:"omitempty,max=256"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	PhoneNumber  string `json:"phone_number,omitempty" validate:"omitempty,e164"`
}

type AccessToken struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type UserService struct {
	users  UserRepository
	tokens TokenRepository
	groups GroupRepository
	issuer TokenIssuer
	logger *zap.Logger
	now    func() time.Time
}

func NewUserService(users UserRepository, tokens TokenRepository, groups GroupRepository, issuer TokenIssuer, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		tokens: tokens,
		groups: groups,
		issuer: issuer,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	name := in.FriendlyName
	if name == "" {
		name = in.Identity
	}
	now := s.now()
	u := &models.User{
		ID:           utils.NewID(),
		Identity:     in.Identity,
		FriendlyName: name,
		Email:        in.Email,
		PhoneNumber:  in.PhoneNumber,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Insert(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.String("user_id", u.ID), zap.String("identity", u.Identity))
	return u, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	return s.users.Delete(ctx, id)
}

// SaveFCMToken registers a device token for the user. created reports whether
// the pair is new; an existing pair only gets its device type refreshed.
func (s *UserService) SaveFCMToken(ctx context.Context, userID, token, deviceType string) (*models.FCMToken, bool, error) {
	if userID == "" || token == "" {
		return nil, false, fmt.Errorf("%w: userId and token are required", utils.ErrBadRequest)
	}
	return s.tokens.Upsert(ctx, userID, token, deviceType)
}

func (s *UserService) TokensForUser(ctx context.Context, userID string) ([]string, error) {
	recs, err := s.tokens.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return tokenValues(recs), nil
}

// TokensForGroup collects the device tokens of every group member.
func (s *UserService) TokensForGroup(ctx context.Context, groupID string) ([]string, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", groupID, err)
	}
	if len(g.Members) == 0 {
		return []string{}, nil
	}
	recs, err := s.tokens.ListByUsers(ctx, g.Members)
	if err != nil {
		return nil, err
	}
	return tokenValues(recs), nil
}

func (s *UserService) IssueToken(identity string) (*AccessToken, error) {
	token, exp, err := s.issuer.Issue(identity)
	if err != nil {
		return nil, err
	}
	return &AccessToken{Token: token, Identity: identity, ExpiresAt: exp}, nil
}

func tokenValues(recs []models.FCMToken) []string {
	seen := make(map[string]struct{}, len(recs))
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		if _, dup := seen[r.Token]; dup {
			continue
		}
		seen[r.Token] = struct{}{}
		out = append(out, r.Token)
	}
	return out
}
