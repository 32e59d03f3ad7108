// Package events carries conversation lifecycle events over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/config"
	"github.com/fathima-sithara/chat-relay/internal/models"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

type ConversationCreatedEvent struct {
	ConversationID string    `json:"conversationId"`
	FriendlyName   string    `json:"friendlyName"`
	UniqueName     string    `json:"uniqueName,omitempty"`
	Participants   []string  `json:"participants"`
	CreatedAt      time.Time `json:"createdAt"`
}

type ConversationUpdatedEvent struct {
	ConversationID string         `json:"conversationId"`
	Update         map[string]any `json:"update"`
}

// UpdateBroadcaster delivers a conversation change to the room's live members.
type UpdateBroadcaster interface {
	BroadcastConversationUpdate(ctx context.Context, roomID string, update any) int
}

// conn is the part of *nats.Conn the bus uses.
type conn interface {
	Publish(subj string, data []byte) error
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
	Drain() error
	Close()
}

// Bus is nil-safe: a nil *Bus publishes nothing, which is how the relay runs
// without NATS configured.
type Bus struct {
	nc       conn
	subjects config.NATSConfig
	logger   *zap.Logger
}

func Connect(cfg config.NATSConfig, logger *zap.Logger) (*Bus, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("chat-relay"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	return &Bus{nc: nc, subjects: cfg, logger: logger}, nil
}

func (b *Bus) PublishConversationCreated(_ context.Context, conv models.Conversation) error {
	if b == nil || b.nc == nil {
		return nil
	}
	ev := ConversationCreatedEvent{
		ConversationID: conv.ID,
		FriendlyName:   conv.FriendlyName,
		UniqueName:     conv.UniqueName,
		CreatedAt:      conv.CreatedAt,
	}
	for _, p := range conv.Participants {
		if p.Identity != "" {
			ev.Participants = append(ev.Participants, p.Identity)
		}
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subjects.SubjectConversationCreated, data)
}

// SubscribeConversationUpdated forwards updates to target. The instances share
// one queue group, so each update is handled by a single instance and reaches
// the members on other instances through the room relay.
func (b *Bus) SubscribeConversationUpdated(target UpdateBroadcaster) (*nats.Subscription, error) {
	if b == nil || b.nc == nil {
		return nil, nil
	}
	return b.nc.QueueSubscribe(b.subjects.SubjectConversationUpdated, b.subjects.QueueGroup, func(m *nats.Msg) {
		if err := HandleConversationUpdated(context.Background(), target, m.Data, b.logger); err != nil {
			b.logger.Warn("conversation.updated rejected", zap.Error(err))
		}
	})
}

func HandleConversationUpdated(ctx context.Context, target UpdateBroadcaster, data []byte, logger *zap.Logger) error {
	var ev ConversationUpdatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrBadRequest, err)
	}
	if ev.ConversationID == "" {
		return fmt.Errorf("%w: conversationId is required", utils.ErrBadRequest)
	}
	n := target.BroadcastConversationUpdate(ctx, ev.ConversationID, ev.Update)
	logger.Debug("conversation update delivered", zap.String("conversation_id", ev.ConversationID), zap.Int("connections", n))
	return nil
}

// Close drains pending messages before closing the connection.
func (b *Bus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
}
