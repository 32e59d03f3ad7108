package gateway

import (
	"encoding/json"
	"time"

	"github.com/fathima-sithara/chat-relay/internal/models"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

// Inbound event names.
const (
	EventConnect           = "connect"
	EventUserConnect       = "user_connect"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventGetOnlineUsers    = "get_online_users"
	EventPing              = "ping"
)

// Outbound event names.
const (
	EventUserConnected       = "user_connected"
	EventJoinedConversation  = "joined_conversation"
	EventConversationUsers   = "conversation_users"
	EventUserJoined          = "user_joined"
	EventUserLeft            = "user_left"
	EventNewMessage          = "new_message"
	EventMessageSent         = "message_sent"
	EventMessageError        = "message_error"
	EventUserTyping          = "user_typing"
	EventOnlineUsers         = "online_users"
	EventPong                = "pong"
	EventUserStatusChanged   = "user_status_changed"
	EventConversationUpdated = "conversation_updated"
	EventError               = "error"
)

// Envelope is the JSON frame exchanged with clients in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is one decoded client frame together with the connection it came from.
type Inbound struct {
	ConnID string
	// Subject is the verified token subject, empty when the socket is unauthenticated.
	Subject string
	Type    string
	Payload json.RawMessage
}

// inbound payloads

type ConnectPayload struct {
	UserID   string `json:"userId" validate:"required"`
	Identity string `json:"identity" validate:"required"`
}

type RoomPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Identity       string `json:"identity"`
}

type SendMessagePayload struct {
	ConversationID string   `json:"conversationId" validate:"required"`
	Body           string   `json:"body" validate:"required_without=Media"`
	Author         string   `json:"author" validate:"required"`
	Media          []string `json:"media" validate:"omitempty,dive,required"`
}

type OnlineUsersPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

// outbound payloads

type UserConnected struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	UserID   string `json:"userId"`
	Identity string `json:"identity"`
}

type JoinedConversation struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type OnlineUser struct {
	UserID   string    `json:"userId"`
	Identity string    `json:"identity"`
	LastSeen time.Time `json:"lastSeen"`
}

type ConversationUsers struct {
	ConversationID string       `json:"conversationId"`
	OnlineUsers    []OnlineUser `json:"onlineUsers"`
}

type MembershipNotice struct {
	ConversationID string    `json:"conversationId"`
	Identity       string    `json:"identity"`
	Timestamp      time.Time `json:"timestamp"`
}

type ChatMessage struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Media     []string  `json:"media"`
}

func chatMessageFrom(m models.Message) ChatMessage {
	media := m.Media
	if media == nil {
		media = []string{}
	}
	return ChatMessage{ID: m.ID, Body: m.Body, Author: m.Author, CreatedAt: m.CreatedAt, Media: media}
}

type NewMessage struct {
	ConversationID string      `json:"conversationId"`
	Message        ChatMessage `json:"message"`
	Timestamp      time.Time   `json:"timestamp"`
}

type MessageSent struct {
	Success        bool   `json:"success"`
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type MessageError struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	ConversationID string `json:"conversationId"`
}

type UserTyping struct {
	ConversationID string    `json:"conversationId"`
	Identity       string    `json:"identity"`
	IsTyping       bool      `json:"isTyping"`
	Timestamp      time.Time `json:"timestamp"`
}

type OnlineUsers struct {
	ConversationID string       `json:"conversationId"`
	Users          []OnlineUser `json:"users"`
}

type Pong struct {
	Timestamp time.Time `json:"timestamp"`
}

type UserStatusChanged struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Identity       string    `json:"identity"`
	Status         any       `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

type ConversationUpdated struct {
	ConversationID string    `json:"conversationId"`
	Update         any       `json:"update"`
	Timestamp      time.Time `json:"timestamp"`
}

type ErrorEvent struct {
	Event  string                  `json:"event"`
	Error  string                  `json:"error"`
	Fields []utils.ValidationError `json:"fields,omitempty"`
}

// Encode builds a wire frame.
func Encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: event, Payload: raw})
}
