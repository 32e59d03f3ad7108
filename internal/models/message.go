package models

import "time"

// Message is a persisted chat message as stored by the conversation store.
type Message struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversationId"`
	Body           string    `bson:"body" json:"body"`
	Author         string    `bson:"author" json:"author"`
	Media          []string  `bson:"media,omitempty" json:"media"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
}

// MessageEvent is the bus record announcing a message persisted somewhere in the system.
type MessageEvent struct {
	ConversationID string    `json:"conversationId"`
	Message        Message   `json:"message"`
	Origin         string    `json:"origin,omitempty"`
	At             time.Time `json:"at"`
}
