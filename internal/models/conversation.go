package models

import "time"

const (
	ParticipantChat = "chat"
	ParticipantSMS  = "sms"
)

type Participant struct {
	Identity string    `bson:"identity,omitempty" json:"identity,omitempty"`
	Kind     string    `bson:"kind" json:"kind"`
	Address  string    `bson:"address,omitempty" json:"address,omitempty"`
	JoinedAt time.Time `bson:"joined_at" json:"joinedAt"`
}

type Conversation struct {
	ID           string        `bson:"_id" json:"id"`
	FriendlyName string        `bson:"friendly_name" json:"friendlyName"`
	UniqueName   string        `bson:"unique_name,omitempty" json:"uniqueName,omitempty"`
	Participants []Participant `bson:"participants" json:"participants"`
	CreatedAt    time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `bson:"updated_at" json:"updatedAt"`
}

// HasIdentity reports whether identity is a chat participant of the conversation.
func (c *Conversation) HasIdentity(identity string) bool {
	for _, p := range c.Participants {
		if p.Identity == identity {
			return true
		}
	}
	return false
}

// ConversationSummary is a conversation with its most recent message, used for listings.
type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"lastMessage"`
}
