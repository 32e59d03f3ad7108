package models

import "time"

type User struct {
	ID           string    `bson:"_id" json:"id"`
	Identity     string    `bson:"identity" json:"identity"`
	FriendlyName string    `bson:"friendly_name,omitempty" json:"friendlyName,omitempty"`
	Email        string    `bson:"email,omitempty" json:"email,omitempty"`
	PhoneNumber  string    `bson:"phone_number,omitempty" json:"phoneNumber,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
}

type FCMToken struct {
	ID         string    `bson:"_id" json:"id"`
	UserID     string    `bson:"user_id" json:"userId"`
	Token      string    `bson:"token" json:"token"`
	DeviceType string    `bson:"device_type,omitempty" json:"deviceType,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updatedAt"`
}

type Group struct {
	ID             string    `bson:"_id" json:"id"`
	GroupName      string    `bson:"group_name" json:"groupName"`
	ConversationID string    `bson:"conversation_id,omitempty" json:"conversationId,omitempty"`
	CreatedBy      string    `bson:"created_by" json:"createdBy"`
	Members        []string  `bson:"members" json:"members"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updatedAt"`
}
