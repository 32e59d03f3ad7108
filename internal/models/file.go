package models

import "time"

const (
	FileImage    = "image"
	FileVideo    = "video"
	FileAudio    = "audio"
	FileDocument = "document"
	FileOther    = "other"
)

// FileMetadata describes one uploaded blob and what it is attached to.
type FileMetadata struct {
	ID             string    `bson:"_id" json:"id"`
	OriginalName   string    `bson:"original_name" json:"originalName"`
	Key            string    `bson:"key" json:"key"`
	URL            string    `bson:"url,omitempty" json:"url"`
	MimeType       string    `bson:"mime_type" json:"mimeType"`
	Size           int64     `bson:"size" json:"size"`
	FileType       string    `bson:"file_type" json:"fileType"`
	Width          int       `bson:"width,omitempty" json:"width,omitempty"`
	Height         int       `bson:"height,omitempty" json:"height,omitempty"`
	ThumbnailKey   string    `bson:"thumbnail_key,omitempty" json:"-"`
	ThumbnailURL   string    `bson:"thumbnail_url,omitempty" json:"thumbnail,omitempty"`
	ConversationID string    `bson:"conversation_id" json:"conversationId"`
	MessageID      string    `bson:"message_id,omitempty" json:"messageId,omitempty"`
	UploadedBy     string    `bson:"uploaded_by" json:"uploadedBy"`
	Tags           []string  `bson:"tags,omitempty" json:"tags,omitempty"`
	Description    string    `bson:"description,omitempty" json:"description,omitempty"`
	UploadedAt     time.Time `bson:"uploaded_at" json:"uploadedAt"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updatedAt"`
}
