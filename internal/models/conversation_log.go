package models

import (
	"fmt"
	"time"
)

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

type MessageType string

const (
	MessageTypeText             MessageType = "text"
	MessageTypeVoice            MessageType = "voice"
	MessageTypeVoiceTranscribed MessageType = "voice_transcribed"
	MessageTypePhoto            MessageType = "photo"
	MessageTypeDocument         MessageType = "document"
)

// ConversationLog is one appended row per message in or out. Written
// fire-and-forget: a failed append never affects the conversation itself.
type ConversationLog struct {
	ID string `gorm:"type:uuid;primaryKey"`

	UserID      int64 `gorm:"index"`
	Status      Status
	Direction   Direction
	MessageType MessageType
	TextPreview string

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (l *ConversationLog) String() string {
	return fmt.Sprintf(
		"ConversationLog(%d, %s, %s, %q)",
		l.UserID,
		l.Direction,
		l.MessageType,
		l.TextPreview,
	)
}
