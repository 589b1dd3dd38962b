package db

import (
	"time"
)

type ConversationTurn struct {
	ID          int64
	RequestedBy string
	Prompt      string
	Attachment  *string
	Answer      string
	CreatedAt   time.Time
}
