package domain

import "time"

type ConversationID string
type OwnerID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Timestamp = time.Time
