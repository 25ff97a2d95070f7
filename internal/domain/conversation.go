package domain

// Message is a single entry in a conversation transcript, either typed by the
// user or generated by the model. Immutable once created; ordering within a
// conversation is insertion order.
type Message struct {
	Role    Role
	Content string
}

// Conversation is the durable projection of a chat transcript. ID is empty
// until the conversation is persisted for the first time. OwnerID never
// changes after creation: every store query filters on it, so a conversation
// is only ever visible to the session that created it.
type Conversation struct {
	ID        ConversationID
	OwnerID   OwnerID
	Messages  []Message
	ModelUsed string
	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// ConversationSummary is the compact form shown in the history sidebar.
type ConversationSummary struct {
	ID        ConversationID
	Preview   string
	ModelUsed string
	CreatedAt Timestamp
}

const (
	// PreviewLength is the maximum preview size, in runes.
	PreviewLength = 40

	previewEllipsis = "..."

	// DefaultPreview is shown when a conversation has no user message yet.
	DefaultPreview = "New Conversation"
)

// Preview builds the history preview for a transcript: the first user
// message, truncated.
func Preview(messages []Message) string {
	for _, m := range messages {
		if m.Role == RoleUser {
			return TruncateContent(m.Content, PreviewLength)
		}
	}
	return DefaultPreview
}

// TruncateContent shortens s to at most limit runes, appending an ellipsis
// marker only when something was actually cut off.
func TruncateContent(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + previewEllipsis
}
