package domain

import "context"

// InferenceClient defines how the application talks to the model inference
// server.
type InferenceClient interface {
	// ListModels returns the names of the models installed on the server.
	ListModels(ctx context.Context) ([]string, error)

	// StreamChat sends the full transcript in one request and returns the
	// stream of generated fragments. The caller owns the stream and must
	// drain or close it.
	StreamChat(ctx context.Context, model string, messages []Message) (FragmentStream, error)
}

// FragmentStream is a finite, non-restartable sequence of generated text
// fragments. Recv returns io.EOF once the server signals completion or the
// connection closes cleanly; any other error means the stream died mid-way.
// Text returns everything accumulated so far, so after a clean io.EOF it is
// the complete reply.
type FragmentStream interface {
	Recv() (string, error)
	Text() string
	Close() error
}

// ConversationStore defines conversation persistence. Every operation except
// Create is filtered by owner id, so a caller can only list, load, update or
// delete its own conversations.
type ConversationStore interface {
	// Create persists a new conversation and returns its generated id.
	Create(ctx context.Context, owner OwnerID, messages []Message, modelUsed string) (ConversationID, error)

	// Update replaces the stored transcript and refreshes updated_at.
	// Returns false when id does not exist or belongs to another owner.
	Update(ctx context.Context, owner OwnerID, id ConversationID, messages []Message) (bool, error)

	// ListRecent returns the owner's conversations, newest first by
	// created_at.
	ListRecent(ctx context.Context, owner OwnerID, limit int) ([]ConversationSummary, error)

	// Get returns the full conversation, or nil when not found or not owned.
	Get(ctx context.Context, owner OwnerID, id ConversationID) (*Conversation, error)

	// Delete removes the conversation. True iff an owned record existed.
	Delete(ctx context.Context, owner OwnerID, id ConversationID) (bool, error)
}
