package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesami8/llmchatapp/internal/domain"
)

// ConversationStore is a simple in-memory implementation of
// domain.ConversationStore. It is NOT persistent and is only suitable for
// development / local mode and tests.
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[domain.ConversationID]*domain.Conversation
	now   func() time.Time
}

// NewConversationStore creates a new in-memory ConversationStore.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		convs: make(map[domain.ConversationID]*domain.Conversation),
		now:   time.Now,
	}
}

func (s *ConversationStore) Create(ctx context.Context, owner domain.OwnerID, messages []domain.Message, modelUsed string) (domain.ConversationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	id := domain.ConversationID(uuid.NewString())
	s.convs[id] = &domain.Conversation{
		ID:        id,
		OwnerID:   owner,
		Messages:  copyMessages(messages),
		ModelUsed: modelUsed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (s *ConversationStore) Update(ctx context.Context, owner domain.OwnerID, id domain.ConversationID, messages []domain.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok || conv.OwnerID != owner {
		return false, nil
	}

	conv.Messages = copyMessages(messages)
	conv.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *ConversationStore) ListRecent(ctx context.Context, owner domain.OwnerID, limit int) ([]domain.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []*domain.Conversation
	for _, conv := range s.convs {
		if conv.OwnerID == owner {
			owned = append(owned, conv)
		}
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	if limit > 0 && len(owned) > limit {
		owned = owned[:limit]
	}

	out := make([]domain.ConversationSummary, 0, len(owned))
	for _, conv := range owned {
		out = append(out, domain.ConversationSummary{
			ID:        conv.ID,
			Preview:   domain.Preview(conv.Messages),
			ModelUsed: conv.ModelUsed,
			CreatedAt: conv.CreatedAt,
		})
	}
	return out, nil
}

func (s *ConversationStore) Get(ctx context.Context, owner domain.OwnerID, id domain.ConversationID) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok || conv.OwnerID != owner {
		return nil, nil
	}

	// Copy so the caller cannot mutate the stored transcript.
	out := *conv
	out.Messages = copyMessages(conv.Messages)
	return &out, nil
}

func (s *ConversationStore) Delete(ctx context.Context, owner domain.OwnerID, id domain.ConversationID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok || conv.OwnerID != owner {
		return false, nil
	}

	delete(s.convs, id)
	return true, nil
}

func copyMessages(messages []domain.Message) []domain.Message {
	return append([]domain.Message(nil), messages...)
}
