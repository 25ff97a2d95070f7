package conversation_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/mesami8/llmchatapp/internal/adapters/llm"
	"github.com/mesami8/llmchatapp/internal/adapters/storage/memory"
	"github.com/mesami8/llmchatapp/internal/app/conversation"
	"github.com/mesami8/llmchatapp/internal/domain"
)

const testOwner domain.OwnerID = "test-owner"

func newTestService() (*conversation.Service, *memory.ConversationStore) {
	store := memory.NewConversationStore()
	svc := conversation.NewService(llm.NewMockClient(), store, "llama3.2:1b")
	return svc, store
}

func TestTranscriptAlternatesAfterSends(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	sess := svc.NewSession(testOwner)

	const n = 3
	for i := 0; i < n; i++ {
		if _, err := svc.Send(ctx, sess, "question", nil); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	messages, _, _ := svc.Snapshot(sess)
	if len(messages) != 2*n {
		t.Fatalf("expected %d messages after %d sends, got %d", 2*n, n, len(messages))
	}
	for i, m := range messages {
		want := domain.RoleUser
		if i%2 == 1 {
			want = domain.RoleAssistant
		}
		if m.Role != want {
			t.Fatalf("message %d: expected role %q, got %q", i, want, m.Role)
		}
	}
}

func TestSendRelaysFragmentsAndAppendsFullReply(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	sess := svc.NewSession(testOwner)

	var fragments []string
	if _, err := svc.Send(ctx, sess, "hello", func(f string) {
		fragments = append(fragments, f)
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(fragments) == 0 {
		t.Fatal("expected at least one relayed fragment")
	}

	messages, _, _ := svc.Snapshot(sess)
	last := messages[len(messages)-1]
	if last.Role != domain.RoleAssistant {
		t.Fatalf("expected assistant message last, got %q", last.Role)
	}
	if last.Content != strings.Join(fragments, "") {
		t.Fatalf("assistant message %q does not match concatenated fragments %q",
			last.Content, strings.Join(fragments, ""))
	}
}

func TestSaveCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	sess := svc.NewSession(testOwner)

	// Nothing to save on an empty transcript.
	if _, saved := svc.Save(ctx, sess); saved {
		t.Fatal("expected save of empty transcript to report false")
	}

	if _, err := svc.Send(ctx, sess, "hello", nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	id, saved := svc.Save(ctx, sess)
	if !saved || id == "" {
		t.Fatalf("expected first save to create, id=%q saved=%v", id, saved)
	}

	conv, err := store.Get(ctx, testOwner, id)
	if err != nil || conv == nil {
		t.Fatalf("expected persisted conversation, err=%v", err)
	}
	if conv.ModelUsed != "llama3.2:1b" {
		t.Fatalf("unexpected model_used %q", conv.ModelUsed)
	}

	// Second save updates in place, keeping the id.
	if _, err := svc.Send(ctx, sess, "more", nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	id2, saved := svc.Save(ctx, sess)
	if !saved || id2 != id {
		t.Fatalf("expected update with same id, got id=%q saved=%v", id2, saved)
	}

	conv, _ = store.Get(ctx, testOwner, id)
	if len(conv.Messages) != 4 {
		t.Fatalf("expected 4 persisted messages, got %d", len(conv.Messages))
	}
}

func TestAutoSaveAfterExchangeWhenSaved(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	sess := svc.NewSession(testOwner)

	if _, err := svc.Send(ctx, sess, "first", nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Unsaved sessions are not auto-saved.
	id, _ := svc.Save(ctx, sess)

	saved, err := svc.Send(ctx, sess, "second", nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !saved {
		t.Fatal("expected auto-save after the exchange")
	}

	conv, _ := store.Get(ctx, testOwner, id)
	if len(conv.Messages) != 4 {
		t.Fatalf("expected the persisted copy to include the new exchange, got %d messages", len(conv.Messages))
	}
}

func TestLoadReplacesTranscriptAndModel(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	id, err := store.Create(ctx, testOwner, []domain.Message{
		{Role: domain.RoleUser, Content: "saved question"},
		{Role: domain.RoleAssistant, Content: "saved answer"},
	}, "qwen2.5:7b")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sess := svc.NewSession(testOwner)
	if _, err := svc.Load(ctx, sess, id); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	messages, model, activeID := svc.Snapshot(sess)
	if len(messages) != 2 || messages[0].Content != "saved question" {
		t.Fatalf("unexpected transcript: %+v", messages)
	}
	if model != "qwen2.5:7b" {
		t.Fatalf("expected model selection to follow the conversation, got %q", model)
	}
	if activeID != id {
		t.Fatalf("expected session to be associated with %q, got %q", id, activeID)
	}
}

func TestLoadAbsentConversation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	sess := svc.NewSession(testOwner)

	_, err := svc.Load(ctx, sess, "missing")
	if !errors.Is(err, conversation.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestLoadIsScopedToOwner(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	id, _ := store.Create(ctx, "someone-else", []domain.Message{
		{Role: domain.RoleUser, Content: "private"},
	}, "m")

	sess := svc.NewSession(testOwner)
	if _, err := svc.Load(ctx, sess, id); !errors.Is(err, conversation.ErrConversationNotFound) {
		t.Fatalf("expected not-found for a foreign conversation, got %v", err)
	}
}

func TestDeleteActiveClearsSession(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	sess := svc.NewSession(testOwner)

	if _, err := svc.Send(ctx, sess, "hello", nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	id, _ := svc.Save(ctx, sess)

	if !svc.DeleteActive(ctx, sess) {
		t.Fatal("expected delete to succeed")
	}

	messages, _, activeID := svc.Snapshot(sess)
	if len(messages) != 0 || activeID != "" {
		t.Fatalf("expected cleared session, got %d messages, active=%q", len(messages), activeID)
	}

	if conv, _ := store.Get(ctx, testOwner, id); conv != nil {
		t.Fatal("expected the persisted copy to be gone")
	}

	// Nothing saved anymore, so a second delete reports false.
	if svc.DeleteActive(ctx, sess) {
		t.Fatal("expected second delete to report false")
	}
}

func TestResetKeepsPersistedCopy(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	sess := svc.NewSession(testOwner)

	if _, err := svc.Send(ctx, sess, "hello", nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	id, _ := svc.Save(ctx, sess)

	svc.Reset(sess)

	messages, _, activeID := svc.Snapshot(sess)
	if len(messages) != 0 || activeID != "" {
		t.Fatal("expected an empty session after reset")
	}

	if conv, _ := store.Get(ctx, testOwner, id); conv == nil {
		t.Fatal("reset must not touch the persisted copy")
	}
}

func TestHistoryListsOwnConversations(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	sess := svc.NewSession(testOwner)

	_, _ = store.Create(ctx, testOwner, []domain.Message{{Role: domain.RoleUser, Content: "mine"}}, "m")
	_, _ = store.Create(ctx, "someone-else", []domain.Message{{Role: domain.RoleUser, Content: "theirs"}}, "m")

	summaries := svc.History(ctx, sess, 0)
	if len(summaries) != 1 || summaries[0].Preview != "mine" {
		t.Fatalf("unexpected history: %+v", summaries)
	}
}

func TestChattingWorksWithoutStore(t *testing.T) {
	ctx := context.Background()
	svc := conversation.NewService(llm.NewMockClient(), nil, "llama3.2:1b")
	sess := svc.NewSession(testOwner)

	saved, err := svc.Send(ctx, sess, "hello", nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if saved {
		t.Fatal("nothing can be saved without a store")
	}

	if _, ok := svc.Save(ctx, sess); ok {
		t.Fatal("expected save to report false without a store")
	}
	if svc.History(ctx, sess, 0) != nil {
		t.Fatal("expected empty history without a store")
	}
	if svc.PersistenceEnabled() {
		t.Fatal("expected persistence to be reported disabled")
	}
}

// failingClient simulates an unreachable inference server.
type failingClient struct{}

func (failingClient) ListModels(ctx context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func (failingClient) StreamChat(ctx context.Context, model string, messages []domain.Message) (domain.FragmentStream, error) {
	return nil, errors.New("connection refused")
}

func TestModelsFailOpen(t *testing.T) {
	svc := conversation.NewService(failingClient{}, nil, "llama3.2:1b")

	if models := svc.Models(context.Background()); len(models) != 0 {
		t.Fatalf("expected empty model list on failure, got %v", models)
	}
}

func TestSendSurfacesTransportError(t *testing.T) {
	ctx := context.Background()
	svc := conversation.NewService(failingClient{}, nil, "llama3.2:1b")
	sess := svc.NewSession(testOwner)

	if _, err := svc.Send(ctx, sess, "hello", nil); err == nil {
		t.Fatal("expected a transport error")
	}

	// The user message stays in the transcript, no assistant message appears.
	messages, _, _ := svc.Snapshot(sess)
	if len(messages) != 1 || messages[0].Role != domain.RoleUser {
		t.Fatalf("unexpected transcript after failure: %+v", messages)
	}
}

// brokenStream dies mid-way through the reply.
type brokenStream struct {
	sent bool
}

func (s *brokenStream) Recv() (string, error) {
	if !s.sent {
		s.sent = true
		return "partial", nil
	}
	return "", errors.New("connection reset")
}

func (s *brokenStream) Text() string { return "partial" }
func (s *brokenStream) Close() error { return nil }

type brokenStreamClient struct{}

func (brokenStreamClient) ListModels(ctx context.Context) ([]string, error) {
	return nil, io.EOF
}

func (brokenStreamClient) StreamChat(ctx context.Context, model string, messages []domain.Message) (domain.FragmentStream, error) {
	return &brokenStream{}, nil
}

func TestMidStreamFailureAppendsNoAssistantMessage(t *testing.T) {
	ctx := context.Background()
	svc := conversation.NewService(brokenStreamClient{}, nil, "llama3.2:1b")
	sess := svc.NewSession(testOwner)

	if _, err := svc.Send(ctx, sess, "hello", nil); err == nil {
		t.Fatal("expected the mid-stream failure to surface")
	}

	messages, _, _ := svc.Snapshot(sess)
	if len(messages) != 1 {
		t.Fatalf("expected only the user message, got %+v", messages)
	}
}
