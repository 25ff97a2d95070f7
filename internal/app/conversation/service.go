package conversation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/mesami8/llmchatapp/internal/domain"
	"github.com/mesami8/llmchatapp/internal/observability"
)

// DefaultHistoryLimit bounds the history list when the caller does not ask
// for a specific size.
const DefaultHistoryLimit = 20

// ErrConversationNotFound is returned by Load when the requested conversation
// does not exist or belongs to another owner.
var ErrConversationNotFound = errors.New("conversation not found")

// Service orchestrates one chat turn at a time: relay the transcript to the
// inference server, stream the reply back, keep the transcript and its
// persisted copy in sync. Store errors never escape as faults; they degrade
// to empty/absent/false results with a logged notice, so the session stays
// usable whatever the store does.
type Service struct {
	llm          domain.InferenceClient
	store        domain.ConversationStore // nil when persistence is disabled
	defaultModel string
}

func NewService(llm domain.InferenceClient, store domain.ConversationStore, defaultModel string) *Service {
	return &Service{
		llm:          llm,
		store:        store,
		defaultModel: defaultModel,
	}
}

// PersistenceEnabled reports whether a backing store is wired in.
func (s *Service) PersistenceEnabled() bool {
	return s.store != nil
}

// Session holds the state of one interactive chat session: the in-memory
// transcript, the selected model and the id of the saved conversation, if
// any. The transcript is owned exclusively by the session; the persisted
// conversation is its durable projection and may lag behind until a save
// reconciles them.
//
// The mutex serializes every operation, so a second Send on the same session
// blocks until the current stream is fully drained.
type Session struct {
	mu sync.Mutex

	OwnerID       domain.OwnerID
	Transcript    []domain.Message
	SelectedModel string
	ActiveID      domain.ConversationID // empty until first save
}

// NewSession creates an empty session for the given owner.
func (s *Service) NewSession(owner domain.OwnerID) *Session {
	return &Session{
		OwnerID:       owner,
		SelectedModel: s.defaultModel,
	}
}

// Models lists the models installed on the inference server. Fails open: any
// transport or decode error is logged as a warning and an empty list is
// returned, so the UI can fall back to manual model entry.
func (s *Service) Models(ctx context.Context) []string {
	models, err := s.llm.ListModels(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("could not list models", "error", err)
		return nil
	}
	return models
}

// Status probes the inference server and reports whether persistence is
// available. Used for the connection indicators in the sidebar.
func (s *Service) Status(ctx context.Context) (inferenceOK, persistenceOK bool) {
	_, err := s.llm.ListModels(ctx)
	return err == nil, s.store != nil
}

// SelectModel switches the model used for subsequent sends. Empty names are
// ignored.
func (s *Service) SelectModel(sess *Session, model string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if strings.TrimSpace(model) == "" {
		return
	}
	sess.SelectedModel = model
}

// Snapshot returns a copy of the transcript plus the session metadata.
func (s *Service) Snapshot(sess *Session) (messages []domain.Message, model string, activeID domain.ConversationID) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return append([]domain.Message(nil), sess.Transcript...), sess.SelectedModel, sess.ActiveID
}

// Send appends the user message, relays the streamed reply fragment by
// fragment through onFragment, and appends the accumulated full text as the
// assistant message once the stream is exhausted. The append is a side effect
// of draining the stream to completion, not of issuing the request: a
// mid-stream failure leaves the user message in place, appends nothing for
// the assistant, and surfaces the error. No retry is attempted.
//
// When the session already has a saved conversation, the updated transcript
// is auto-saved after the exchange; a failing auto-save is reported via the
// returned saved flag, not as an error.
func (s *Service) Send(ctx context.Context, sess *Session, text string, onFragment func(string)) (saved bool, err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	model := sess.SelectedModel
	if model == "" {
		model = s.defaultModel
	}

	log := observability.LoggerFromContext(ctx).With(
		"owner_id", sess.OwnerID,
		"model", model,
	)

	sess.Transcript = append(sess.Transcript, domain.Message{Role: domain.RoleUser, Content: text})

	stream, err := s.llm.StreamChat(ctx, model, sess.Transcript)
	if err != nil {
		log.Error("stream request failed", "error", err)
		return false, err
	}
	defer stream.Close()

	for {
		fragment, recvErr := stream.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			log.Error("stream terminated", "error", recvErr)
			return false, recvErr
		}
		if onFragment != nil {
			onFragment(fragment)
		}
	}

	sess.Transcript = append(sess.Transcript, domain.Message{Role: domain.RoleAssistant, Content: stream.Text()})

	if sess.ActiveID != "" {
		saved = s.update(ctx, sess)
	}

	log.Info("exchange completed", "transcript_len", len(sess.Transcript), "auto_saved", saved)

	return saved, nil
}

// Save persists the transcript: the first save creates the conversation and
// associates its id with the session, later saves update it in place. A
// session with nothing to save, or no store to save to, reports false.
func (s *Service) Save(ctx context.Context, sess *Session) (domain.ConversationID, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if s.store == nil || len(sess.Transcript) == 0 {
		return sess.ActiveID, false
	}

	if sess.ActiveID != "" {
		return sess.ActiveID, s.update(ctx, sess)
	}

	id, err := s.store.Create(ctx, sess.OwnerID, sess.Transcript, sess.SelectedModel)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("conversation create failed", "error", err)
		return "", false
	}

	sess.ActiveID = id
	return id, true
}

// History returns the owner's recent conversations, newest first. Fail-soft:
// a store error is logged and an empty list returned.
func (s *Service) History(ctx context.Context, sess *Session, limit int) []domain.ConversationSummary {
	if s.store == nil {
		return nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	summaries, err := s.store.ListRecent(ctx, sess.OwnerID, limit)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("history listing failed", "error", err)
		return nil
	}
	return summaries
}

// Load replaces the session transcript and model selection with a saved
// conversation. Returns ErrConversationNotFound when the conversation does
// not exist, is not owned by this session, or the store is unavailable.
func (s *Service) Load(ctx context.Context, sess *Session, id domain.ConversationID) (*domain.Conversation, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if s.store == nil {
		return nil, ErrConversationNotFound
	}

	conv, err := s.store.Get(ctx, sess.OwnerID, id)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("conversation load failed", "conversation_id", id, "error", err)
		return nil, ErrConversationNotFound
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	sess.Transcript = append([]domain.Message(nil), conv.Messages...)
	if conv.ModelUsed != "" {
		sess.SelectedModel = conv.ModelUsed
	} else {
		sess.SelectedModel = s.defaultModel
	}
	sess.ActiveID = conv.ID

	return conv, nil
}

// DeleteActive deletes the saved conversation associated with the session.
// On success the transcript and association are cleared. Reports false when
// there is nothing saved to delete or the store refuses.
func (s *Service) DeleteActive(ctx context.Context, sess *Session) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if s.store == nil || sess.ActiveID == "" {
		return false
	}

	ok, err := s.store.Delete(ctx, sess.OwnerID, sess.ActiveID)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("conversation delete failed", "conversation_id", sess.ActiveID, "error", err)
		return false
	}
	if ok {
		sess.Transcript = nil
		sess.ActiveID = ""
	}
	return ok
}

// Reset clears the transcript and the saved-conversation association
// unconditionally. The persisted copy, if any, is left untouched. The model
// selection survives the reset, like in the sidebar's "New Chat".
func (s *Service) Reset(sess *Session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.Transcript = nil
	sess.ActiveID = ""
}

// update pushes the current transcript to the store. Fail-soft. Caller holds
// the session lock.
func (s *Service) update(ctx context.Context, sess *Session) bool {
	if s.store == nil {
		return false
	}

	ok, err := s.store.Update(ctx, sess.OwnerID, sess.ActiveID, sess.Transcript)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("conversation update failed", "conversation_id", sess.ActiveID, "error", err)
		return false
	}
	return ok
}
