package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mesami8/llmchatapp/internal/domain"
)

const (
	defaultBaseURL = "http://localhost:11434"

	// Bounded timeout for the model-listing call. Streaming chat is
	// open-ended and bounded only by the server's own behavior.
	listModelsTimeout = 5 * time.Second
)

// OllamaClient implements domain.InferenceClient against an Ollama-compatible
// HTTP server.
type OllamaClient struct {
	baseURL string

	// httpClient carries a timeout and serves the short calls; streamClient
	// has none because a generation can legitimately run for minutes.
	httpClient   *http.Client
	streamClient *http.Client
}

// NewOllamaClient creates a client for the given base URL
// (e.g. http://localhost:11434).
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OllamaClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: listModelsTimeout},
		streamClient: &http.Client{},
	}
}

// ─────────────────────────────────────────────
// Wire types
// ─────────────────────────────────────────────

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type listModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type serverError struct {
	Error string `json:"error"`
}

// ─────────────────────────────────────────────
// Operations
// ─────────────────────────────────────────────

// ListModels fetches the installed model names from /api/tags.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama ListModels: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama ListModels: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama ListModels: unexpected status %s", resp.Status)
	}

	var out listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama ListModels decode: %w", err)
	}

	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// StreamChat posts the full transcript to /api/chat with streaming enabled
// and returns the fragment stream. No retry is attempted on failure.
func (c *OllamaClient) StreamChat(ctx context.Context, model string, messages []domain.Message) (domain.FragmentStream, error) {
	msgs := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(chatRequest{Model: model, Messages: msgs, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("ollama StreamChat marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama StreamChat: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama StreamChat: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		// The server reports errors as a JSON object with an "error" field.
		var srvErr serverError
		if err := json.NewDecoder(resp.Body).Decode(&srvErr); err == nil && srvErr.Error != "" {
			return nil, fmt.Errorf("ollama StreamChat: %s", srvErr.Error)
		}
		return nil, fmt.Errorf("ollama StreamChat: unexpected status %s", resp.Status)
	}

	return newStream(ctx, resp.Body), nil
}
