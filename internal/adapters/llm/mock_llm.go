package llm

import (
	"context"
	"io"
	"strings"

	"github.com/mesami8/llmchatapp/internal/domain"
)

// MockClient is a canned inference client, useful for local development
// without a running inference server and for tests.
type MockClient struct {
	Models    []string
	Fragments []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		Models:    []string{"llama3.2:1b"},
		Fragments: []string{"This is a canned reply. ", "Set OLLAMA_URL to talk to a real server."},
	}
}

func (m *MockClient) ListModels(ctx context.Context) ([]string, error) {
	return append([]string(nil), m.Models...), nil
}

func (m *MockClient) StreamChat(ctx context.Context, model string, messages []domain.Message) (domain.FragmentStream, error) {
	return &mockStream{fragments: m.Fragments}, nil
}

type mockStream struct {
	fragments []string
	next      int
	full      strings.Builder
}

func (s *mockStream) Recv() (string, error) {
	if s.next >= len(s.fragments) {
		return "", io.EOF
	}
	f := s.fragments[s.next]
	s.next++
	s.full.WriteString(f)
	return f, nil
}

func (s *mockStream) Text() string { return s.full.String() }

func (s *mockStream) Close() error { return nil }
