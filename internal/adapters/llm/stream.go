package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/mesami8/llmchatapp/internal/observability"
)

// stream decodes the newline-delimited JSON body of a streaming chat
// response. Each non-empty line is an independent object; a line that fails
// to parse is reported and skipped, and the stream continues. The sequence is
// finite and not restartable.
type stream struct {
	ctx    context.Context
	body   io.ReadCloser
	reader *bufio.Reader
	full   strings.Builder
	done   bool
}

// chatLine is one streamed object. Absence of message.content is not an
// error, the line is just skipped.
type chatLine struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	return &stream{
		ctx:    ctx,
		body:   body,
		reader: bufio.NewReader(body),
	}
}

// Recv returns the next content fragment, accumulating it into the full-text
// buffer. io.EOF signals normal end of the sequence; any other error means
// the connection failed mid-stream.
func (s *stream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for {
		if err := s.ctx.Err(); err != nil {
			return "", err
		}

		line, readErr := s.reader.ReadBytes('\n')

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			var parsed chatLine
			if uerr := json.Unmarshal(trimmed, &parsed); uerr != nil {
				observability.LoggerFromContext(s.ctx).Warn("skipping malformed stream line", "error", uerr)
			} else {
				if parsed.Done {
					s.done = true
				}
				if parsed.Message.Content != "" {
					s.full.WriteString(parsed.Message.Content)
					if readErr == io.EOF {
						s.done = true
					}
					return parsed.Message.Content, nil
				}
			}
		}

		if readErr != nil {
			s.done = true
			if readErr == io.EOF {
				return "", io.EOF
			}
			return "", readErr
		}

		if s.done {
			return "", io.EOF
		}
	}
}

// Text returns everything accumulated so far. After a clean io.EOF it is the
// model's complete reply.
func (s *stream) Text() string {
	return s.full.String()
}

func (s *stream) Close() error {
	return s.body.Close()
}
