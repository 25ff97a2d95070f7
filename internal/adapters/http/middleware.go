package httpadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mesami8/llmchatapp/internal/app/conversation"
	"github.com/mesami8/llmchatapp/internal/identity"
	"github.com/mesami8/llmchatapp/internal/observability"
)

const sessionCookieName = "llmchat_session"

// withSession makes sure every request carries a session cookie and stashes
// the matching session state in the request context. The cookie value is the
// seed the owner id is derived from, so the identity survives as long as the
// browser keeps the cookie.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seed := ""
		if c, err := r.Cookie(sessionCookieName); err == nil {
			seed = c.Value
		}
		if seed == "" {
			seed = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    seed,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		sess := s.session(seed)

		ctx := observability.WithSessionID(r.Context(), string(sess.OwnerID))
		ctx = context.WithValue(ctx, sessionCtxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// session returns the state for a seed, creating it on first sight.
func (s *Server) session(seed string) *conversation.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[seed]
	if !ok {
		sess = s.svc.NewSession(identity.NewProvider(seed).OwnerID())
		s.sessions[seed] = sess
	}
	return sess
}

// withLogging wraps a handler, tags the context with a request id and logs
// every request.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := observability.WithRequestID(r.Context(), uuid.NewString())

		next.ServeHTTP(w, r.WithContext(ctx))

		observability.LoggerFromContext(ctx).Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// withCORS adds basic CORS headers to allow calls from a web front-end.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Everything stays open; there is no authentication to protect.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// chainMiddlewares applies multiple middlewares in order.
func chainMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}
