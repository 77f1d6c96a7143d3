package web

import (
	"context"
	"net/http"

	"github.com/vbonduro/imgassist/internal/session"
)

const sessionCookie = "imgassist_session"

type ctxKey struct{}

// withSession attaches the caller's session, creating one and setting the
// cookie when the request carries no live session.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(sessionCookie); err == nil {
			id = c.Value
		}

		sess, created := s.sessions.GetOrCreate(id)
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    sess.ID(),
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			s.logger.Debug("session created", "session_id", sess.ID())
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

// oneAtATime refuses a request while the same session is still busy with an
// earlier one.
func (s *Server) oneAtATime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r)
		end, ok := sess.Begin()
		if !ok {
			http.Error(w, "still working on your previous request", http.StatusConflict)
			return
		}
		defer end()
		next.ServeHTTP(w, r)
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(ctxKey{}).(*session.Session)
}
