package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/vbonduro/imgassist/internal/mode"
	"github.com/vbonduro/imgassist/internal/service"
	"github.com/vbonduro/imgassist/internal/session"
)

const maxUploadSize = 20 * 1024 * 1024 // 20 MB

// modelContext detaches a command from the request: an in-flight model call
// runs to completion even if the browser goes away.
func modelContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// done finishes a command with a redirect back to the page. A failed command
// leaves its message for the next render.
func (s *Server) done(w http.ResponseWriter, r *http.Request, sess *session.Session, op string, err error) {
	if err != nil {
		s.logger.Info("command failed", "op", op, "session_id", sess.ID(), "error", err)
		sess.SetFlash(service.UserMessage(err))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	view := s.service.Render(modelContext(r), sessionFrom(r))
	if err := s.renderPage(w, view, "base.html", "pages/index.html", "partials/history.html"); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image file required", http.StatusBadRequest)
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		s.logger.Error("read upload failed", "session_id", sess.ID(), "error", err)
		return
	}

	err = s.service.Upload(sess, header.Filename, header.Header.Get("Content-Type"), data)
	s.done(w, r, sess, "upload", err)
}

func (s *Server) handleSelectMode(w http.ResponseWriter, r *http.Request) {
	m, err := mode.Parse(r.FormValue("mode"))
	if err != nil {
		http.Error(w, "unknown mode", http.StatusBadRequest)
		return
	}
	sess := sessionFrom(r)
	s.service.SelectMode(sess, m)
	s.done(w, r, sess, "select mode", nil)
}

func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	err := s.service.SubmitTurn(modelContext(r), sess, r.FormValue("text"))
	if errors.Is(err, service.ErrInputRejected) {
		http.Error(w, service.UserMessage(err), http.StatusForbidden)
		return
	}
	s.done(w, r, sess, "submit turn", err)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	err := s.service.Regenerate(modelContext(r), sess)
	s.done(w, r, sess, "regenerate", err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	s.service.Reset(sess)
	s.done(w, r, sess, "reset", nil)
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
