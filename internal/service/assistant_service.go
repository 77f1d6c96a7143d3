package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vbonduro/imgassist/internal/chat"
	"github.com/vbonduro/imgassist/internal/imaging"
	"github.com/vbonduro/imgassist/internal/mode"
	"github.com/vbonduro/imgassist/internal/session"
)

var (
	ErrNoImage       = errors.New("no image uploaded")
	ErrNotReady      = errors.New("this mode has not answered yet")
	ErrEmptyTurn     = errors.New("message is empty")
	ErrInputRejected = errors.New("this mode does not accept questions about the current image")
	ErrNoRegenerate  = errors.New("this mode has no regenerate action")
)

// AssistantService is the mode controller. Every command takes the session it
// acts on; the service itself holds no per-user state.
type AssistantService struct {
	chat   chat.Client
	modes  *mode.Table
	maxDim int
	logger *slog.Logger
}

func NewAssistantService(client chat.Client, modes *mode.Table, maxDim int, logger *slog.Logger) *AssistantService {
	return &AssistantService{
		chat:   client,
		modes:  modes,
		maxDim: maxDim,
		logger: logger,
	}
}

func (s *AssistantService) log(sess *session.Session) *slog.Logger {
	return s.logger.With("session_id", sess.ID(), "mode", sess.Mode().Key())
}

// SelectMode makes m active. It never touches conversation state.
func (s *AssistantService) SelectMode(sess *session.Session, m mode.Mode) {
	if sess.SetMode(m) {
		s.log(sess).Debug("mode selected")
	}
}

// Upload validates and stores a new image. A file with a different name than
// the current image drops every mode's conversation; the same name only
// refreshes the payload. Rejected uploads leave the session untouched.
func (s *AssistantService) Upload(sess *session.Session, name, declaredMIME string, data []byte) error {
	img, err := imaging.Prepare(name, declaredMIME, data, s.maxDim)
	if err != nil {
		s.log(sess).Info("upload rejected", "file", name, "declared_mime", declaredMIME, "error", err)
		return err
	}

	if cur, ok := sess.Image(); !ok || cur.Name != img.Name {
		sess.ClearOnNewImage()
		s.log(sess).Info("new image", "file", img.Name, "mime_type", img.MIMEType, "bytes", len(img.Data))
	}
	sess.SetImage(img)
	return nil
}

// Visit is the first-render transition for the active mode: it starts and
// seeds the mode's chat if the mode has none for the current image, and
// otherwise returns the existing state untouched.
func (s *AssistantService) Visit(ctx context.Context, sess *session.Session) (*session.ModeState, error) {
	m := sess.Mode()
	img, ok := sess.Image()
	if !ok {
		return nil, ErrNoImage
	}
	if st, ok := sess.State(m); ok {
		return st, nil
	}

	logger := s.log(sess)
	st := &session.ModeState{Phase: session.Seeding}
	sess.PutState(m, st)

	logger.Info("starting chat", "file", img.Name)
	h, err := s.chat.StartChat(ctx, img)
	if err != nil {
		sess.DropState(m)
		logger.Error("start chat failed", "error", err)
		return nil, fmt.Errorf("failed to start chat: %w", err)
	}

	reply, err := h.Send(ctx, s.modes.SeedPrompt(m))
	if err != nil {
		sess.DropState(m)
		logger.Error("seed prompt failed", "error", err)
		return nil, fmt.Errorf("failed to send seed prompt: %w", err)
	}

	st.Handle = h
	st.History = []session.Turn{{Role: chat.RoleAssistant, Text: reply}}
	st.OutOfContext = s.modes.OutOfContext(m, reply)
	st.Phase = session.Ready
	logger.Info("mode seeded", "out_of_context", st.OutOfContext)
	return st, nil
}

// ready returns the active mode's state when it can take another turn.
func (s *AssistantService) ready(sess *session.Session) (*session.ModeState, error) {
	if _, ok := sess.Image(); !ok {
		return nil, ErrNoImage
	}
	st, ok := sess.State(sess.Mode())
	if !ok || st.Phase != session.Ready {
		return nil, ErrNotReady
	}
	if st.OutOfContext {
		return nil, ErrInputRejected
	}
	return st, nil
}

// SubmitTurn sends user text on the active mode's chat and records the
// exchange. A failed call records nothing so the user can resend.
func (s *AssistantService) SubmitTurn(ctx context.Context, sess *session.Session, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyTurn
	}
	st, err := s.ready(sess)
	if err != nil {
		return err
	}

	st.Phase = session.AwaitingReply
	reply, err := st.Handle.Send(ctx, text)
	st.Phase = session.Ready
	if err != nil {
		s.log(sess).Error("turn failed", "error", err)
		return fmt.Errorf("failed to send turn: %w", err)
	}

	st.History = append(st.History,
		session.Turn{Role: chat.RoleUser, Text: text},
		session.Turn{Role: chat.RoleAssistant, Text: reply},
	)
	s.log(sess).Debug("turn complete", "history_len", len(st.History))
	return nil
}

// Regenerate asks the active mode for another answer. Depending on the mode it
// replaces the latest answer or adds a new one.
func (s *AssistantService) Regenerate(ctx context.Context, sess *session.Session) error {
	regen := s.modes.Spec(sess.Mode()).Regenerate
	if regen == nil {
		return ErrNoRegenerate
	}
	st, err := s.ready(sess)
	if err != nil {
		return err
	}

	st.Phase = session.AwaitingReply
	reply, err := st.Handle.Send(ctx, regen.Prompt)
	st.Phase = session.Ready
	if err != nil {
		s.log(sess).Error("regenerate failed", "error", err)
		return fmt.Errorf("failed to regenerate: %w", err)
	}

	if regen.Replace {
		for i := len(st.History) - 1; i >= 0; i-- {
			if st.History[i].Role == chat.RoleAssistant {
				st.History[i].Text = reply
				return nil
			}
		}
	}
	st.History = append(st.History, session.Turn{Role: chat.RoleAssistant, Text: reply})
	return nil
}

// Reset forgets the image and every conversation and bumps the uploader key.
func (s *AssistantService) Reset(sess *session.Session) {
	sess.ClearAll()
	s.log(sess).Info("session reset", "uploader_key", sess.UploaderKey())
}
