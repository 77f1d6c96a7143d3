// Package session keeps one browser session's assistant state: the current
// image, the active mode, and per-mode conversation state.
package session

import (
	"sync"

	"github.com/vbonduro/imgassist/internal/chat"
	"github.com/vbonduro/imgassist/internal/mode"
)

// Phase is where a mode sits in its conversation lifecycle.
type Phase int

const (
	Uninitialized Phase = iota
	Seeding
	Ready
	AwaitingReply
)

func (p Phase) String() string {
	switch p {
	case Seeding:
		return "seeding"
	case Ready:
		return "ready"
	case AwaitingReply:
		return "awaiting_reply"
	default:
		return "uninitialized"
	}
}

// Turn is one rendered history entry.
type Turn struct {
	Role chat.Role
	Text string
}

// ModeState is the conversation a mode holds for the current image. Handle and
// History are always created and dropped together.
type ModeState struct {
	Handle       chat.Handle
	History      []Turn
	OutOfContext bool
	Phase        Phase
}

type Session struct {
	id    string
	guard sync.Mutex

	image       *chat.Image
	mode        mode.Mode
	states      map[mode.Mode]*ModeState
	uploaderKey int
	flash       string
}

func New(id string) *Session {
	return &Session{
		id:     id,
		mode:   mode.Chat,
		states: make(map[mode.Mode]*ModeState),
	}
}

func (s *Session) ID() string { return s.id }

// Begin claims the session for one interaction. It returns false while another
// interaction is still in flight; otherwise the caller must call the returned
// func when done.
func (s *Session) Begin() (func(), bool) {
	if !s.guard.TryLock() {
		return nil, false
	}
	return s.guard.Unlock, true
}

func (s *Session) Image() (*chat.Image, bool) {
	return s.image, s.image != nil
}

func (s *Session) SetImage(img *chat.Image) {
	s.image = img
}

func (s *Session) Mode() mode.Mode { return s.mode }

// SetMode selects m and reports whether the selection changed.
func (s *Session) SetMode(m mode.Mode) bool {
	if s.mode == m {
		return false
	}
	s.mode = m
	return true
}

// State returns m's conversation state, or false if the mode is uninitialized
// for the current image.
func (s *Session) State(m mode.Mode) (*ModeState, bool) {
	st, ok := s.states[m]
	return st, ok
}

func (s *Session) PutState(m mode.Mode, st *ModeState) {
	s.states[m] = st
}

// DropState returns m to uninitialized.
func (s *Session) DropState(m mode.Mode) {
	delete(s.states, m)
}

// UploaderKey identifies the upload widget instance; a changed value renders a
// fresh, empty widget.
func (s *Session) UploaderKey() int { return s.uploaderKey }

func (s *Session) SetFlash(msg string) { s.flash = msg }

// TakeFlash returns the pending user-visible message and clears it.
func (s *Session) TakeFlash() string {
	msg := s.flash
	s.flash = ""
	return msg
}

// ClearOnNewImage drops every mode's conversation state. The active mode and
// uploader key survive.
func (s *Session) ClearOnNewImage() {
	s.states = make(map[mode.Mode]*ModeState)
}

// ClearAll forgets the image, all mode state and any pending message, then
// bumps the uploader key by one. The active mode selection is kept.
func (s *Session) ClearAll() {
	s.image = nil
	s.flash = ""
	s.ClearOnNewImage()
	s.uploaderKey++
}
