package service

import (
	"context"
	"errors"

	"github.com/vbonduro/imgassist/internal/chat"
	"github.com/vbonduro/imgassist/internal/imaging"
	"github.com/vbonduro/imgassist/internal/mode"
	"github.com/vbonduro/imgassist/internal/session"
)

// View is everything the page needs to draw one session.
type View struct {
	Modes       []mode.Spec
	Active      mode.Spec
	UploaderKey int

	HasImage  bool
	ImageName string
	ImageURI  string

	History      []session.Turn
	OutOfContext bool
	InputEnabled bool

	RegenerateLabel string

	// Error is a user-facing message; Retry offers to re-run the mode's first
	// answer after it failed.
	Error string
	Retry bool
}

// Render visits the active mode, seeding it if needed, and builds its view.
// Seeding failures are reported in the view rather than returned.
func (s *AssistantService) Render(ctx context.Context, sess *session.Session) *View {
	spec := s.modes.Spec(sess.Mode())
	v := &View{
		Modes:       s.modes.Specs(),
		Active:      spec,
		UploaderKey: sess.UploaderKey(),
		Error:       sess.TakeFlash(),
	}

	img, ok := sess.Image()
	if !ok {
		return v
	}
	v.HasImage = true
	v.ImageName = img.Name
	v.ImageURI = img.DataURI()

	st, err := s.Visit(ctx, sess)
	if err != nil {
		if v.Error == "" {
			v.Error = UserMessage(err)
		}
		v.Retry = true
		return v
	}

	v.History = st.History
	v.OutOfContext = st.OutOfContext
	v.InputEnabled = !st.OutOfContext
	if spec.Regenerate != nil && !st.OutOfContext {
		v.RegenerateLabel = spec.Regenerate.Label
	}
	return v
}

// UserMessage turns a command error into text fit for the page.
func UserMessage(err error) string {
	var se *chat.ServiceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.UserMessage()
	case errors.Is(err, imaging.ErrUnsupportedType):
		return "❌ Invalid file type! Please upload JPG or PNG."
	case errors.Is(err, imaging.ErrTooLarge):
		return "❌ Image is too large! Please upload one under 50 megapixels."
	case errors.Is(err, imaging.ErrEmpty):
		return "The uploaded file is empty."
	case errors.Is(err, ErrNoImage):
		return "👆 Please upload an image to get started."
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrEmptyTurn),
		errors.Is(err, ErrInputRejected), errors.Is(err, ErrNoRegenerate):
		return capitalise(err.Error()) + "."
	default:
		return "Something went wrong while processing the image. Please try again."
	}
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
