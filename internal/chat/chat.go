// Package chat defines the multimodal conversation capability the assistant is
// built on. A Client starts a Handle seeded with an image; the Handle then
// carries the conversation one text turn at a time.
package chat

import (
	"context"
	"encoding/base64"
)

type Client interface {
	// StartChat opens a conversation about img. No model call is required to
	// happen yet; the image travels with the first turn.
	StartChat(ctx context.Context, img *Image) (Handle, error)
}

// Handle is a live conversation. Send commits the turn and the reply to the
// handle's context only when the call succeeds, so a failed turn can be
// resent without duplicating it.
type Handle interface {
	Send(ctx context.Context, text string) (string, error)
}

// Image is the uploaded picture in its transport-safe form.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Base64 returns the payload in standard base64 encoding.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI returns a data: URI suitable for an <img src>.
func (i *Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64()
}

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one committed turn inside a handle's own context.
type Message struct {
	Role Role
	Text string
}
