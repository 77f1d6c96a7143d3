package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/imgassist/internal/chat"
)

// maxTokens bounds a single reply; a recipe with steps is the longest artifact
// the modes ask for.
const maxTokens = 2048

type Client struct {
	api   *anthropic.Client
	model string
}

// NewClient builds a Claude-backed chat client. Extra SDK options, such as
// anthropic.WithBaseURL, are applied after the HTTP client.
func NewClient(apiKey, model string, timeout time.Duration, opts ...anthropic.ClientOption) *Client {
	sdkOpts := append([]anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: timeout}),
	}, opts...)
	return &Client{
		api:   anthropic.NewClient(apiKey, sdkOpts...),
		model: model,
	}
}

func (c *Client) StartChat(_ context.Context, img *chat.Image) (chat.Handle, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, &chat.ServiceError{Op: "claude start chat", Kind: chat.KindContent, Err: fmt.Errorf("empty image")}
	}
	return &handle{
		client: c,
		image: anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
			anthropic.MessagesContentSourceTypeBase64,
			normaliseMIME(img.MIMEType),
			img.Base64(),
		)),
	}, nil
}

type handle struct {
	client   *Client
	image    anthropic.MessageContent
	messages []anthropic.Message
}

// pending builds the message list for a new user turn without committing it.
func (h *handle) pending(text string) []anthropic.Message {
	content := []anthropic.MessageContent{anthropic.NewTextMessageContent(text)}
	if len(h.messages) == 0 {
		content = append([]anthropic.MessageContent{h.image}, content...)
	}
	msgs := make([]anthropic.Message, 0, len(h.messages)+1)
	msgs = append(msgs, h.messages...)
	return append(msgs, anthropic.Message{Role: anthropic.RoleUser, Content: content})
}

func (h *handle) Send(ctx context.Context, text string) (string, error) {
	msgs := h.pending(text)

	resp, err := h.client.api.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(h.client.model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	})
	if err != nil {
		return "", classify("claude send", fmt.Errorf("failed to call claude: %w", err))
	}

	var reply string
	for _, blk := range resp.Content {
		if blk.Type == anthropic.MessagesContentTypeText {
			reply = blk.GetText()
			break
		}
	}
	// An empty assistant turn would be rejected when replayed, so it is never
	// committed.
	if reply == "" {
		return "", &chat.ServiceError{
			Op:   "claude send",
			Kind: chat.KindContent,
			Err:  fmt.Errorf("claude returned no text (stop reason %q)", resp.StopReason),
		}
	}

	h.messages = append(msgs, anthropic.NewAssistantTextMessage(reply))
	return reply, nil
}

// classify maps SDK errors to a ServiceError. A JSON error body arrives as an
// *anthropic.APIError carrying its type; anything else as a *RequestError
// carrying only the status.
func classify(op string, err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return &chat.ServiceError{Op: op, Kind: kindOf(apiErr), Err: err}
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return chat.NewServiceError(op, reqErr.StatusCode, err)
	}
	return chat.NewServiceError(op, 0, err)
}

func kindOf(e *anthropic.APIError) chat.Kind {
	switch {
	case e.IsAuthenticationErr(), e.IsPermissionErr():
		return chat.KindAuth
	case e.IsRateLimitErr():
		return chat.KindRateLimited
	case e.IsInvalidRequestErr(), e.IsTooLargeErr():
		return chat.KindContent
	default:
		return chat.KindUnavailable
	}
}

// normaliseMIME maps browser MIME types to the values the Anthropic API accepts.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
