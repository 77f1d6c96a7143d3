package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vbonduro/imgassist/internal/chat"
)

type Client struct {
	host   string
	model  string
	client *http.Client
}

func NewClient(host, model string, timeout time.Duration) *Client {
	return &Client{
		host:   host,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

// StartChat returns a handle that keeps the transcript locally; Ollama's chat
// endpoint is stateless so the whole transcript is resent on every turn.
func (c *Client) StartChat(_ context.Context, img *chat.Image) (chat.Handle, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, &chat.ServiceError{Op: "ollama start chat", Kind: chat.KindContent, Err: fmt.Errorf("empty image")}
	}
	return &handle{client: c, image: img.Base64()}, nil
}

type handle struct {
	client  *Client
	image   string
	history []chat.Message
}

func (h *handle) messages(text string) []chatMessage {
	msgs := make([]chatMessage, 0, len(h.history)+1)
	for _, m := range h.history {
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Text})
	}
	msgs = append(msgs, chatMessage{Role: string(chat.RoleUser), Content: text})
	// The image rides on the first user message.
	msgs[0].Images = []string{h.image}
	return msgs
}

func (h *handle) Send(ctx context.Context, text string) (string, error) {
	reply, err := h.client.do(ctx, h.messages(text))
	if err != nil {
		return "", err
	}
	h.history = append(h.history,
		chat.Message{Role: chat.RoleUser, Text: text},
		chat.Message{Role: chat.RoleAssistant, Text: reply},
	)
	return reply, nil
}

func (c *Client) do(ctx context.Context, msgs []chatMessage) (string, error) {
	const op = "ollama send"

	payload, err := json.Marshal(chatRequest{Model: c.model, Messages: msgs, Stream: false})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", chat.NewServiceError(op, 0, fmt.Errorf("failed to call ollama: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", chat.NewServiceError(op, resp.StatusCode, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, errBody))
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", chat.NewServiceError(op, 0, fmt.Errorf("failed to decode response: %w", err))
	}
	if body.Error != "" {
		return "", chat.NewServiceError(op, 0, fmt.Errorf("ollama: %s", body.Error))
	}

	return body.Message.Content, nil
}
