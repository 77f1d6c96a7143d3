// Package gemini implements chat.Client on the Gemini API through the genai
// SDK. The transcript is held client-side and resent with every turn.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/vbonduro/imgassist/internal/chat"
)

type Client struct {
	client *genai.Client
	model  string
}

// Config holds what NewClient needs. BaseURL is empty for the public endpoint.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{client: client, model: cfg.Model}, nil
}

func (c *Client) StartChat(_ context.Context, img *chat.Image) (chat.Handle, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, &chat.ServiceError{Op: "gemini start chat", Kind: chat.KindContent, Err: fmt.Errorf("empty image")}
	}
	return &handle{
		client: c,
		image:  &genai.Part{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
	}, nil
}

type handle struct {
	client   *Client
	image    *genai.Part
	contents []*genai.Content
}

func (h *handle) Send(ctx context.Context, text string) (string, error) {
	parts := []*genai.Part{{Text: text}}
	if len(h.contents) == 0 {
		parts = append([]*genai.Part{h.image}, parts...)
	}
	turn := &genai.Content{Role: genai.RoleUser, Parts: parts}

	contents := make([]*genai.Content, 0, len(h.contents)+1)
	contents = append(contents, h.contents...)
	contents = append(contents, turn)

	res, err := h.client.client.Models.GenerateContent(ctx, h.client.model, contents, nil)
	if err != nil {
		return "", chat.NewServiceError("gemini send", statusOf(err), fmt.Errorf("gemini generate content: %w", err))
	}

	reply := res.Text()
	if reply == "" {
		return "", &chat.ServiceError{Op: "gemini send", Kind: chat.KindContent, Err: fmt.Errorf("gemini returned empty text")}
	}

	h.contents = append(contents, genai.NewContentFromText(reply, genai.RoleModel))
	return reply, nil
}

func statusOf(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
