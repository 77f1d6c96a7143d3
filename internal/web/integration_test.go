package web_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/imgassist/internal/chat"
	"github.com/vbonduro/imgassist/internal/imaging"
	"github.com/vbonduro/imgassist/internal/mode"
	"github.com/vbonduro/imgassist/internal/service"
	"github.com/vbonduro/imgassist/internal/session"
	"github.com/vbonduro/imgassist/internal/web"
	"github.com/vbonduro/imgassist/internal/web/templates"
)

var seeds = mode.Default()

// recordingChat records every text sent on any handle and answers through
// reply. If gate is set, Send signals entered and blocks until gate closes.
type recordingChat struct {
	mu      sync.Mutex
	starts  int
	sent    []string
	reply   func(text string) string
	gate    chan struct{}
	entered chan struct{}
}

func (c *recordingChat) StartChat(_ context.Context, _ *chat.Image) (chat.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	return &recordingHandle{chat: c}, nil
}

func (c *recordingChat) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func (c *recordingChat) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type recordingHandle struct {
	chat *recordingChat
}

func (h *recordingHandle) Send(_ context.Context, text string) (string, error) {
	if h.chat.gate != nil {
		h.chat.entered <- struct{}{}
		<-h.chat.gate
	}
	h.chat.mu.Lock()
	defer h.chat.mu.Unlock()
	h.chat.sent = append(h.chat.sent, text)
	if h.chat.reply != nil {
		return h.chat.reply(text), nil
	}
	return "reply to " + text, nil
}

// newTestServer sets up a real web.Server around the provided chat stub.
func newTestServer(t *testing.T, client chat.Client) *httptest.Server {
	t.Helper()
	svc := service.NewAssistantService(client, mode.Default(), imaging.DefaultMaxDim, slog.Default())
	srv := httptest.NewServer(web.NewServer(svc, session.NewRegistry(session.DefaultTTL), templates.FS, slog.Default()))
	t.Cleanup(srv.Close)
	return srv
}

// newBrowser returns a client that keeps cookies and follows redirects.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

// buildMultipartBody creates a multipart/form-data body with an "image" field.
func buildMultipartBody(t *testing.T, filename, mimeType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filename))
	h.Set("Content-Type", mimeType)
	fw, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func readPage(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	return string(b)
}

func uploadFile(t *testing.T, b *http.Client, srv *httptest.Server, filename, mimeType string, data []byte) string {
	t.Helper()
	body, contentType := buildMultipartBody(t, filename, mimeType, data)
	resp, err := b.Post(srv.URL+"/upload", contentType, body)
	require.NoError(t, err)
	return readPage(t, resp)
}

func postForm(t *testing.T, b *http.Client, srv *httptest.Server, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := b.PostForm(srv.URL+path, form)
	require.NoError(t, err)
	return resp
}

func TestIntegration_CaptionThenReset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := &recordingChat{reply: func(string) string { return "Five captions for a cat" }}
	srv := newTestServer(t, client)
	b := newBrowser(t)

	page := readPage(t, postForm(t, b, srv, "/mode", url.Values{"mode": {"caption"}}))
	assert.Contains(t, page, "Please upload an image")
	assert.Contains(t, page, `id="upload-0"`)

	page = uploadFile(t, b, srv, "cat.png", "image/png", pngImage(t))
	assert.Contains(t, page, "Five captions for a cat")
	assert.Contains(t, page, "Generate another caption")
	assert.Contains(t, page, "data:image/png;base64,")
	assert.Equal(t, []string{seeds.SeedPrompt(mode.Caption)}, client.Sent())

	resp, err := b.Get(srv.URL + "/")
	require.NoError(t, err)
	readPage(t, resp)
	assert.Len(t, client.Sent(), 1)

	page = readPage(t, postForm(t, b, srv, "/reset", nil))
	assert.NotContains(t, page, "Five captions for a cat")
	assert.Contains(t, page, `id="upload-1"`)
	assert.Contains(t, page, "Please upload an image")
}

func TestIntegration_InvalidUpload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := &recordingChat{}
	srv := newTestServer(t, client)
	b := newBrowser(t)

	page := uploadFile(t, b, srv, "doc.pdf", "application/pdf", []byte("%PDF-1.4 not an image"))
	assert.Contains(t, page, "Invalid file type! Please upload JPG or PNG.")
	assert.Contains(t, page, "Please upload an image")
	assert.Zero(t, client.Starts())
}

func TestIntegration_ChatTurn(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := &recordingChat{}
	srv := newTestServer(t, client)
	b := newBrowser(t)
	uploadFile(t, b, srv, "cat.png", "image/png", pngImage(t))

	page := readPage(t, postForm(t, b, srv, "/turn", url.Values{"text": {"what breed is it?"}}))

	assert.Contains(t, page, "what breed is it?")
	assert.Contains(t, page, "reply to what breed is it?")
	assert.Equal(t, 1, client.Starts())
	assert.Equal(t, []string{seeds.SeedPrompt(mode.Chat), "what breed is it?"}, client.Sent())
}

func TestIntegration_OutOfContextRecipe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := &recordingChat{reply: func(text string) string {
		if text == seeds.SeedPrompt(mode.Recipe) {
			return "Out of context image: No food found to generate a recipe."
		}
		return "a description"
	}}
	srv := newTestServer(t, client)
	b := newBrowser(t)
	uploadFile(t, b, srv, "car.png", "image/png", pngImage(t))

	page := readPage(t, postForm(t, b, srv, "/mode", url.Values{"mode": {"recipe"}}))
	assert.Contains(t, page, "No food found to generate a recipe.")
	assert.NotContains(t, page, `name="text"`)
	assert.NotContains(t, page, "Suggest a different dish")

	sentBefore := len(client.Sent())
	resp := postForm(t, b, srv, "/turn", url.Values{"text": {"pasta?"}})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Len(t, client.Sent(), sentBefore)

	// Chat mode for the same image still takes questions.
	page = readPage(t, postForm(t, b, srv, "/mode", url.Values{"mode": {"chat"}}))
	assert.Contains(t, page, `name="text"`)
}

func TestIntegration_NewImageReseeds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := &recordingChat{}
	srv := newTestServer(t, client)
	b := newBrowser(t)

	uploadFile(t, b, srv, "a.png", "image/png", pngImage(t))
	uploadFile(t, b, srv, "a.png", "image/png", pngImage(t))
	assert.Equal(t, 1, client.Starts())

	uploadFile(t, b, srv, "b.png", "image/png", pngImage(t))
	assert.Equal(t, 2, client.Starts())
}

func TestIntegration_SessionsAreIsolated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := newTestServer(t, &recordingChat{})
	alice, bob := newBrowser(t), newBrowser(t)

	uploadFile(t, alice, srv, "cat.png", "image/png", pngImage(t))

	resp, err := bob.Get(srv.URL + "/")
	require.NoError(t, err)
	page := readPage(t, resp)
	assert.Contains(t, page, "Please upload an image")
	assert.NotContains(t, page, "data:image/png;base64,")
}

func TestIntegration_BusySessionRefused(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := &recordingChat{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	srv := newTestServer(t, client)
	b := newBrowser(t)

	// Establish the session cookie without triggering a model call.
	readPage(t, postForm(t, b, srv, "/mode", url.Values{"mode": {"chat"}}))

	body, contentType := buildMultipartBody(t, "cat.png", "image/png", pngImage(t))
	result := make(chan *http.Response, 1)
	go func() {
		resp, err := b.Post(srv.URL+"/upload", contentType, body)
		if err != nil {
			result <- nil
			return
		}
		result <- resp
	}()

	<-client.entered
	resp := postForm(t, b, srv, "/turn", url.Values{"text": {"hello"}})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(client.gate)
	first := <-result
	require.NotNil(t, first)
	page := readPage(t, first)
	assert.Contains(t, page, "reply to ")
}

func TestIntegration_UnknownMode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := newTestServer(t, &recordingChat{})
	resp := postForm(t, newBrowser(t), srv, "/mode", url.Values{"mode": {"karaoke"}})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIntegration_Health(t *testing.T) {
	srv := newTestServer(t, &recordingChat{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(b), `"status":"ok"`))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}
