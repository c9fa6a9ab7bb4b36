package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"BountyScanner/internal/config"
	"BountyScanner/internal/domain"
	"BountyScanner/internal/ports"
)

const apiBase = "https://slack.com/api"

// Notifier delivers digests via the Slack bot API (primary, with thread
// continuations) and an incoming webhook (fallback, single message).
type Notifier struct {
	botToken   string
	webhookURL string
	channel    string
	unfurl     bool
	client     *http.Client
	apiBase    string
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers transport credentials and the target channel.
func NewNotifier(cfg config.SlackConfig) *Notifier {
	return &Notifier{
		botToken:   cfg.BotToken,
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		unfurl:     cfg.Unfurl,
		client:     &http.Client{Timeout: 15 * time.Second},
		apiBase:    apiBase,
	}
}

// HasPrimary reports whether bot-API credentials are configured.
func (n *Notifier) HasPrimary() bool {
	return n.botToken != ""
}

// HasFallback reports whether a webhook is configured.
func (n *Notifier) HasFallback() bool {
	return n.webhookURL != ""
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	TS      string `json:"ts"`
	Error   string `json:"error"`
	Message struct {
		TS string `json:"ts"`
	} `json:"message"`
}

// SendPrimary posts to the channel via chat.postMessage and returns the
// message timestamp, which doubles as the thread handle.
func (n *Notifier) SendPrimary(ctx context.Context, text string) (string, error) {
	resp, err := n.postMessage(ctx, text, "")
	if err != nil {
		return "", err
	}
	ts := resp.TS
	if ts == "" {
		ts = resp.Message.TS
	}
	return ts, nil
}

// SendThread posts a continuation message into an existing thread.
func (n *Notifier) SendThread(ctx context.Context, thread, text string) error {
	_, err := n.postMessage(ctx, text, thread)
	return err
}

func (n *Notifier) postMessage(ctx context.Context, text, thread string) (apiResponse, error) {
	if n.botToken == "" {
		return apiResponse{}, fmt.Errorf("no bot token: %w", domain.ErrTransport)
	}

	payload := map[string]any{
		"channel": n.channel,
		"text":    text,
	}
	if thread != "" {
		payload["thread_ts"] = thread
	}
	if !n.unfurl {
		payload["unfurl_links"] = false
		payload["unfurl_media"] = false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apiResponse{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiBase+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return apiResponse{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.botToken)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := n.client.Do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("chat.postMessage: %w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return apiResponse{}, fmt.Errorf("chat.postMessage status %d: %w: %w", resp.StatusCode, domain.ErrTransport, err)
	}
	if !decoded.OK {
		return apiResponse{}, fmt.Errorf("chat.postMessage: %s: %w", decoded.Error, domain.ErrTransport)
	}
	return decoded, nil
}

// SendFallback posts the text to the incoming webhook as one message.
// Slack answers webhook calls with a bare "ok" body.
func (n *Notifier) SendFallback(ctx context.Context, text string) error {
	if n.webhookURL == "" {
		return fmt.Errorf("no webhook configured: %w", domain.ErrTransport)
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 128))
	answer := strings.TrimSpace(string(raw))
	if resp.StatusCode != http.StatusOK || (answer != "ok" && answer != "") {
		return fmt.Errorf("webhook status %d (%s): %w", resp.StatusCode, answer, domain.ErrTransport)
	}
	return nil
}

// Upload attaches a file to the channel via files.upload.
func (n *Notifier) Upload(ctx context.Context, path, title string) error {
	if n.botToken == "" {
		return fmt.Errorf("no bot token: %w", domain.ErrTransport)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy export: %w", err)
	}
	_ = form.WriteField("channels", n.channel)
	_ = form.WriteField("filename", filepath.Base(path))
	_ = form.WriteField("title", title)
	if err := form.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiBase+"/files.upload", &buf)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.botToken)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("files.upload: %w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("files.upload status %d: %w: %w", resp.StatusCode, domain.ErrTransport, err)
	}
	if !decoded.OK {
		return fmt.Errorf("files.upload: %s: %w", decoded.Error, domain.ErrTransport)
	}
	return nil
}
