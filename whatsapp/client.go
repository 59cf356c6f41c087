// Package whatsapp talks to the Green API gateway: sending messages and
// files outbound, and parsing inbound webhook notifications into the
// engine's normalized message form.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/akhmetov/weighbot/core/logger"
	"github.com/akhmetov/weighbot/core/netutil"
)

// maxMessageLen is the Green API per-message text limit. Longer replies are
// split into sequential chunks.
const maxMessageLen = 4000

// APIError is a non-2xx response from the Green API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("green api: status %d: %s", e.Status, e.Body)
}

// HTTPStatus exposes the status code for retry classification.
func (e *APIError) HTTPStatus() int { return e.Status }

// Options configures the Green API client.
type Options struct {
	APIURL     string
	InstanceID string
	Token      string

	HTTPTimeout  time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// Client is a Green API sender. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	retries int
	backoff time.Duration
	http    *http.Client
}

// NewClient validates credentials and builds a client.
func NewClient(opts Options) (*Client, error) {
	if opts.InstanceID == "" || opts.Token == "" {
		return nil, errors.New("whatsapp: instance id and token are required")
	}
	if opts.APIURL == "" {
		opts.APIURL = "https://api.green-api.com"
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 10 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	return &Client{
		baseURL: fmt.Sprintf("%s/waInstance%s", strings.TrimRight(opts.APIURL, "/"), opts.InstanceID),
		token:   opts.Token,
		retries: opts.Retries,
		backoff: opts.RetryBackoff,
		http:    &http.Client{Timeout: opts.HTTPTimeout},
	}, nil
}

// ChatID converts a phone identity to the personal chat form. Identities
// already carrying a chat suffix pass through unchanged, so group ids work
// too.
func ChatID(identity string) string {
	if strings.Contains(identity, "@") {
		return identity
	}
	return identity + "@c.us"
}

// SendMessage delivers text to the chat, splitting it into chunks when it
// exceeds the API limit. Chunks are sent in order; the first failure aborts
// the rest.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		payload := map[string]any{
			"chatId":  chatID,
			"message": chunk,
		}
		if err := c.post(ctx, "sendMessage", payload); err != nil {
			return err
		}
	}
	return nil
}

// SendFileByURL delivers a remote file to the chat with a caption. The
// gateway downloads the file itself; only the URL travels here.
func (c *Client) SendFileByURL(ctx context.Context, chatID, fileURL, fileName, caption string) error {
	payload := map[string]any{
		"chatId":   chatID,
		"urlFile":  fileURL,
		"fileName": fileName,
		"caption":  caption,
	}
	return c.post(ctx, "sendFileByUrl", payload)
}

func (c *Client) post(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal %s: %w", method, err)
	}
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, method, c.token)

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(c.backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = c.doOnce(ctx, method, url, body)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			break
		}
		logger.WA.Debug("request retry",
			slog.String("event", "wa.retry"),
			slog.String("op", method),
			slog.Int("attempts", attempt+1),
		)
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &APIError{Status: resp.StatusCode, Body: logger.Sanitize(string(raw))}
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return netutil.ShouldRetry(err)
}

// splitMessage cuts text into chunks of at most limit runes, preferring to
// break on a newline near the limit.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	return chunks
}
