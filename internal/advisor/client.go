// Package advisor implements the client for the external advisory service.
// It builds a structured prompt from the latest account snapshot and any
// pending execution feedback, calls the service with retry/backoff and a
// reduced-scope fallback, and parses the JSON payload embedded in the
// free-form response text.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmelton/grokswing/internal/broker"
	"github.com/dmelton/grokswing/internal/feedback"
	"github.com/dmelton/grokswing/internal/models"
	"github.com/dmelton/grokswing/internal/retry"
)

const (
	defaultBaseURL     = "https://api.x.ai/v1"
	defaultModel       = "grok-4"
	defaultMaxAttempts = 3
	defaultTimeout     = 3 * time.Minute
	initialBackoff     = 1 * time.Second
)

// StatusError is a non-2xx response from the advisory service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("advisory service error %d: %s", e.Status, e.Body)
}

// MalformedResponseError reports an advisory response whose content could
// not be located or decoded as the expected JSON document. It is a
// recoverable parse failure, not a protocol error.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed advisory response: %s: %v", e.Reason, e.Err)
	}
	return "malformed advisory response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Config holds advisory client settings.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxAttempts   int
	Timeout       time.Duration
	SearchEnabled bool
}

// Snapshot is the brokerage state embedded into an advisory prompt. It is
// fetched fresh each cycle and discarded after use.
type Snapshot struct {
	Account    *broker.Account
	Positions  []broker.Position
	OpenOrders []broker.Order
	Prices     map[string]float64
}

// Client calls the advisory service. It owns the pending error-feedback
// store: errors recorded during a cycle ride along in the next prompt and
// are cleared once a round-trip succeeds.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *log.Logger
	feedback   *feedback.Store
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates an advisory client with an empty feedback store.
func NewClient(cfg Config, logger *log.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		// The advisory service may perform live data search, so the
		// budget is minutes-scale, unlike brokerage calls.
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
		feedback:   feedback.NewStore(),
	}
}

// WithHTTPClient overrides the HTTP client (tests, custom transport).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithSleep overrides the backoff sleep function (tests).
func (c *Client) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Client {
	c.sleep = sleep
	return c
}

// Feedback returns the pending error-feedback store.
func (c *Client) Feedback() *feedback.Store { return c.feedback }

// ============ Chat-completion wire format ============

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type searchSource struct {
	Type string `json:"type"`
}

type searchParameters struct {
	Mode    string         `json:"mode"`
	Sources []searchSource `json:"sources,omitempty"`
}

type chatRequest struct {
	Model            string            `json:"model"`
	Messages         []chatMessage     `json:"messages"`
	Stream           bool              `json:"stream"`
	Temperature      float64           `json:"temperature"`
	SearchParameters *searchParameters `json:"search_parameters,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// RequestAdvice performs one advisory round-trip: prompt build, bounded
// retried call (with a single reduced-scope fallback attempt after the
// full-scope attempts are exhausted), and parse. On success the pending
// error store is cleared - the errors have been delivered.
func (c *Client) RequestAdvice(ctx context.Context, snap *Snapshot) (*models.AdviceResult, error) {
	pending := c.feedback.Drain()
	prompt := BuildPrompt(snap, pending)
	requestID := uuid.New().String()[:8]

	var raw string
	policy := retry.Policy{
		MaxAttempts: c.cfg.MaxAttempts,
		Backoff:     retry.ExponentialBackoff(initialBackoff),
		Retryable:   isRetryable,
		Sleep:       c.sleep,
	}
	err := policy.Do(ctx, "advisory request", func() error {
		var callErr error
		raw, callErr = c.call(ctx, prompt, true)
		return callErr
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("advisory request %s: %w", requestID, ctxErr)
		}
		// Degraded mode: exactly one more attempt with fewer search
		// sources before declaring overall failure.
		c.logger.Printf("Advisory request %s failed under full scope, trying reduced scope: %v", requestID, err)
		raw, err = c.call(ctx, prompt, false)
		if err != nil {
			return nil, fmt.Errorf("advisory request %s failed including reduced-scope fallback: %w", requestID, err)
		}
	}

	result, err := ParseAdvice(raw)
	if err != nil {
		return nil, err
	}

	if len(pending) > 0 {
		c.logger.Printf("Advisory request %s delivered %d pending trade error(s)", requestID, len(pending))
	}
	c.feedback.Clear()
	return result, nil
}

// call makes a single chat-completion request. fullScope controls how many
// live-search sources the service may consult.
func (c *Client) call(ctx context.Context, prompt string, fullScope bool) (string, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: prompt},
		},
		Stream:      false,
		Temperature: 0.3,
	}
	if c.cfg.SearchEnabled {
		if fullScope {
			reqBody.SearchParameters = &searchParameters{
				Mode:    "auto",
				Sources: []searchSource{{Type: "web"}, {Type: "x"}, {Type: "news"}},
			}
		} else {
			reqBody.SearchParameters = &searchParameters{
				Mode:    "auto",
				Sources: []searchSource{{Type: "web"}},
			}
		}
	}

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encoding advisory request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Printf("Failed to close advisory response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			return "", &StatusError{Status: resp.StatusCode, Body: "failed to read error body"}
		}
		return "", &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &MalformedResponseError{Reason: "decoding completion envelope", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &MalformedResponseError{Reason: "completion envelope has no choices"}
	}
	return parsed.Choices[0].Message.Content, nil
}

// isRetryable reports whether an advisory call error is worth another
// attempt: server-side errors and timeouts are, client-side errors are not.
func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		// Parse failures are non-retryable for the cycle.
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
