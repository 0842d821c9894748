// Package caller is the scheduled Lambda handler: one HTTP POST of the
// current timestamp to the internal load balancer per invocation.
package caller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lex00/wetwire-fargate-go/internal/trigger"
)

// maxResponseBody bounds how much of the reply is read and logged.
const maxResponseBody = 1 << 20

// Handler posts to a single target. It is safe for concurrent use.
type Handler struct {
	client *http.Client
	target string
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) { h.client = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a handler posting to http://<target>.
func NewHandler(logger zerolog.Logger, target string, opts ...Option) *Handler {
	h := &Handler{
		client: &http.Client{},
		target: target,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewHandlerFromEnv reads the target from FARGATE_ALB_URL. An unset
// variable is not an error here; the first POST fails instead.
func NewHandlerFromEnv(logger zerolog.Logger, opts ...Option) *Handler {
	return NewHandler(logger, os.Getenv(trigger.EnvTargetURL), opts...)
}

// Target returns the configured load balancer DNS name.
func (h *Handler) Target() string {
	return h.target
}

// Handle is the Lambda entry point. The event content is only logged.
func (h *Handler) Handle(ctx context.Context, event json.RawMessage) error {
	entry := h.logger.Info()
	if json.Valid(event) {
		entry = entry.RawJSON("event", event)
	} else {
		entry = entry.Str("event", string(event))
	}
	entry.Msg("received event")

	_, err := h.Trigger(ctx)
	return err
}

// Trigger makes one POST and returns the response body.
func (h *Handler) Trigger(ctx context.Context) (string, error) {
	h.logger.Info().Str("target", h.target).Msg("Triggering Fargate")

	url := "http://" + h.target
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(Payload(h.now())))
	if err != nil {
		return "", h.fail(&RejectionError{Target: url, Reason: "invalid target", Err: err})
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", h.fail(classify(url, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", h.fail(&UpstreamError{Target: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", h.fail(&UpstreamError{Target: url, StatusCode: resp.StatusCode, Body: string(body)})
	}

	h.logger.Info().Int("status", resp.StatusCode).Str("response", string(body)).Msg("POST request response")
	return string(body), nil
}

func (h *Handler) fail(err error) error {
	h.logger.Error().Err(err).Msg("POST request failed")
	return err
}

// Payload renders t as epoch milliseconds with en-US digit grouping,
// e.g. "1,697,040,000,000".
func Payload(t time.Time) string {
	return message.NewPrinter(language.AmericanEnglish).Sprintf("%d", t.UnixMilli())
}
