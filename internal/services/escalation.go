package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/pkg/ctxutil"
	"github.com/skillforge/skillforge-backend/internal/pkg/envutil"
	"github.com/skillforge/skillforge-backend/internal/pkg/httpx"
	"github.com/skillforge/skillforge-backend/internal/pkg/logger"
)

// EscalationPayload is the record relayed to the human-support endpoint
// when a learner conversation needs a person in the loop.
type EscalationPayload struct {
	SessionID  uuid.UUID `json:"session_id"`
	ActorID    uuid.UUID `json:"actor_id"`
	Trigger    string    `json:"trigger"`
	Keywords   []string  `json:"keywords,omitempty"`
	Message    string    `json:"message"`
	ActorName  string    `json:"actor_name,omitempty"`
	ActorEmail string    `json:"actor_email,omitempty"`
	OrgContext string    `json:"org_context,omitempty"`
}

// EscalationRelay forwards escalation records to an external
// notification endpoint with a small bounded retry budget.
type EscalationRelay interface {
	Notify(ctx context.Context, payload EscalationPayload) error
	NotifyAsync(ctx context.Context, payload EscalationPayload)
}

type EscalationConfig struct {
	WebhookURL  string
	AuthToken   string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

func EscalationConfigFromEnv() EscalationConfig {
	return EscalationConfig{
		WebhookURL:  strings.TrimSpace(os.Getenv("ESCALATION_WEBHOOK_URL")),
		AuthToken:   strings.TrimSpace(os.Getenv("ESCALATION_AUTH_TOKEN")),
		Timeout:     envutil.Seconds("ESCALATION_TIMEOUT_SECONDS", 10*time.Second),
		MaxAttempts: envutil.Int("ESCALATION_MAX_ATTEMPTS", 3),
		BackoffBase: time.Second,
	}
}

type escalationRelay struct {
	log        *logger.Logger
	cfg        EscalationConfig
	httpClient *http.Client
}

func NewEscalationRelay(baseLog *logger.Logger, cfg EscalationConfig) (EscalationRelay, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("missing ESCALATION_WEBHOOK_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &escalationRelay{
		log:        baseLog.With("service", "EscalationRelay"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type escalationHTTPError struct {
	StatusCode int
	Body       string
}

func (e *escalationHTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("escalation http %d: %s", e.StatusCode, msg)
}

func (e *escalationHTTPError) HTTPStatusCode() int { return e.StatusCode }

func (r *escalationRelay) Notify(ctx context.Context, payload EscalationPayload) error {
	if payload.SessionID == uuid.Nil {
		return fmt.Errorf("escalation: session id required")
	}
	if strings.TrimSpace(payload.Message) == "" {
		return fmt.Errorf("escalation: message required")
	}
	ctx = ctxutil.Default(ctx)

	backoff := r.cfg.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := r.post(ctx, payload)
		if err == nil {
			if attempt > 1 {
				r.log.Info("Escalation delivered after retry", "session_id", payload.SessionID, "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		// A 4xx means the record itself is rejected; resending the same
		// bytes cannot succeed.
		if code := httpx.StatusCodeOf(err); httpx.IsClientError(code) {
			return err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		r.log.Warn("Escalation delivery retrying",
			"session_id", payload.SessionID,
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"sleep", backoff.String(),
			"error", err.Error(),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return fmt.Errorf("escalation delivery failed after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

// NotifyAsync delivers in the background so the conversational reply is
// never delayed by the notification endpoint.
func (r *escalationRelay) NotifyAsync(ctx context.Context, payload EscalationPayload) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("Escalation relay panicked", "session_id", payload.SessionID, "panic", rec)
			}
		}()
		// Detach from the request lifetime; the caller's response has
		// already been sent by the time retries run.
		bg, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout*time.Duration(r.cfg.MaxAttempts)+30*time.Second)
		defer cancel()
		if err := r.Notify(bg, payload); err != nil {
			r.log.Error("Escalation delivery abandoned", "session_id", payload.SessionID, "trigger", payload.Trigger, "error", err)
		}
	}()
}

func (r *escalationRelay) post(ctx context.Context, payload EscalationPayload) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.WebhookURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.AuthToken)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &escalationHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}

// Escalation trigger keywords. Matching is case-insensitive on whole
// message substrings.
var escalationKeywords = []string{
	"speak to a human",
	"talk to a person",
	"real person",
	"human support",
	"manager",
	"complaint",
	"frustrated",
	"this is not working",
}

// DetectEscalation reports whether a learner message should be relayed
// to human support, along with the keywords that matched.
func DetectEscalation(message string) (bool, []string) {
	m := strings.ToLower(message)
	var matched []string
	for _, kw := range escalationKeywords {
		if strings.Contains(m, kw) {
			matched = append(matched, kw)
		}
	}
	return len(matched) > 0, matched
}
