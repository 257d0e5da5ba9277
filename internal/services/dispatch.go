package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/pkg/envutil"
	"github.com/skillforge/skillforge-backend/internal/pkg/logger"
)

// JobDispatcher hands a queued job to the executor tier. Dispatch is
// fire-and-forget: a nil return means the worker acknowledged receipt,
// not that the job ran.
type JobDispatcher interface {
	Dispatch(ctx context.Context, jobID uuid.UUID) error
}

type httpDispatcher struct {
	log        *logger.Logger
	baseURL    string
	secret     string
	httpClient *http.Client
}

func NewHTTPDispatcher(log *logger.Logger) JobDispatcher {
	return &httpDispatcher{
		log:     log.With("service", "JobDispatcher"),
		baseURL: envutil.String("WORKER_BASE_URL", "http://localhost:8080"),
		secret:  envutil.String("INTERNAL_API_SECRET", ""),
		// Dispatch only needs the worker's ack, never the job result.
		httpClient: &http.Client{Timeout: envutil.Seconds("WORKER_DISPATCH_TIMEOUT_SECONDS", 5*time.Second)},
	}
}

func (d *httpDispatcher) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	body, err := json.Marshal(map[string]string{"job_id": jobID.String()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/internal/jobs/execute", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set("X-Internal-Secret", d.secret)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch job %s: %w", jobID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dispatch job %s: worker responded %d: %s", jobID, resp.StatusCode, string(raw))
	}
	return nil
}
