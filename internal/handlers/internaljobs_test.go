package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/data/repos/testutil"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []uuid.UUID
	block chan struct{}
}

func (f *fakeExecutor) Execute(ctx context.Context, jobID uuid.UUID) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jobID)
	return nil
}

func (f *fakeExecutor) waitForCall(t *testing.T, want uuid.UUID) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		for _, id := range f.calls {
			if id == want {
				f.mu.Unlock()
				return
			}
		}
		f.mu.Unlock()
		select {
		case <-deadline:
			t.Fatalf("executor never received job %s", want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func newInternalJobsRouter(t *testing.T, exec JobExecutor) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewInternalJobsHandler(testutil.Logger(t), exec)
	router.POST("/internal/jobs/execute", h.ExecuteJob)
	return router
}

func TestExecuteJobAcknowledgesBeforeRunning(t *testing.T) {
	exec := &fakeExecutor{block: make(chan struct{})}
	router := newInternalJobsRouter(t, exec)
	jobID := uuid.New()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/execute",
		bytes.NewBufferString(`{"job_id":"`+jobID.String()+`"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	// 202 comes back while the executor is still blocked.
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: want=202 got=%d body=%s", w.Code, w.Body.String())
	}

	close(exec.block)
	exec.waitForCall(t, jobID)
}

func TestExecuteJobRejectsMalformedRequests(t *testing.T) {
	exec := &fakeExecutor{}
	router := newInternalJobsRouter(t, exec)

	for _, body := range []string{`{}`, `{"job_id":"not-a-uuid"}`, `not json`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/internal/jobs/execute", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: want=400 got=%d", body, w.Code)
		}
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if len(exec.calls) != 0 {
		t.Fatalf("malformed requests reached the executor: %v", exec.calls)
	}
}
