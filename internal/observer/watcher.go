package observer

import (
	"sync"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/realtime"
)

// JobUpdate is one observed state change of a generation job.
type JobUpdate struct {
	JobID    uuid.UUID
	Event    string
	Status   string
	Step     string
	Progress int
	Message  string
	Error    string
	Terminal bool
}

// JobWatcher filters the realtime event stream down to a single job and
// delivers its updates in arrival order. Duplicate terminal events
// (possible when the bus redelivers) collapse into one; the watcher
// closes itself after the first.
type JobWatcher struct {
	jobID   uuid.UUID
	updates chan JobUpdate
	done    chan struct{}

	mu           sync.Mutex
	terminalSeen bool
	closed       bool
}

func NewJobWatcher(jobID uuid.UUID, buffer int) *JobWatcher {
	if buffer <= 0 {
		buffer = 16
	}
	return &JobWatcher{
		jobID:   jobID,
		updates: make(chan JobUpdate, buffer),
		done:    make(chan struct{}),
	}
}

func (w *JobWatcher) Updates() <-chan JobUpdate { return w.updates }

func (w *JobWatcher) Done() <-chan struct{} { return w.done }

func (w *JobWatcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
}

func (w *JobWatcher) closeLocked() {
	if w.closed {
		return
	}
	w.closed = true
	close(w.updates)
	close(w.done)
}

// Offer feeds one raw event into the watcher. Events for other jobs and
// unrelated event types are ignored. Returns false once the watcher is
// finished and no longer consuming.
func (w *JobWatcher) Offer(msg realtime.SSEMessage) bool {
	update, ok := decodeJobUpdate(msg)
	if !ok || update.JobID != w.jobID {
		w.mu.Lock()
		defer w.mu.Unlock()
		return !w.closed
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	if update.Terminal {
		if w.terminalSeen {
			return true
		}
		w.terminalSeen = true
	}

	// Non-blocking: a stalled consumer drops intermediate progress, but a
	// terminal update still closes the watcher so nobody waits forever.
	select {
	case w.updates <- update:
	default:
	}
	if update.Terminal {
		w.closeLocked()
		return false
	}
	return true
}

func decodeJobUpdate(msg realtime.SSEMessage) (JobUpdate, bool) {
	var terminal bool
	switch msg.Event {
	case realtime.SSEEventJobProgress, realtime.SSEEventJobCreated:
	case realtime.SSEEventJobFailed, realtime.SSEEventJobDone:
		terminal = true
	default:
		return JobUpdate{}, false
	}

	data, ok := msg.Data.(map[string]any)
	if !ok {
		return JobUpdate{}, false
	}
	jobID := uuidField(data, "job_id")
	if jobID == uuid.Nil {
		return JobUpdate{}, false
	}

	update := JobUpdate{
		JobID:    jobID,
		Event:    string(msg.Event),
		Status:   stringField(data, "status"),
		Step:     stringField(data, "step"),
		Message:  stringField(data, "message"),
		Error:    stringField(data, "error"),
		Terminal: terminal,
	}
	if v, ok := data["progress"]; ok {
		switch n := v.(type) {
		case int:
			update.Progress = n
		case float64:
			// JSON round-trips through the bus as float64.
			update.Progress = int(n)
		}
	}
	return update, true
}

func uuidField(data map[string]any, key string) uuid.UUID {
	switch v := data[key].(type) {
	case uuid.UUID:
		return v
	case string:
		if id, err := uuid.Parse(v); err == nil {
			return id
		}
	}
	return uuid.Nil
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
