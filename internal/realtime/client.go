package realtime

import (
	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/pkg/logger"
)

type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	Logger   *logger.Logger
}

// Done is closed when the client is removed from the hub; the HTTP handler
// uses it to end the event stream.
func (c *SSEClient) Done() <-chan struct{} { return c.done }
