package bus

import (
	"context"

	"github.com/skillforge/skillforge-backend/internal/realtime"
)

// Bus fans SSE messages out across instances. An executor running on one
// instance publishes job mutations; every instance's forwarder feeds its
// local hub so the owner's browser receives the event wherever it is
// connected.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
