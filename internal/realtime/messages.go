package realtime

type SSEEvent string

const (
	SSEEventJobCreated  SSEEvent = "GenerationJobCreated"
	SSEEventJobProgress SSEEvent = "GenerationJobProgress"
	SSEEventJobFailed   SSEEvent = "GenerationJobFailed"
	SSEEventJobDone     SSEEvent = "GenerationJobDone"
)

// SSEMessage is the unit of push notification. Channel is the owner user id;
// every mutation of a job row is mirrored as one message on its owner's
// channel, so observers never have to poll the store.
type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}
