package jobs

import (
	"context"
	"errors"
	"net"

	"github.com/skillforge/skillforge-backend/internal/pkg/httpx"
)

// classifyGenerationError turns provider failures into messages safe to
// show learners. Raw provider bodies never reach the job record.
func classifyGenerationError(err error) string {
	if err == nil {
		return ""
	}

	if code := httpx.StatusCodeOf(err); code != 0 {
		switch {
		case code == 429:
			return "The model provider is rate limiting requests. Please try again in a few minutes."
		case code == 401 || code == 403:
			return "The service could not authenticate with the model provider. Please contact support."
		case code >= 500:
			return "The model provider is temporarily unavailable. Please try again."
		default:
			return "The model provider rejected the request. Please try again."
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "The model provider took too long to respond. Please try again."
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "The model provider took too long to respond. Please try again."
	}

	return "Course generation failed unexpectedly. Please try again."
}
