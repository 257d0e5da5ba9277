package httpx

import "errors"

// HTTPStatusCoder is implemented by errors that carry the HTTP status
// of a failed upstream call.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// IsClientError reports whether code is 4xx. Client errors indicate a
// malformed request that retrying cannot fix.
func IsClientError(code int) bool {
	return code >= 400 && code <= 499
}

// StatusCodeOf extracts the HTTP status from err, or 0 when err does
// not carry one.
func StatusCodeOf(err error) int {
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	return 0
}
