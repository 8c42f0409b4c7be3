// Package httpx holds the shared HTTP client construction and the
// status error type used by the manifest and artifact layers.
package httpx

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// UserAgent identifies the launcher to the update origin.
const UserAgent = "BetterLauncher/1.0"

// New returns a resty client with a bounded total timeout. The timeout
// is the only cancellation bound on in-flight transfers; callers do
// not retry through this client.
func New(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", UserAgent).
		SetRetryCount(0)
}

// StatusError reports a non-2xx response from the update origin.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d from %s", e.Code, e.URL)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
