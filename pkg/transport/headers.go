package transport

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Rate limit response headers.
const (
	HeaderBucket     = "X-RateLimit-Bucket"
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderResetAfter = "X-RateLimit-Reset-After"
)

// RateLimit is the rate limit metadata carried by a reply.
type RateLimit struct {
	// Bucket is the server-assigned bucket identity.
	Bucket string

	// Limit is the number of calls allowed per window.
	Limit int

	// Remaining is the number of calls left in the current window.
	Remaining int

	// ResetAfter is the time until the window resets.
	ResetAfter time.Duration
}

// HeaderError reports a missing or malformed rate limit header.
type HeaderError struct {
	Header string
	Value  string
	Err    error
}

func (e *HeaderError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("rate limit header %s: %v", e.Header, e.Err)
	}
	return fmt.Sprintf("rate limit header %s=%q: %v", e.Header, e.Value, e.Err)
}

func (e *HeaderError) Unwrap() error {
	return e.Err
}

// ErrMissingHeader is wrapped by HeaderError when a header is absent.
var ErrMissingHeader = errors.New("header missing")

// ParseRateLimit extracts rate limit metadata from h.
//
// It returns ok=false when h carries no bucket identity, which means the
// route is not bucketed. Once a bucket is present the numeric headers are
// mandatory: a missing or malformed one yields a *HeaderError.
func ParseRateLimit(h http.Header) (rl RateLimit, ok bool, err error) {
	rl.Bucket = strings.TrimSpace(h.Get(HeaderBucket))
	if rl.Bucket == "" {
		return RateLimit{}, false, nil
	}

	if rl.Limit, err = parseCount(h, HeaderLimit); err != nil {
		return RateLimit{}, false, err
	}
	if rl.Remaining, err = parseCount(h, HeaderRemaining); err != nil {
		return RateLimit{}, false, err
	}
	if rl.ResetAfter, err = parseSeconds(h, HeaderResetAfter); err != nil {
		return RateLimit{}, false, err
	}
	return rl, true, nil
}

func parseCount(h http.Header, name string) (int, error) {
	raw := strings.TrimSpace(h.Get(name))
	if raw == "" {
		return 0, &HeaderError{Header: name, Err: ErrMissingHeader}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &HeaderError{Header: name, Value: raw, Err: err}
	}
	if n < 0 {
		return 0, &HeaderError{Header: name, Value: raw, Err: errors.New("negative value")}
	}
	return n, nil
}

// parseSeconds accepts integer or decimal seconds ("1", "0.25").
func parseSeconds(h http.Header, name string) (time.Duration, error) {
	raw := strings.TrimSpace(h.Get(name))
	if raw == "" {
		return 0, &HeaderError{Header: name, Err: ErrMissingHeader}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &HeaderError{Header: name, Value: raw, Err: err}
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &HeaderError{Header: name, Value: raw, Err: errors.New("out of range")}
	}
	return time.Duration(f * float64(time.Second)), nil
}
