package transport

import "net/http"

// Request is one outbound API call.
type Request struct {
	// Method is the HTTP method (e.g., "GET", "POST").
	Method string `json:"method"`

	// Target is the request path relative to the API base URL,
	// e.g. "/channels/123/messages".
	Target string `json:"target"`

	// Body is the encoded request body. Nil means no body.
	Body []byte `json:"body,omitempty"`
}

// Reply is what a Sender hands to the read hook.
type Reply struct {
	// Status is the HTTP status code. Zero when Err is set.
	Status int

	// Header holds the response headers, including rate limit metadata.
	Header http.Header

	// Body is the raw response body.
	Body []byte

	// Err is set when the request failed below HTTP (connection refused,
	// timeout, cancelled context). Header is empty in that case.
	Err error
}

// WriteHook is invoked once a request has left the client.
type WriteHook func()

// ReadHook is invoked once a reply (or a transport failure) is available.
// A returned error is reported back to the Sender, which logs it.
type ReadHook func(*Reply) error

// Sender performs requests without blocking the caller.
//
// Implementations must invoke onWrite exactly once per Send, and onRead at
// most once, after onWrite. Either hook may be nil. Hooks may run on any
// goroutine.
type Sender interface {
	Send(req *Request, onWrite WriteHook, onRead ReadHook)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(req *Request, onWrite WriteHook, onRead ReadHook)

// Send calls f.
func (f SenderFunc) Send(req *Request, onWrite WriteHook, onRead ReadHook) {
	f(req, onWrite, onRead)
}
