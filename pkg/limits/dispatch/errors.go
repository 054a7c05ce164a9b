package dispatch

import "errors"

// UncategorizedLabel names the uncategorized scope in logs, stats and
// metrics.
const UncategorizedLabel = "uncategorized"

var (
	// ErrAlreadyRunning is returned by Run when another Run is active.
	ErrAlreadyRunning = errors.New("scheduler already running")

	// ErrNotRunning is returned by queries that need the event loop.
	ErrNotRunning = errors.New("scheduler not running")
)
