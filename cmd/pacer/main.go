// Pacer sends API calls without exceeding the remote rate limits.
//
// It learns which routes share a rate limit bucket from reply headers,
// queues calls per bucket and only sends what the bucket has room for.
// Learned assignments can be persisted so a restart does not have to
// rediscover them.
//
// Usage:
//
//	# Send calls read as JSON lines from stdin
//	pacer run --config pacer.yaml < calls.jsonl
//
//	# Show how paths are grouped into routes
//	pacer route /channels/1/messages /channels/1/messages/2
//
//	# Inspect persisted bucket assignments
//	pacer buckets --config pacer.yaml
//
//	# Measure the scheduler against a simulated API
//	pacer bench --calls 500 --routes 8
package main

import "os"

func main() {
	os.Exit(Execute())
}
