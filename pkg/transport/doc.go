// Package transport defines the boundary between the rate limit scheduler
// and whatever actually performs requests.
//
// A Sender accepts a Request together with two hooks and returns at once.
// The write hook fires when the request has left the client; the read hook
// fires when a Reply arrives. The scheduler in pkg/limits/dispatch both
// consumes a Sender and implements one, so stages compose without
// inheritance:
//
//	http := httpsender.New(cfg, logger)
//	sched := dispatch.New(http, dispatch.Config{DefaultLimit: 5})
//	sched.Send(&transport.Request{Method: "GET", Target: "/users/@me"}, nil, onRead)
//
// ParseRateLimit decodes the X-RateLimit-* headers that drive bucket
// discovery.
package transport
