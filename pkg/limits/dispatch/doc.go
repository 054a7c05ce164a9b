// Package dispatch schedules outbound calls against rate limits that the
// remote service reveals only through reply headers.
//
// # Scopes
//
// Every call is classified into a route key (see pkg/route) and queued in
// the scope that owns the route: the bucket the route was last seen in, or
// the uncategorized scope when no reply for the route has arrived yet. A
// scope keeps one FIFO per route and a count of calls in flight per route.
//
// # Dispatch
//
// A pass sends at most one call: the oldest queue head among buckets that
// have spare capacity (remaining minus in flight) and the uncategorized
// scope. Uncategorized calls are additionally held back while the
// uncategorized in-flight count has reached the smallest spare capacity of
// any known bucket, since an unclassified call may turn out to belong to
// that bucket. A new pass cannot start until the transport reports the
// previous call written, which keeps writes ordered while still letting
// many calls be in flight.
//
// # Discovery
//
// When a reply names a bucket the route is moved there together with its
// queued and in-flight calls. The bucket's remaining count only ever drops
// on a reply; it is refilled by a timer armed for the reported reset delay.
//
// # Concurrency
//
// Scheduler state belongs to the goroutine running Run. Submit and the
// transport hooks post events to it and return immediately:
//
//	sched := dispatch.New(sender, dispatch.Config{Logger: logger})
//	go sched.Run(ctx)
//	sched.Submit(&transport.Request{Method: "GET", Target: "/gateway/bot"}, nil, onRead)
package dispatch
