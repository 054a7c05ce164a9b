package dispatch

import (
	"github.com/jonboulle/clockwork"

	"mercator-hq/pacer/pkg/route"
)

// bucket is a server-assigned rate-limit group. One bucket may own many
// route keys.
//
// Remaining counts calls left in the current window including calls that
// are in flight, so the spare capacity is Remaining minus the in-flight
// total. That difference is never negative.
type bucket struct {
	ID        string
	Limit     int
	Remaining int

	scope

	reset    clockwork.Timer
	resetGen uint64
}

// floor raises Remaining to the in-flight total and reports whether it
// had to. It must follow every change that adds in-flight calls to b or
// lowers its Remaining.
func (b *bucket) floor() bool {
	if n := b.inFlight.Total(); b.Remaining < n {
		b.Remaining = n
		return true
	}
	return false
}

// handle indexes a bucket in the registry arena. Buckets are never removed,
// so a handle stays valid for the life of the scheduler.
type handle int

// registry maps route keys to buckets and holds the uncategorized scope.
type registry struct {
	buckets       []*bucket
	byID          map[string]handle
	routeToBucket map[route.Key]handle
	uncategorized scope
}

func newRegistry() *registry {
	return &registry{
		byID:          make(map[string]handle),
		routeToBucket: make(map[route.Key]handle),
		uncategorized: newScope(),
	}
}

// lookup returns the bucket owning k, if any.
func (r *registry) lookup(k route.Key) (handle, *bucket, bool) {
	h, ok := r.routeToBucket[k]
	if !ok {
		return 0, nil, false
	}
	return h, r.buckets[h], true
}

// scopeOf returns the scope that currently owns k.
func (r *registry) scopeOf(k route.Key) *scope {
	if _, b, ok := r.lookup(k); ok {
		return &b.scope
	}
	return &r.uncategorized
}

// ensure returns the bucket with the given id, creating it when unknown.
func (r *registry) ensure(id string) (handle, *bucket, bool) {
	if h, ok := r.byID[id]; ok {
		return h, r.buckets[h], false
	}
	b := &bucket{ID: id, scope: newScope()}
	h := handle(len(r.buckets))
	r.buckets = append(r.buckets, b)
	r.byID[id] = h
	return h, b, true
}

// assign maps k to bucket h and moves everything queued or in flight for
// k from its previous scope into the bucket.
func (r *registry) assign(k route.Key, h handle) {
	from := r.scopeOf(k)
	to := &r.buckets[h].scope
	r.routeToBucket[k] = h
	if from != to {
		from.migrate(to, k)
	}
}

// ownerOf returns the handle of the bucket owning k, or -1.
func (r *registry) ownerOf(k route.Key) handle {
	if h, ok := r.routeToBucket[k]; ok {
		return h
	}
	return -1
}
