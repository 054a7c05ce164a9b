// Package storage persists route-to-bucket assignments.
//
// Bucket discovery costs one reply per route. Persisting what was learned
// lets a restarted process route calls into the right bucket from the
// first call instead of treating every route as uncategorized again.
//
// Two backends are provided:
//
//   - Memory: no persistence, used by default and in tests
//   - SQLite: a local file (modernc.org/sqlite, no cgo) in WAL mode
//
// # Usage
//
//	backend, err := storage.NewSQLiteBackend("pacer.db")
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	err = backend.Save(ctx, []*storage.Assignment{
//	    {Route: route.Classify("/channels/1/messages"), Bucket: "abc", Limit: 5},
//	})
//	entries, err := backend.List(ctx)
//
// Only the mapping and the window size are stored. Remaining counts and
// reset deadlines are not: they are stale by the time a process restarts.
package storage
