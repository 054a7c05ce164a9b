// Package limits paces outbound API calls against rate limits that the
// remote service only reveals in its replies.
//
// # Overview
//
// Every reply names the bucket its route belongs to and how many calls the
// bucket has left in the current window. The scheduler in the dispatch
// sub-package learns those buckets as replies arrive and holds calls back
// so no bucket is overdrawn. Until a route's bucket is known its calls are
// uncategorized and admitted conservatively.
//
// # Architecture
//
//   - dispatch: the single-goroutine scheduler and bucket registry
//   - multiset: counted multiset for in-flight accounting
//   - storage: route-to-bucket persistence (memory, SQLite)
//   - snapshot: cron-driven saving and startup restore of assignments
//
// Manager ties them together and owns the metrics registration.
//
// # Usage
//
//	sender, _ := httpsender.New(httpsender.Config{BaseURL: base}, logger)
//	manager, err := limits.NewManager(sender, limits.Config{
//	    Storage:    backend,
//	    Registerer: registry,
//	})
//	if err != nil {
//	    return err
//	}
//	defer manager.Close()
//
//	go manager.Run(ctx)
//	manager.Submit(req, onWrite, onRead)
//
// # Thread Safety
//
// Submit, Send and Stats may be called from any goroutine. All scheduler
// state is confined to the goroutine running Run.
package limits
