// Package health provides liveness and readiness probes.
//
// Components register named checks; the readiness probe runs them all
// with a per-check timeout and answers 503 when any fails.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("scheduler", func(ctx context.Context) (string, error) {
//	    st, err := manager.Stats(ctx)
//	    return fmt.Sprintf("%d queued", st.Queued()), err
//	})
//	checker.Mount(mux)
package health
