// Package snapshot persists the scheduler's route-to-bucket assignments.
//
// A Snapshotter restores stored assignments into the scheduler at startup
// and saves the current ones on a cron schedule (robfig/cron, standard
// five-field syntax). Stale routes are pruned after each snapshot when a
// retention period is set.
package snapshot
