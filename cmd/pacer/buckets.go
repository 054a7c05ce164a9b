package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/pacer/pkg/cli"
	"mercator-hq/pacer/pkg/limits/storage"
)

var bucketsFlags struct {
	db        string
	format    string
	routes    bool
	olderThan time.Duration
}

var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "List persisted bucket assignments",
	Long: `List the route-to-bucket assignments saved by pacer run.

By default routes are grouped per bucket. Use --routes to list every route.
The database is taken from --db, or from storage.sqlite.path in the config.

Examples:
  pacer buckets --db data/pacer.db
  pacer buckets --routes --format csv
  pacer buckets prune --older-than 168h`,
	RunE: runBuckets,
}

var bucketsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete assignments not seen recently",
	RunE:  runBucketsPrune,
}

func init() {
	rootCmd.AddCommand(bucketsCmd)
	bucketsCmd.AddCommand(bucketsPruneCmd)

	bucketsCmd.PersistentFlags().StringVar(&bucketsFlags.db, "db", "", "SQLite database path (uses config if not specified)")
	bucketsCmd.Flags().StringVar(&bucketsFlags.format, "format", "text", "output format: text, json, csv")
	bucketsCmd.Flags().BoolVar(&bucketsFlags.routes, "routes", false, "list individual routes")
	bucketsPruneCmd.Flags().DurationVar(&bucketsFlags.olderThan, "older-than", 30*24*time.Hour, "remove routes last seen before this age")
}

func openBucketStore() (storage.Backend, error) {
	path := bucketsFlags.db
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		if cfg.Storage.Backend != "sqlite" {
			return nil, cli.NewConfigError("storage.backend", fmt.Errorf("backend %q does not persist assignments", cfg.Storage.Backend))
		}
		path = cfg.Storage.SQLite.Path
	}
	return storage.NewSQLiteBackend(path)
}

type bucketSummary struct {
	Bucket   string    `json:"bucket"`
	Limit    int       `json:"limit"`
	Routes   []string  `json:"routes"`
	LastSeen time.Time `json:"last_seen"`
}

// summarize groups assignments by bucket, ordered by bucket identity.
func summarize(entries []*storage.Assignment) []bucketSummary {
	byBucket := make(map[string]*bucketSummary)
	for _, a := range entries {
		s, ok := byBucket[a.Bucket]
		if !ok {
			s = &bucketSummary{Bucket: a.Bucket}
			byBucket[a.Bucket] = s
		}
		s.Routes = append(s.Routes, a.Route.String())
		if a.LastSeen.After(s.LastSeen) {
			s.LastSeen = a.LastSeen
			s.Limit = a.Limit
		}
	}

	out := make([]bucketSummary, 0, len(byBucket))
	for _, s := range byBucket {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out
}

func bucketsTable(entries []*storage.Assignment, routes bool) *cli.Table {
	if routes {
		t := &cli.Table{Headers: []string{"ROUTE", "BUCKET", "LIMIT", "LAST_SEEN"}}
		for _, a := range entries {
			t.Rows = append(t.Rows, []string{a.Route.String(), a.Bucket, strconv.Itoa(a.Limit), a.LastSeen.UTC().Format(time.RFC3339)})
		}
		t.Records = entries
		return t
	}

	summaries := summarize(entries)
	t := &cli.Table{Headers: []string{"BUCKET", "LIMIT", "ROUTES", "LAST_SEEN"}, Records: summaries}
	for _, s := range summaries {
		t.Rows = append(t.Rows, []string{s.Bucket, strconv.Itoa(s.Limit), strconv.Itoa(len(s.Routes)), s.LastSeen.UTC().Format(time.RFC3339)})
	}
	return t
}

func runBuckets(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(bucketsFlags.format)
	if err != nil {
		return err
	}
	store, err := openBucketStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context())
	if err != nil {
		return cli.NewCommandError("buckets", err)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), bucketsTable(entries, bucketsFlags.routes))
}

func runBucketsPrune(cmd *cobra.Command, args []string) error {
	store, err := openBucketStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	n, err := store.Cleanup(ctx, time.Now().Add(-bucketsFlags.olderThan))
	if err != nil {
		return cli.NewCommandError("buckets prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d routes\n", n)
	return nil
}
