package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"mercator-hq/pacer/pkg/cli"
)

func TestRunBench(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping bench in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var progressOut bytes.Buffer
	result, err := runBench(ctx, benchOptions{
		Calls:        8,
		Routes:       2,
		Limit:        2,
		Window:       200 * time.Millisecond,
		DefaultLimit: 2,
	}, cli.NewProgressReporter(&progressOut))
	if err != nil {
		t.Fatalf("runBench failed: %v", err)
	}

	if result.Completed != 8 || result.Errors != 0 {
		t.Errorf("completed %d with %d errors, want 8 and 0", result.Completed, result.Errors)
	}
	if result.Statuses[http.StatusOK] != 8 {
		t.Errorf("statuses = %v, want 8 OK", result.Statuses)
	}
	if result.Violations != 0 {
		t.Errorf("server saw %d violations", result.Violations)
	}
	if result.Buckets != 2 {
		t.Errorf("buckets = %d, want 2", result.Buckets)
	}
	// Four calls per bucket at two per window need at least one reset.
	if result.Duration < 200*time.Millisecond {
		t.Errorf("duration %v shorter than one window", result.Duration)
	}
	if !strings.Contains(progressOut.String(), "(8/8)") {
		t.Errorf("progress did not finish: %q", progressOut.String())
	}
}

func TestRunBench_RequiresCalls(t *testing.T) {
	if _, err := runBench(context.Background(), benchOptions{}, nil); err == nil {
		t.Error("expected error for zero calls")
	}
}

func TestSummarizeLatencies(t *testing.T) {
	var lat []time.Duration
	for i := 100; i >= 1; i-- {
		lat = append(lat, time.Duration(i)*time.Millisecond)
	}
	s := summarizeLatencies(lat)
	if s.MinMS != 1 || s.MaxMS != 100 {
		t.Errorf("min/max = %v/%v", s.MinMS, s.MaxMS)
	}
	if s.P50MS != 50 || s.P99MS != 99 {
		t.Errorf("p50/p99 = %v/%v", s.P50MS, s.P99MS)
	}
	if lat[0] != 100*time.Millisecond {
		t.Error("input slice was reordered")
	}
	if got := summarizeLatencies(nil); got != (latencySummary{}) {
		t.Errorf("empty summary = %+v", got)
	}
}

func TestPrintBench(t *testing.T) {
	var buf bytes.Buffer
	printBench(&buf, &benchResult{Calls: 3, Completed: 3, Statuses: map[int]int{200: 2, 429: 1}, Violations: 1})
	out := buf.String()
	for _, want := range []string{"3 sent", "200:  2", "429:  1", "1 rate limit violations"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
