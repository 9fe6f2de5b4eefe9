package goedxcore

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// dispatch runs refine for every interval and returns the results in interval order.
// With parallel set, intervals are spread over at most workers goroutines
// (GOMAXPROCS when workers < 1). refine must only read shared state.
func dispatch(intervals []Interval, parallel bool, workers int, refine func(Interval) intervalResult) []intervalResult {
	results := make([]intervalResult, len(intervals))
	if !parallel || len(intervals) < 2 {
		for i, iv := range intervals {
			results[i] = refine(iv)
		}
		return results
	}

	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, iv := range intervals {
		g.Go(func() error {
			results[i] = refine(iv)
			return nil
		})
	}
	// Failures travel in the results; the group itself never errors.
	_ = g.Wait()
	return results
}
