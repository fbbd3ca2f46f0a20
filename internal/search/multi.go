package search

import (
	"context"
	"fmt"
	"sync"

	"quadforge/internal/logging"
)

// Multi fans a query across several backends and merges the results.
// The first backend to report a URL keeps it; later duplicates drop.
type Multi struct {
	backends []Backend
}

// NewMulti bundles backends. Order only matters for log attribution;
// merge order follows completion.
func NewMulti(backends ...Backend) *Multi {
	return &Multi{backends: backends}
}

// Search queries every backend concurrently. Individual backend
// failures are tolerated as long as any backend returns results.
func (m *Multi) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if len(m.backends) == 0 {
		return nil, fmt.Errorf("no search backends configured")
	}
	limit = clampLimit(limit)

	type batch struct {
		results []Result
		err     error
	}
	ch := make(chan batch, len(m.backends))
	var wg sync.WaitGroup
	for _, b := range m.backends {
		wg.Add(1)
		go func(b Backend) {
			defer wg.Done()
			results, err := b.Search(ctx, query, limit)
			ch <- batch{results: results, err: err}
		}(b)
	}
	wg.Wait()
	close(ch)

	seen := make(map[string]bool)
	var merged []Result
	var firstErr error
	failures := 0
	for b := range ch {
		if b.err != nil {
			failures++
			if firstErr == nil {
				firstErr = b.err
			}
			logging.SearchWarn("[multi] backend failed: %v", b.err)
			continue
		}
		for _, r := range b.results {
			if seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			merged = append(merged, r)
		}
	}

	if len(merged) == 0 && firstErr != nil {
		return nil, fmt.Errorf("all %d backends failed: %w", failures, firstErr)
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	logging.SearchDebug("[multi] %q -> %d merged results from %d backends",
		query, len(merged), len(m.backends))
	return merged, nil
}
