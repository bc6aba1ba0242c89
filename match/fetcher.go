package match

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nestmate/nestmate/vecindex"
)

// companionFetcher loads the preference vectors for a batch of candidates.
// Fetches run concurrently with a bounded limit; a failed fetch for one
// candidate is logged and counted but never fails the batch, so downstream
// code treats an absent map entry as "vector unavailable".
type companionFetcher struct {
	index       vecindex.Index
	concurrency int
	metrics     *Metrics
}

func (f *companionFetcher) fetchPreferenceVectors(ctx context.Context, userIDs []string) map[string][]float32 {
	vectors := make(map[string][]float32, len(userIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			vector, err := f.index.GetDatapoint(gctx, vecindex.PreferenceDatapointID(userID))
			if err != nil {
				f.metrics.fetchError()
				slog.Warn("preference vector fetch failed",
					slog.String("user", userID),
					slog.Any("err", err))
				return nil
			}
			mu.Lock()
			vectors[userID] = vector
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait only observes context cancellation.
	_ = g.Wait()
	return vectors
}
