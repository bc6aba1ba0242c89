// Package citystats maintains an in-memory aggregate of how many
// match-ready users live in each city bucket. The server uses it to show
// coverage and to pick default localities for new users.
package citystats

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nestmate/nestmate/store"
)

// UserLister is the subset of the user store the aggregator needs.
type UserLister interface {
	ListUsers(ctx context.Context, find *store.FindUser) ([]*store.UserProfile, error)
}

// CityCount is one city bucket with its user count.
type CityCount struct {
	CityCode string `json:"cityCode"`
	Count    int    `json:"count"`
}

// Aggregator keeps per-city user counts. Counts follow user mutations via
// Apply and can be fully recomputed from the store via Rebuild. Reads are
// cheap and safe under concurrency.
type Aggregator struct {
	users UserLister

	mu         sync.RWMutex
	counts     map[string]int
	rebuiltAt  time.Time
	totalUsers int
}

// New creates an empty aggregator. Call Rebuild to seed it from the store.
func New(users UserLister) *Aggregator {
	return &Aggregator{
		users:  users,
		counts: map[string]int{},
	}
}

// Rebuild recomputes every bucket from the user store. Only complete
// profiles count; incomplete ones cannot be matched so they do not
// contribute to coverage.
func (a *Aggregator) Rebuild(ctx context.Context) error {
	users, err := a.users.ListUsers(ctx, &store.FindUser{})
	if err != nil {
		return errors.Wrap(err, "list users for city stats rebuild")
	}

	counts := map[string]int{}
	total := 0
	for _, u := range users {
		if !u.IsComplete() {
			continue
		}
		if code := u.CityCode(); code != "" {
			counts[code]++
			total++
		}
	}

	a.mu.Lock()
	a.counts = counts
	a.totalUsers = total
	a.rebuiltAt = time.Now()
	a.mu.Unlock()

	slog.Info("city stats rebuilt",
		slog.Int("cities", len(counts)),
		slog.Int("users", total))
	return nil
}

// Apply shifts counts for a user mutation. Pass the previous profile state
// and the new one; nil marks creation (no before) or deletion (no after).
func (a *Aggregator) Apply(before, after *store.UserProfile) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if before != nil && before.IsComplete() {
		if code := before.CityCode(); code != "" {
			a.counts[code]--
			a.totalUsers--
			if a.counts[code] <= 0 {
				delete(a.counts, code)
			}
		}
	}
	if after != nil && after.IsComplete() {
		if code := after.CityCode(); code != "" {
			a.counts[code]++
			a.totalUsers++
		}
	}
}

// Count returns the number of match-ready users in one city bucket.
func (a *Aggregator) Count(cityCode string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.counts[cityCode]
}

// Total returns the number of match-ready users across all cities.
func (a *Aggregator) Total() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalUsers
}

// Top returns the n largest city buckets, ties broken by city code so the
// order is stable.
func (a *Aggregator) Top(n int) []CityCount {
	a.mu.RLock()
	out := make([]CityCount, 0, len(a.counts))
	for code, count := range a.counts {
		out = append(out, CityCount{CityCode: code, Count: count})
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].CityCode < out[j].CityCode
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// RebuiltAt reports when the last full rebuild finished. Zero when the
// aggregator has only seen incremental updates.
func (a *Aggregator) RebuiltAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rebuiltAt
}
