// Package indexer keeps the vector index in sync with user mutations. Sync
// requests are queued and processed asynchronously by a background worker
// with at-least-once semantics, so a slow or flaky embedding provider never
// blocks the write path.
package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/nestmate/nestmate/ai"
	"github.com/nestmate/nestmate/store"
	"github.com/nestmate/nestmate/vecindex"
)

const (
	defaultQueueSize   = 256
	defaultMaxAttempts = 3
	retryBackoff       = 2 * time.Second
)

type jobKind int

const (
	jobSync jobKind = iota
	jobRemove
)

type job struct {
	id       string
	kind     jobKind
	userID   string
	attempts int
}

// UserGetter loads the profile to embed.
type UserGetter interface {
	GetUser(ctx context.Context, find *store.FindUser) (*store.UserProfile, error)
}

// Indexer embeds user profiles and preferences and writes the resulting
// vectors into the index.
type Indexer struct {
	users    UserGetter
	embedder ai.EmbeddingService
	index    vecindex.Index
	limiter  *rate.Limiter

	jobs        chan job
	wg          sync.WaitGroup
	maxAttempts int
	backoff     time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates an indexer. ratePerSec throttles embedding calls; zero or
// negative disables throttling.
func New(users UserGetter, embedder ai.EmbeddingService, index vecindex.Index, ratePerSec float64) *Indexer {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Indexer{
		users:       users,
		embedder:    embedder,
		index:       index,
		limiter:     rate.NewLimiter(limit, 1),
		jobs:        make(chan job, defaultQueueSize),
		maxAttempts: defaultMaxAttempts,
		backoff:     retryBackoff,
	}
}

// Start launches the background worker. The context bounds job processing;
// cancelling it abandons retries but Stop still drains queued jobs.
func (i *Indexer) Start(ctx context.Context) {
	i.startOnce.Do(func() {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			for j := range i.jobs {
				i.process(ctx, j)
			}
		}()
	})
}

// Stop closes the queue and waits for the worker to drain it.
func (i *Indexer) Stop() {
	i.stopOnce.Do(func() {
		close(i.jobs)
	})
	i.wg.Wait()
}

// EnqueueSync schedules (re)indexing of a user's vectors. Non-blocking: when
// the queue is full the job is dropped with an error log, and the next
// mutation or a full reindex will catch the user up.
func (i *Indexer) EnqueueSync(userID string) {
	i.enqueue(job{id: uuid.NewString(), kind: jobSync, userID: userID})
}

// EnqueueRemove schedules removal of a user's vectors.
func (i *Indexer) EnqueueRemove(userID string) {
	i.enqueue(job{id: uuid.NewString(), kind: jobRemove, userID: userID})
}

func (i *Indexer) enqueue(j job) {
	select {
	case i.jobs <- j:
	default:
		slog.Error("indexer queue full, dropping job",
			slog.String("job", j.id),
			slog.String("user", j.userID))
	}
}

func (i *Indexer) process(ctx context.Context, j job) {
	for j.attempts = 1; ; j.attempts++ {
		err := i.run(ctx, j)
		if err == nil {
			slog.Debug("indexer job done",
				slog.String("job", j.id),
				slog.String("user", j.userID),
				slog.Int("attempts", j.attempts))
			return
		}
		if j.attempts >= i.maxAttempts || ctx.Err() != nil {
			slog.Error("indexer job failed",
				slog.String("job", j.id),
				slog.String("user", j.userID),
				slog.Int("attempts", j.attempts),
				slog.Any("err", err))
			return
		}

		slog.Warn("indexer job retrying",
			slog.String("job", j.id),
			slog.String("user", j.userID),
			slog.Any("err", err))
		select {
		case <-time.After(i.backoff):
		case <-ctx.Done():
			return
		}
	}
}

func (i *Indexer) run(ctx context.Context, j job) error {
	if j.kind == jobRemove {
		return i.index.Remove(ctx, j.userID)
	}
	return i.syncUser(ctx, j.userID)
}

// syncUser regenerates both vectors from the current profile state. A user
// deleted between enqueue and processing is treated as a removal. Incomplete
// profiles are removed from the index rather than embedded, so half-filled
// users never surface as candidates.
func (i *Indexer) syncUser(ctx context.Context, userID string) error {
	user, err := i.users.GetUser(ctx, &store.FindUser{ID: &userID})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return i.index.Remove(ctx, userID)
		}
		return errors.Wrap(err, "load user")
	}
	if !user.IsComplete() {
		return i.index.Remove(ctx, userID)
	}
	if i.embedder == nil {
		return errors.New("no embedding provider configured")
	}

	if err := i.limiter.Wait(ctx); err != nil {
		return err
	}

	vectors, err := i.embedder.EmbedBatch(ctx, []string{
		ai.ProfileText(user),
		ai.PreferenceText(user),
	})
	if err != nil {
		return errors.Wrap(err, "embed user texts")
	}
	if len(vectors) != 2 {
		return errors.Errorf("expected 2 vectors, got %d", len(vectors))
	}

	cityCode := user.CityCode()
	return i.index.Upsert(ctx, []*vecindex.Datapoint{
		{
			ID:         vecindex.ProfileDatapointID(userID),
			UserID:     userID,
			VectorType: vecindex.VectorTypeProfile,
			CityCode:   cityCode,
			Vector:     vectors[0],
		},
		{
			ID:         vecindex.PreferenceDatapointID(userID),
			UserID:     userID,
			VectorType: vecindex.VectorTypePreference,
			CityCode:   cityCode,
			Vector:     vectors[1],
		},
	})
}

// Reindex synchronously rebuilds vectors for every listed user. Used by the
// reindex admin endpoint and by initial backfills.
func (i *Indexer) Reindex(ctx context.Context, userIDs []string) error {
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := i.syncUser(ctx, userID); err != nil {
			return errors.Wrapf(err, "reindex user %s", userID)
		}
	}
	return nil
}
