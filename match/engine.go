package match

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/nestmate/nestmate/ai"
	"github.com/nestmate/nestmate/store"
	"github.com/nestmate/nestmate/vecindex"
)

// UserStore is the subset of the user store the engine needs.
type UserStore interface {
	GetUser(ctx context.Context, find *store.FindUser) (*store.UserProfile, error)
	ListUsersByIDs(ctx context.Context, ids []string) (map[string]*store.UserProfile, error)
}

// Options tune the engine. Zero values fall back to production defaults.
type Options struct {
	// TopKMultiplier scales the requested top-K into the retrieval pool size.
	TopKMultiplier int
	// MaxCandidates caps the retrieval pool regardless of top-K.
	MaxCandidates int
	// FetchConcurrency bounds parallel companion vector fetches.
	FetchConcurrency int
	HardFilterPolicy HardFilterPolicy
	Weights          Weights
}

func (o *Options) applyDefaults() {
	if o.TopKMultiplier <= 0 {
		o.TopKMultiplier = 10
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = defaultMaxCandidates
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 8
	}
	if o.HardFilterPolicy == "" {
		o.HardFilterPolicy = PolicyGenderCity
	}
	if o.Weights == (Weights{}) {
		o.Weights = DefaultWeights()
	}
}

// Result is one ranked candidate from the mutual matching pipeline.
type Result struct {
	User *store.UserProfile `json:"user"`
	// ForwardScore is how well the candidate matches the requester.
	ForwardScore float64 `json:"forwardScore"`
	// ReverseScore is how well the requester matches the candidate.
	ReverseScore float64 `json:"reverseScore"`
	// MutualScore is the average of the two hybrid directions; results are
	// ranked by it.
	MutualScore float64 `json:"mutualScore"`
	// EmbeddingScore is the requester-preference vs candidate-profile cosine
	// similarity, clamped to [0,1].
	EmbeddingScore float64 `json:"embeddingScore"`
	// AttributeScore is the rule-based mutual attribute score.
	AttributeScore float64 `json:"attributeScore"`
}

// SimilarResult is one candidate from the one-directional similarity search.
type SimilarResult struct {
	User            *store.UserProfile `json:"user"`
	SimilarityScore float64            `json:"similarityScore"`
	AttributeScore  float64            `json:"attributeScore"`
	HybridScore     float64            `json:"hybridScore"`
}

// SearchResult is one hit from free-text profile search.
type SearchResult struct {
	User            *store.UserProfile `json:"user"`
	SimilarityScore float64            `json:"similarityScore"`
}

// Engine runs the hybrid matching pipelines over the user store and the
// vector index.
type Engine struct {
	users    UserStore
	index    vecindex.Index
	embedder ai.EmbeddingService
	scorer   *AttributeScorer
	metrics  *Metrics

	retriever *candidateRetriever
	fetcher   *companionFetcher
}

// NewEngine wires the matching engine. The embedder may be nil when the
// deployment has no embedding provider; free-text search then returns an
// error and the vector pipelines still work against the stored index.
func NewEngine(users UserStore, index vecindex.Index, embedder ai.EmbeddingService, metrics *Metrics, opts Options) (*Engine, error) {
	opts.applyDefaults()
	scorer, err := NewAttributeScorer(opts.HardFilterPolicy, opts.Weights)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Engine{
		users:    users,
		index:    index,
		embedder: embedder,
		scorer:   scorer,
		metrics:  metrics,
		retriever: &candidateRetriever{
			index:         index,
			multiplier:    opts.TopKMultiplier,
			maxCandidates: opts.MaxCandidates,
		},
		fetcher: &companionFetcher{
			index:       index,
			concurrency: opts.FetchConcurrency,
			metrics:     metrics,
		},
	}, nil
}

// Scorer exposes the attribute scorer for pairwise scoring and tests.
func (e *Engine) Scorer() *AttributeScorer {
	return e.scorer
}

// FindMutualMatches runs the full hybrid pipeline for a requester: retrieve
// candidates by preference-to-profile similarity, gate them through the
// bidirectional hard filter, blend attribute and embedding scores in both
// directions and rank by the mutual score.
//
// An incomplete requester profile or missing requester vectors yield an
// empty result, not an error. Individual candidate failures are skipped.
func (e *Engine) FindMutualMatches(ctx context.Context, userID string, topK int) ([]*Result, error) {
	start := time.Now()
	defer func() {
		e.metrics.observe("mutual", time.Since(start).Seconds())
	}()
	if topK <= 0 {
		topK = 10
	}

	requester, err := e.users.GetUser(ctx, &store.FindUser{ID: &userID})
	if err != nil {
		return nil, errors.Wrap(err, "load requester")
	}
	if !requester.IsComplete() {
		slog.Info("matching skipped for incomplete profile", slog.String("user", userID))
		return []*Result{}, nil
	}

	requesterPrefVec, requesterProfileVec, err := e.requesterVectors(ctx, userID)
	if err != nil {
		return nil, err
	}
	if requesterPrefVec == nil || requesterProfileVec == nil {
		slog.Warn("matching skipped, requester vectors not indexed", slog.String("user", userID))
		return []*Result{}, nil
	}

	candidates, err := e.retriever.retrieve(ctx, requester, topK)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.userID)
	}
	prefVectors := e.fetcher.fetchPreferenceVectors(ctx, ids)
	users, err := e.users.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load candidate profiles")
	}

	results := make([]*Result, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cand, ok := users[c.userID]
		if !ok || !cand.IsComplete() {
			e.metrics.skipped(SkipReasonIncomplete)
			continue
		}
		if !e.scorer.MeetsHardRequirements(requester, cand) ||
			!e.scorer.MeetsHardRequirements(cand, requester) {
			e.metrics.skipped(SkipReasonHardFilter)
			continue
		}
		candPrefVec, ok := prefVectors[c.userID]
		if !ok {
			e.metrics.skipped(SkipReasonMissingVector)
			continue
		}

		forwardAttr := e.scorer.CompatibilityScore(requester, cand)
		reverseAttr := e.scorer.CompatibilityScore(cand, requester)
		forwardEmb := CosineSimilarity(requesterPrefVec, c.profileVector)
		reverseEmb := CosineSimilarity(candPrefVec, requesterProfileVec)

		forward := hybridScore(forwardAttr, forwardEmb)
		reverse := hybridScore(reverseAttr, reverseEmb)

		e.metrics.scored()
		results = append(results, &Result{
			User:           cand,
			ForwardScore:   forward,
			ReverseScore:   reverse,
			MutualScore:    (forward + reverse) / 2.0,
			EmbeddingScore: clamp01(forwardEmb),
			AttributeScore: (forwardAttr + reverseAttr) / 2.0,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].MutualScore != results[j].MutualScore {
			return results[i].MutualScore > results[j].MutualScore
		}
		return results[i].User.ID < results[j].User.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}

	slog.Debug("mutual matching finished",
		slog.String("user", userID),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}

// requesterVectors loads the requester's own preference and profile vectors.
// Not-indexed is reported as nil vectors; backend failures are errors.
func (e *Engine) requesterVectors(ctx context.Context, userID string) (pref, profile []float32, err error) {
	pref, err = e.index.GetDatapoint(ctx, vecindex.PreferenceDatapointID(userID))
	if err != nil {
		if errors.Is(err, vecindex.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "load requester preference vector")
	}
	profile, err = e.index.GetDatapoint(ctx, vecindex.ProfileDatapointID(userID))
	if err != nil {
		if errors.Is(err, vecindex.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "load requester profile vector")
	}
	return pref, profile, nil
}

// FindSimilarRoommates is the one-directional search: candidates whose
// profiles are closest to the requester's stated preference, scored only
// from the requester's point of view.
func (e *Engine) FindSimilarRoommates(ctx context.Context, userID string, topK int) ([]*SimilarResult, error) {
	start := time.Now()
	defer func() {
		e.metrics.observe("similar", time.Since(start).Seconds())
	}()
	if topK <= 0 {
		topK = 10
	}

	requester, err := e.users.GetUser(ctx, &store.FindUser{ID: &userID})
	if err != nil {
		return nil, errors.Wrap(err, "load requester")
	}
	if !requester.IsComplete() {
		return []*SimilarResult{}, nil
	}

	neighbors, err := e.index.FindNeighbors(ctx, &vecindex.Query{
		DatapointID:   vecindex.PreferenceDatapointID(userID),
		K:             topK * 2,
		VectorType:    vecindex.VectorTypeProfile,
		ExcludeUserID: userID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "neighbor search")
	}

	results, err := rankNeighbors(ctx, e, neighbors, func(cand *store.UserProfile, similarity float64) *SimilarResult {
		attr := e.scorer.CompatibilityScore(requester, cand)
		return &SimilarResult{
			User:            cand,
			SimilarityScore: similarity,
			AttributeScore:  attr,
			HybridScore:     hybridScore(attr, similarity),
		}
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].HybridScore != results[j].HybridScore {
			return results[i].HybridScore > results[j].HybridScore
		}
		return results[i].User.ID < results[j].User.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SearchByText embeds a free-text query and returns the users whose profile
// vectors are closest to it.
func (e *Engine) SearchByText(ctx context.Context, query string, topK int) ([]*SearchResult, error) {
	start := time.Now()
	defer func() {
		e.metrics.observe("search", time.Since(start).Seconds())
	}()
	if e.embedder == nil {
		return nil, errors.New("text search requires an embedding provider")
	}
	if topK <= 0 {
		topK = 10
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	neighbors, err := e.index.FindNeighbors(ctx, &vecindex.Query{
		Vector:     vector,
		K:          topK,
		VectorType: vecindex.VectorTypeProfile,
	})
	if err != nil {
		return nil, errors.Wrap(err, "neighbor search")
	}

	results, err := rankNeighbors(ctx, e, neighbors, func(cand *store.UserProfile, similarity float64) *SearchResult {
		return &SearchResult{User: cand, SimilarityScore: similarity}
	})
	if err != nil {
		return nil, err
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// rankNeighbors joins neighbors with their stored profiles, dropping
// incomplete or missing users, and converts cosine distance to similarity.
func rankNeighbors[T any](ctx context.Context, e *Engine, neighbors []vecindex.Neighbor, build func(*store.UserProfile, float64) T) ([]T, error) {
	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		ids = append(ids, n.UserID)
	}
	users, err := e.users.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load candidate profiles")
	}

	out := make([]T, 0, len(neighbors))
	for _, n := range neighbors {
		cand, ok := users[n.UserID]
		if !ok || !cand.IsComplete() {
			e.metrics.skipped(SkipReasonIncomplete)
			continue
		}
		out = append(out, build(cand, clamp01(1.0-n.Distance)))
	}
	return out, nil
}
