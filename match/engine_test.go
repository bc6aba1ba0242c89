package match

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestmate/nestmate/store"
	"github.com/nestmate/nestmate/vecindex"
)

func newTestEngine(t *testing.T, users *fakeUserStore, index *fakeIndex, opts Options) *Engine {
	t.Helper()
	engine, err := NewEngine(users, index, nil, NewMetrics(nil), opts)
	require.NoError(t, err)
	return engine
}

// seedUser stores both vectors for a complete user.
func seedUser(index *fakeIndex, u *store.UserProfile, profileVec, prefVec []float32) {
	index.add(u.ID, vecindex.VectorTypeProfile, u.CityCode(), profileVec)
	index.add(u.ID, vecindex.VectorTypePreference, u.CityCode(), prefVec)
}

func TestFindMutualMatchesRanking(t *testing.T) {
	ctx := context.Background()

	requester := completeUser("req", "female", "10001", 28)
	close1 := completeUser("close1", "female", "10002", 28)
	close2 := completeUser("close2", "female", "10050", 29)

	users := newFakeUserStore(requester, close1, close2)
	index := newFakeIndex()
	seedUser(index, requester, []float32{1, 0, 0}, []float32{0.9, 0.1, 0})
	// close1 aligns almost exactly with the requester's preference.
	seedUser(index, close1, []float32{0.9, 0.1, 0}, []float32{1, 0, 0})
	// close2 is further in embedding space and zip distance.
	seedUser(index, close2, []float32{0.3, 0.7, 0}, []float32{0.5, 0.5, 0})

	engine := newTestEngine(t, users, index, Options{})
	results, err := engine.FindMutualMatches(ctx, "req", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "close1", results[0].User.ID)
	assert.Equal(t, "close2", results[1].User.ID)
	assert.Greater(t, results[0].MutualScore, results[1].MutualScore)
	for _, r := range results {
		assert.NotEqual(t, "req", r.User.ID, "requester must never match itself")
		assert.GreaterOrEqual(t, r.MutualScore, 0.0)
		assert.LessOrEqual(t, r.MutualScore, 1.0)
	}
}

func TestFindMutualMatchesIncompleteRequester(t *testing.T) {
	requester := &store.UserProfile{ID: "req", FirstName: "Only"}
	users := newFakeUserStore(requester)
	engine := newTestEngine(t, users, newFakeIndex(), Options{})

	results, err := engine.FindMutualMatches(context.Background(), "req", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindMutualMatchesUnknownRequester(t *testing.T) {
	engine := newTestEngine(t, newFakeUserStore(), newFakeIndex(), Options{})

	_, err := engine.FindMutualMatches(context.Background(), "nobody", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUserNotFound))
}

func TestFindMutualMatchesRequesterNotIndexed(t *testing.T) {
	requester := completeUser("req", "female", "10001", 28)
	users := newFakeUserStore(requester)
	engine := newTestEngine(t, users, newFakeIndex(), Options{})

	results, err := engine.FindMutualMatches(context.Background(), "req", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindMutualMatchesSkipsIncompleteCandidates(t *testing.T) {
	requester := completeUser("req", "female", "10001", 28)
	ghost := &store.UserProfile{ID: "ghost", ZipCode: "10002"}

	users := newFakeUserStore(requester, ghost)
	index := newFakeIndex()
	seedUser(index, requester, []float32{1, 0}, []float32{1, 0})
	index.add("ghost", vecindex.VectorTypeProfile, "100", []float32{1, 0})
	index.add("ghost", vecindex.VectorTypePreference, "100", []float32{1, 0})

	engine := newTestEngine(t, users, index, Options{})
	results, err := engine.FindMutualMatches(context.Background(), "req", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindMutualMatchesSkipsHardFilteredCandidates(t *testing.T) {
	requester := completeUser("req", "female", "10001", 28)
	requester.Preferences = &store.Preference{Gender: "female"}
	male := completeUser("male", "male", "10002", 28)

	users := newFakeUserStore(requester, male)
	index := newFakeIndex()
	seedUser(index, requester, []float32{1, 0}, []float32{1, 0})
	seedUser(index, male, []float32{1, 0}, []float32{1, 0})

	engine := newTestEngine(t, users, index, Options{})
	results, err := engine.FindMutualMatches(context.Background(), "req", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindMutualMatchesSkipsCandidateWithoutPreferenceVector(t *testing.T) {
	requester := completeUser("req", "female", "10001", 28)
	partial := completeUser("partial", "female", "10002", 28)
	whole := completeUser("whole", "female", "10003", 28)

	users := newFakeUserStore(requester, partial, whole)
	index := newFakeIndex()
	seedUser(index, requester, []float32{1, 0}, []float32{1, 0})
	seedUser(index, whole, []float32{1, 0}, []float32{1, 0})
	// Only the profile vector exists for the partial user.
	index.add("partial", vecindex.VectorTypeProfile, "100", []float32{1, 0})

	engine := newTestEngine(t, users, index, Options{})
	results, err := engine.FindMutualMatches(context.Background(), "req", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "whole", results[0].User.ID)
}

func TestFindMutualMatchesIncludesOutOfCityUnderGenderPolicy(t *testing.T) {
	requester := completeUser("req", "female", "10001", 28)
	local := completeUser("local", "female", "10002", 28)
	remote := completeUser("remote", "female", "94110", 28)

	users := newFakeUserStore(requester, local, remote)
	index := newFakeIndex()
	seedUser(index, requester, []float32{1, 0}, []float32{1, 0})
	seedUser(index, local, []float32{0.7, 0.3}, []float32{1, 0})
	// The remote profile is the better embedding fit but a worse locality.
	seedUser(index, remote, []float32{1, 0}, []float32{1, 0})

	engine := newTestEngine(t, users, index, Options{HardFilterPolicy: PolicyGender})
	results, err := engine.FindMutualMatches(context.Background(), "req", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	ids := []string{results[0].User.ID, results[1].User.ID}
	assert.Contains(t, ids, "local")
	assert.Contains(t, ids, "remote")
}

func TestFindMutualMatchesTruncatesToTopK(t *testing.T) {
	requester := completeUser("req", "female", "10001", 28)
	users := newFakeUserStore(requester)
	index := newFakeIndex()
	seedUser(index, requester, []float32{1, 0}, []float32{1, 0})

	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		c := completeUser(id, "female", "10002", 28)
		users.users[id] = c
		seedUser(index, c, []float32{1, 0}, []float32{1, 0})
	}

	engine := newTestEngine(t, users, index, Options{})
	results, err := engine.FindMutualMatches(context.Background(), "req", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFindMutualMatchesBackendFailure(t *testing.T) {
	requester := completeUser("req", "female", "10001", 28)
	users := newFakeUserStore(requester)
	index := newFakeIndex()
	seedUser(index, requester, []float32{1, 0}, []float32{1, 0})
	index.findErr = errors.New("backend down")

	engine := newTestEngine(t, users, index, Options{})
	_, err := engine.FindMutualMatches(context.Background(), "req", 10)
	require.Error(t, err)
}

func TestFindSimilarRoommates(t *testing.T) {
	requester := completeUser("req", "female", "10001", 28)
	near := completeUser("near", "female", "10002", 28)
	far := completeUser("far", "female", "10050", 28)

	users := newFakeUserStore(requester, near, far)
	index := newFakeIndex()
	seedUser(index, requester, []float32{1, 0, 0}, []float32{0, 1, 0})
	seedUser(index, near, []float32{0, 1, 0}, []float32{1, 0, 0})
	seedUser(index, far, []float32{0.4, 0.6, 0}, []float32{1, 0, 0})

	engine := newTestEngine(t, users, index, Options{})
	results, err := engine.FindSimilarRoommates(context.Background(), "req", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "near", results[0].User.ID)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
	assert.Greater(t, results[0].HybridScore, results[1].HybridScore)
}

func TestSearchByText(t *testing.T) {
	alice := completeUser("alice", "female", "10001", 28)
	bob := completeUser("bob", "male", "10002", 30)

	users := newFakeUserStore(alice, bob)
	index := newFakeIndex()
	seedUser(index, alice, []float32{1, 0}, []float32{0, 1})
	seedUser(index, bob, []float32{0, 1}, []float32{1, 0})

	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	engine, err := NewEngine(users, index, embedder, NewMetrics(nil), Options{})
	require.NoError(t, err)

	results, err := engine.SearchByText(context.Background(), "quiet early riser", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "alice", results[0].User.ID)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
}

func TestSearchByTextWithoutEmbedder(t *testing.T) {
	engine := newTestEngine(t, newFakeUserStore(), newFakeIndex(), Options{})
	_, err := engine.SearchByText(context.Background(), "anything", 5)
	require.Error(t, err)
}
