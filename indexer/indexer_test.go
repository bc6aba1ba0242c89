package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestmate/nestmate/store"
	"github.com/nestmate/nestmate/vecindex"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*store.UserProfile
}

func (f *fakeUsers) GetUser(_ context.Context, find *store.FindUser) (*store.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if find.ID == nil {
		return nil, errors.New("find needs an id")
	}
	u, ok := f.users[*find.ID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeIndex struct {
	mu         sync.Mutex
	datapoints map[string]*vecindex.Datapoint
	upsertErrs int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{datapoints: map[string]*vecindex.Datapoint{}}
}

func (f *fakeIndex) FindNeighbors(context.Context, *vecindex.Query) ([]vecindex.Neighbor, error) {
	return nil, nil
}

func (f *fakeIndex) GetDatapoint(_ context.Context, id string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dp, ok := f.datapoints[id]
	if !ok {
		return nil, vecindex.ErrNotFound
	}
	return dp.Vector, nil
}

func (f *fakeIndex) Upsert(_ context.Context, datapoints []*vecindex.Datapoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErrs > 0 {
		f.upsertErrs--
		return errors.New("transient backend error")
	}
	for _, dp := range datapoints {
		f.datapoints[dp.ID] = dp
	}
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, dp := range f.datapoints {
		if dp.UserID == userID {
			delete(f.datapoints, id)
		}
	}
	return nil
}

func (f *fakeIndex) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.datapoints[id]
	return ok
}

func completeUser(id string) *store.UserProfile {
	dob := time.Date(1995, 6, 1, 0, 0, 0, 0, time.UTC)
	return &store.UserProfile{
		ID:          id,
		FirstName:   "Test",
		LastName:    id,
		Gender:      "female",
		ZipCode:     "10001",
		DateOfBirth: &dob,
	}
}

func TestSyncUserUpsertsBothVectors(t *testing.T) {
	users := &fakeUsers{users: map[string]*store.UserProfile{"u1": completeUser("u1")}}
	index := newFakeIndex()
	idx := New(users, &fakeEmbedder{}, index, 0)

	idx.Start(context.Background())
	idx.EnqueueSync("u1")
	idx.Stop()

	assert.True(t, index.has("u1_profile"))
	assert.True(t, index.has("u1_preference"))

	index.mu.Lock()
	defer index.mu.Unlock()
	assert.Equal(t, "100", index.datapoints["u1_profile"].CityCode)
	assert.Equal(t, vecindex.VectorTypePreference, index.datapoints["u1_preference"].VectorType)
}

func TestSyncDeletedUserRemovesVectors(t *testing.T) {
	users := &fakeUsers{users: map[string]*store.UserProfile{}}
	index := newFakeIndex()
	index.datapoints["gone_profile"] = &vecindex.Datapoint{ID: "gone_profile", UserID: "gone"}

	idx := New(users, &fakeEmbedder{}, index, 0)
	idx.Start(context.Background())
	idx.EnqueueSync("gone")
	idx.Stop()

	assert.False(t, index.has("gone_profile"))
}

func TestSyncIncompleteUserRemovesVectors(t *testing.T) {
	users := &fakeUsers{users: map[string]*store.UserProfile{
		"half": {ID: "half", FirstName: "Only"},
	}}
	index := newFakeIndex()
	index.datapoints["half_profile"] = &vecindex.Datapoint{ID: "half_profile", UserID: "half"}

	embedder := &fakeEmbedder{}
	idx := New(users, embedder, index, 0)
	idx.Start(context.Background())
	idx.EnqueueSync("half")
	idx.Stop()

	assert.False(t, index.has("half_profile"))
	assert.Zero(t, embedder.calls, "incomplete profiles must not be embedded")
}

func TestEnqueueRemove(t *testing.T) {
	index := newFakeIndex()
	index.datapoints["u1_profile"] = &vecindex.Datapoint{ID: "u1_profile", UserID: "u1"}
	index.datapoints["u1_preference"] = &vecindex.Datapoint{ID: "u1_preference", UserID: "u1"}

	idx := New(&fakeUsers{}, &fakeEmbedder{}, index, 0)
	idx.Start(context.Background())
	idx.EnqueueRemove("u1")
	idx.Stop()

	assert.False(t, index.has("u1_profile"))
	assert.False(t, index.has("u1_preference"))
}

func TestRetriesTransientFailures(t *testing.T) {
	users := &fakeUsers{users: map[string]*store.UserProfile{"u1": completeUser("u1")}}
	index := newFakeIndex()
	index.upsertErrs = 1

	idx := New(users, &fakeEmbedder{}, index, 0)
	idx.backoff = time.Millisecond
	idx.Start(context.Background())
	idx.EnqueueSync("u1")
	idx.Stop()

	assert.True(t, index.has("u1_profile"), "second attempt must succeed")
}

func TestReindex(t *testing.T) {
	users := &fakeUsers{users: map[string]*store.UserProfile{
		"u1": completeUser("u1"),
		"u2": completeUser("u2"),
	}}
	index := newFakeIndex()
	idx := New(users, &fakeEmbedder{}, index, 0)

	require.NoError(t, idx.Reindex(context.Background(), []string{"u1", "u2"}))
	assert.True(t, index.has("u1_profile"))
	assert.True(t, index.has("u2_preference"))
}
