package vecindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemoryIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(context.Background(), []*Datapoint{
		{ID: "a_profile", UserID: "a", VectorType: VectorTypeProfile, CityCode: "100", Vector: []float32{1, 0}},
		{ID: "a_preference", UserID: "a", VectorType: VectorTypePreference, CityCode: "100", Vector: []float32{0, 1}},
		{ID: "b_profile", UserID: "b", VectorType: VectorTypeProfile, CityCode: "100", Vector: []float32{0.9, 0.1}},
		{ID: "c_profile", UserID: "c", VectorType: VectorTypeProfile, CityCode: "941", Vector: []float32{0, 1}},
	}))
	return idx
}

func TestMemoryIndexFindNeighbors(t *testing.T) {
	idx := seedMemoryIndex(t)

	neighbors, err := idx.FindNeighbors(context.Background(), &Query{
		Vector:     []float32{1, 0},
		K:          10,
		VectorType: VectorTypeProfile,
	})
	require.NoError(t, err)
	require.Len(t, neighbors, 3)
	assert.Equal(t, "a_profile", neighbors[0].DatapointID)
	assert.InDelta(t, 0.0, neighbors[0].Distance, 1e-6)
	assert.Equal(t, "b_profile", neighbors[1].DatapointID)
}

func TestMemoryIndexFilters(t *testing.T) {
	idx := seedMemoryIndex(t)

	t.Run("city restriction", func(t *testing.T) {
		neighbors, err := idx.FindNeighbors(context.Background(), &Query{
			Vector:     []float32{1, 0},
			K:          10,
			VectorType: VectorTypeProfile,
			CityCode:   "941",
		})
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.Equal(t, "c", neighbors[0].UserID)
	})

	t.Run("exclude user", func(t *testing.T) {
		neighbors, err := idx.FindNeighbors(context.Background(), &Query{
			DatapointID:   "a_preference",
			K:             10,
			VectorType:    VectorTypeProfile,
			ExcludeUserID: "a",
		})
		require.NoError(t, err)
		for _, n := range neighbors {
			assert.NotEqual(t, "a", n.UserID)
		}
	})
}

func TestMemoryIndexGetAndRemove(t *testing.T) {
	idx := seedMemoryIndex(t)

	vector, err := idx.GetDatapoint(context.Background(), "a_profile")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vector)

	require.NoError(t, idx.Remove(context.Background(), "a"))
	_, err = idx.GetDatapoint(context.Background(), "a_profile")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = idx.GetDatapoint(context.Background(), "a_preference")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryIndexUnknownQueryDatapoint(t *testing.T) {
	idx := NewMemoryIndex()
	_, err := idx.FindNeighbors(context.Background(), &Query{DatapointID: "missing", K: 5})
	assert.ErrorIs(t, err, ErrNotFound)
}
