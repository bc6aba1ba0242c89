package vecindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MemoryIndex is an application-layer Index doing brute-force search over an
// in-process map. It backs the sqlite driver, which has no vector extension;
// production deployments use the pgvector-backed index instead.
type MemoryIndex struct {
	mu         sync.RWMutex
	datapoints map[string]*Datapoint
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{datapoints: map[string]*Datapoint{}}
}

func (m *MemoryIndex) FindNeighbors(_ context.Context, query *Query) ([]Neighbor, error) {
	if query.K <= 0 {
		return nil, errors.New("neighbor count must be positive")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	queryVector := query.Vector
	if queryVector == nil {
		dp, ok := m.datapoints[query.DatapointID]
		if !ok {
			return nil, errors.Wrapf(ErrNotFound, "datapoint %s", query.DatapointID)
		}
		queryVector = dp.Vector
	}

	neighbors := []Neighbor{}
	for _, dp := range m.datapoints {
		if query.VectorType != "" && dp.VectorType != query.VectorType {
			continue
		}
		if query.CityCode != "" && dp.CityCode != query.CityCode {
			continue
		}
		if query.ExcludeUserID != "" && dp.UserID == query.ExcludeUserID {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			DatapointID: dp.ID,
			UserID:      dp.UserID,
			Distance:    cosineDistance(queryVector, dp.Vector),
			Vector:      dp.Vector,
		})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].DatapointID < neighbors[j].DatapointID
	})
	if len(neighbors) > query.K {
		neighbors = neighbors[:query.K]
	}
	return neighbors, nil
}

func (m *MemoryIndex) GetDatapoint(_ context.Context, datapointID string) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dp, ok := m.datapoints[datapointID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "datapoint %s", datapointID)
	}
	return dp.Vector, nil
}

func (m *MemoryIndex) Upsert(_ context.Context, datapoints []*Datapoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, dp := range datapoints {
		m.datapoints[dp.ID] = dp
	}
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, dp := range m.datapoints {
		if dp.UserID == userID {
			delete(m.datapoints, id)
		}
	}
	return nil
}

// cosineDistance is 1 - cosine similarity, matching the pgvector <=>
// operator. Degenerate vectors get the maximum distance of 1.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1.0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
