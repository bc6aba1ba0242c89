package match

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/nestmate/nestmate/store"
	"github.com/nestmate/nestmate/vecindex"
)

type fakeUserStore struct {
	users map[string]*store.UserProfile
}

func newFakeUserStore(users ...*store.UserProfile) *fakeUserStore {
	s := &fakeUserStore{users: map[string]*store.UserProfile{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetUser(_ context.Context, find *store.FindUser) (*store.UserProfile, error) {
	if find.ID == nil {
		return nil, errors.New("find needs an id")
	}
	u, ok := s.users[*find.ID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeUserStore) ListUsersByIDs(_ context.Context, ids []string) (map[string]*store.UserProfile, error) {
	out := make(map[string]*store.UserProfile, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// fakeIndex is an in-memory Index doing brute-force cosine-distance search
// over its stored datapoints, honoring the same restrict filters as the
// pgvector backend.
type fakeIndex struct {
	datapoints map[string]*vecindex.Datapoint

	findErr      error
	datapointErr map[string]error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		datapoints:   map[string]*vecindex.Datapoint{},
		datapointErr: map[string]error{},
	}
}

func (i *fakeIndex) add(userID, vectorType, cityCode string, vector []float32) {
	id := userID + "_" + vectorType
	i.datapoints[id] = &vecindex.Datapoint{
		ID:         id,
		UserID:     userID,
		VectorType: vectorType,
		CityCode:   cityCode,
		Vector:     vector,
	}
}

func (i *fakeIndex) FindNeighbors(_ context.Context, query *vecindex.Query) ([]vecindex.Neighbor, error) {
	if i.findErr != nil {
		return nil, i.findErr
	}

	queryVector := query.Vector
	if queryVector == nil {
		dp, ok := i.datapoints[query.DatapointID]
		if !ok {
			return nil, errors.Wrapf(vecindex.ErrNotFound, "datapoint %s", query.DatapointID)
		}
		queryVector = dp.Vector
	}

	neighbors := []vecindex.Neighbor{}
	for _, dp := range i.datapoints {
		if query.VectorType != "" && dp.VectorType != query.VectorType {
			continue
		}
		if query.CityCode != "" && dp.CityCode != query.CityCode {
			continue
		}
		if query.ExcludeUserID != "" && dp.UserID == query.ExcludeUserID {
			continue
		}
		neighbors = append(neighbors, vecindex.Neighbor{
			DatapointID: dp.ID,
			UserID:      dp.UserID,
			Distance:    1.0 - CosineSimilarity(queryVector, dp.Vector),
			Vector:      dp.Vector,
		})
	}

	sort.Slice(neighbors, func(a, b int) bool {
		if neighbors[a].Distance != neighbors[b].Distance {
			return neighbors[a].Distance < neighbors[b].Distance
		}
		return neighbors[a].DatapointID < neighbors[b].DatapointID
	})
	if len(neighbors) > query.K {
		neighbors = neighbors[:query.K]
	}
	return neighbors, nil
}

func (i *fakeIndex) GetDatapoint(_ context.Context, datapointID string) ([]float32, error) {
	if err, ok := i.datapointErr[datapointID]; ok {
		return nil, err
	}
	dp, ok := i.datapoints[datapointID]
	if !ok {
		return nil, errors.Wrapf(vecindex.ErrNotFound, "datapoint %s", datapointID)
	}
	return dp.Vector, nil
}

func (i *fakeIndex) Upsert(_ context.Context, datapoints []*vecindex.Datapoint) error {
	for _, dp := range datapoints {
		i.datapoints[dp.ID] = dp
	}
	return nil
}

func (i *fakeIndex) Remove(_ context.Context, userID string) error {
	for id, dp := range i.datapoints {
		if dp.UserID == userID {
			delete(i.datapoints, id)
		}
	}
	return nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (e *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return e.vector, e.err
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, e.err
}

func (e *fakeEmbedder) Dimensions() int {
	return len(e.vector)
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }

func dobForAge(age int) *time.Time {
	t := time.Now().AddDate(-age, 0, -1)
	return &t
}

// completeUser builds a profile that passes the completeness gate.
func completeUser(id, gender, zip string, age int) *store.UserProfile {
	return &store.UserProfile{
		ID:          id,
		FirstName:   "Test",
		LastName:    id,
		Gender:      gender,
		ZipCode:     zip,
		DateOfBirth: dobForAge(age),
	}
}
