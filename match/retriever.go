package match

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/nestmate/nestmate/store"
	"github.com/nestmate/nestmate/vecindex"
)

// defaultMaxCandidates caps the candidate pool regardless of the requested
// top-K.
const defaultMaxCandidates = 150

// candidate is one retrieved neighbor with the profile vector the backend
// returned alongside it. Vectors come back with the search response, so
// candidate profile vectors never need a second fetch.
type candidate struct {
	userID        string
	profileVector []float32
	distance      float64
}

// candidateRetriever runs the two-phase nearest-neighbor retrieval: first
// restricted to the requester's city, then a global pass to fill the
// remaining budget with out-of-city candidates.
type candidateRetriever struct {
	index         vecindex.Index
	multiplier    int
	maxCandidates int
}

// retrieve queries the requester's preference vector against candidate
// profile vectors. Results are deduplicated by user ID keeping the
// first-seen (city-phase) entry, and never include the requester.
func (r *candidateRetriever) retrieve(ctx context.Context, requester *store.UserProfile, topK int) ([]candidate, error) {
	limit := topK * r.multiplier
	if limit > r.maxCandidates {
		limit = r.maxCandidates
	}

	datapointID := vecindex.PreferenceDatapointID(requester.ID)
	seen := make(map[string]bool)
	out := make([]candidate, 0, limit)

	appendNeighbors := func(neighbors []vecindex.Neighbor) {
		for _, n := range neighbors {
			if n.UserID == requester.ID || seen[n.UserID] {
				continue
			}
			seen[n.UserID] = true
			out = append(out, candidate{
				userID:        n.UserID,
				profileVector: n.Vector,
				distance:      n.Distance,
			})
		}
	}

	if cityCode := requester.CityCode(); cityCode != "" {
		neighbors, err := r.index.FindNeighbors(ctx, &vecindex.Query{
			DatapointID:   datapointID,
			K:             limit,
			VectorType:    vecindex.VectorTypeProfile,
			CityCode:      cityCode,
			ExcludeUserID: requester.ID,
		})
		if err != nil {
			return nil, errors.Wrap(err, "city-restricted neighbor search")
		}
		appendNeighbors(neighbors)
	}

	if remaining := limit - len(out); remaining > 0 {
		neighbors, err := r.index.FindNeighbors(ctx, &vecindex.Query{
			DatapointID:   datapointID,
			K:             limit,
			VectorType:    vecindex.VectorTypeProfile,
			ExcludeUserID: requester.ID,
		})
		if err != nil {
			return nil, errors.Wrap(err, "global neighbor search")
		}
		appendNeighbors(neighbors)
	}

	if len(out) > limit {
		out = out[:limit]
	}
	slog.Debug("candidate retrieval finished",
		slog.String("user", requester.ID),
		slog.Int("limit", limit),
		slog.Int("candidates", len(out)))
	return out, nil
}
