// Package vecindex defines the nearest-neighbor search backend contract for
// user embedding vectors. Every user has up to two datapoints in the index: a
// profile vector (who the user is) and a preference vector (what the user
// wants), addressed as "{userID}_profile" and "{userID}_preference".
package vecindex

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Vector classes stored in the index, used as restrict filters.
const (
	VectorTypeProfile    = "profile"
	VectorTypePreference = "preference"
)

// ErrNotFound is returned when a datapoint does not exist in the index.
var ErrNotFound = errors.New("datapoint not found")

// Datapoint is a single named vector stored in the index.
type Datapoint struct {
	ID         string
	UserID     string
	VectorType string
	CityCode   string
	Vector     []float32
}

// Neighbor is a nearest-neighbor search hit. The backend returns the matched
// vector verbatim so callers never have to regenerate embeddings.
type Neighbor struct {
	DatapointID string
	UserID      string
	Distance    float64 // cosine distance; similarity = 1 - distance
	Vector      []float32
}

// Query describes a nearest-neighbor search. Exactly one of DatapointID or
// Vector must be set.
type Query struct {
	DatapointID   string
	Vector        []float32
	K             int
	VectorType    string // restrict results to this vector class
	CityCode      string // optional locality restriction
	ExcludeUserID string
}

// Index is the vector search backend contract.
type Index interface {
	// FindNeighbors returns up to K nearest neighbors of the query vector,
	// ordered by ascending cosine distance.
	FindNeighbors(ctx context.Context, query *Query) ([]Neighbor, error)

	// GetDatapoint fetches a single stored vector by datapoint ID.
	GetDatapoint(ctx context.Context, datapointID string) ([]float32, error)

	// Upsert inserts or replaces datapoints.
	Upsert(ctx context.Context, datapoints []*Datapoint) error

	// Remove deletes all datapoints belonging to a user.
	Remove(ctx context.Context, userID string) error
}

// ProfileDatapointID returns the datapoint ID of a user's profile vector.
func ProfileDatapointID(userID string) string {
	return userID + "_" + VectorTypeProfile
}

// PreferenceDatapointID returns the datapoint ID of a user's preference vector.
func PreferenceDatapointID(userID string) string {
	return userID + "_" + VectorTypePreference
}

// SplitDatapointID splits a datapoint ID into user ID and vector type.
// User IDs may themselves contain underscores, so only the known suffixes are
// stripped.
func SplitDatapointID(datapointID string) (userID, vectorType string, ok bool) {
	for _, vt := range []string{VectorTypeProfile, VectorTypePreference} {
		suffix := "_" + vt
		if strings.HasSuffix(datapointID, suffix) {
			return strings.TrimSuffix(datapointID, suffix), vt, true
		}
	}
	return "", "", false
}
