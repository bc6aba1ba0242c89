package vecindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"
)

// PGIndex is an Index backed by a PostgreSQL table with a pgvector column.
// The user_embedding table is created by the store migration.
type PGIndex struct {
	db *sql.DB
}

// NewPGIndex creates a pgvector-backed index over an existing connection.
func NewPGIndex(db *sql.DB) *PGIndex {
	return &PGIndex{db: db}
}

// FindNeighbors returns the K nearest neighbors by cosine distance.
// The <=> operator computes cosine distance (1 - cosine_similarity), so
// ordering by it ascending yields most similar first.
func (i *PGIndex) FindNeighbors(ctx context.Context, query *Query) ([]Neighbor, error) {
	if query.K <= 0 {
		return nil, errors.New("neighbor count must be positive")
	}

	queryVector := query.Vector
	if queryVector == nil {
		if query.DatapointID == "" {
			return nil, errors.New("query needs a datapoint id or a vector")
		}
		var err error
		queryVector, err = i.GetDatapoint(ctx, query.DatapointID)
		if err != nil {
			return nil, err
		}
	}

	vector := pgvector.NewVector(queryVector)
	where, args := []string{"1 = 1"}, []any{}

	if query.VectorType != "" {
		args = append(args, query.VectorType)
		where = append(where, fmt.Sprintf("vector_type = $%d", len(args)))
	}
	if query.CityCode != "" {
		args = append(args, query.CityCode)
		where = append(where, fmt.Sprintf("city_code = $%d", len(args)))
	}
	if query.ExcludeUserID != "" {
		args = append(args, query.ExcludeUserID)
		where = append(where, fmt.Sprintf("user_id <> $%d", len(args)))
	}

	args = append(args, vector)
	distanceArg := len(args)
	args = append(args, query.K)
	limitArg := len(args)

	stmt := fmt.Sprintf(`
		SELECT datapoint_id, user_id, embedding, embedding <=> $%d AS distance
		FROM user_embedding
		WHERE %s
		ORDER BY distance
		LIMIT $%d
	`, distanceArg, strings.Join(where, " AND "), limitArg)

	rows, err := i.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find neighbors")
	}
	defer rows.Close()

	neighbors := []Neighbor{}
	for rows.Next() {
		var n Neighbor
		var embedding pgvector.Vector
		if err := rows.Scan(&n.DatapointID, &n.UserID, &embedding, &n.Distance); err != nil {
			return nil, errors.Wrap(err, "failed to scan neighbor")
		}
		n.Vector = embedding.Slice()
		neighbors = append(neighbors, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return neighbors, nil
}

// GetDatapoint fetches a stored vector by datapoint ID.
func (i *PGIndex) GetDatapoint(ctx context.Context, datapointID string) ([]float32, error) {
	var embedding pgvector.Vector
	err := i.db.QueryRowContext(ctx,
		`SELECT embedding FROM user_embedding WHERE datapoint_id = $1`, datapointID,
	).Scan(&embedding)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "datapoint %s", datapointID)
		}
		return nil, errors.Wrapf(err, "failed to get datapoint %s", datapointID)
	}
	return embedding.Slice(), nil
}

// Upsert inserts or replaces datapoints.
func (i *PGIndex) Upsert(ctx context.Context, datapoints []*Datapoint) error {
	stmt := `
		INSERT INTO user_embedding (datapoint_id, user_id, vector_type, city_code, embedding, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (datapoint_id)
		DO UPDATE SET
			city_code = EXCLUDED.city_code,
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
	`

	now := time.Now().Unix()
	for _, dp := range datapoints {
		vector := pgvector.NewVector(dp.Vector)
		if _, err := i.db.ExecContext(ctx, stmt, dp.ID, dp.UserID, dp.VectorType, dp.CityCode, vector, now); err != nil {
			return errors.Wrapf(err, "failed to upsert datapoint %s", dp.ID)
		}
	}
	return nil
}

// Remove deletes all datapoints belonging to a user.
func (i *PGIndex) Remove(ctx context.Context, userID string) error {
	if _, err := i.db.ExecContext(ctx, `DELETE FROM user_embedding WHERE user_id = $1`, userID); err != nil {
		return errors.Wrapf(err, "failed to remove datapoints for user %s", userID)
	}
	return nil
}
