package v1

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nestmate/nestmate/indexer"
	"github.com/nestmate/nestmate/match"
	"github.com/nestmate/nestmate/store"
)

const (
	defaultTopK = 10
	maxTopK     = 50
)

type MatchService struct {
	Engine  *match.Engine
	Store   *store.Store
	Indexer *indexer.Indexer
}

// MatchResponse is one ranked mutual match on the wire.
type MatchResponse struct {
	User           *UserResponse `json:"user"`
	MutualScore    float64       `json:"mutualScore"`
	ForwardScore   float64       `json:"forwardScore"`
	ReverseScore   float64       `json:"reverseScore"`
	AttributeScore float64       `json:"attributeScore"`
	EmbeddingScore float64       `json:"embeddingScore"`
}

// FindMutualMatches handles GET /api/v1/users/:id/matches.
func (s *MatchService) FindMutualMatches(c echo.Context) error {
	userID := c.Param("id")
	topK := parseTopK(c.QueryParam("limit"))

	results, err := s.Engine.FindMutualMatches(c.Request().Context(), userID, topK)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return jsonError(c, http.StatusNotFound, "user not found")
		}
		slog.Error("mutual matching failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}

	out := make([]*MatchResponse, 0, len(results))
	for _, r := range results {
		out = append(out, &MatchResponse{
			User:           convertUser(r.User),
			MutualScore:    r.MutualScore,
			ForwardScore:   r.ForwardScore,
			ReverseScore:   r.ReverseScore,
			AttributeScore: r.AttributeScore,
			EmbeddingScore: r.EmbeddingScore,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"matches": out})
}

// SimilarResponse is one result from the one-directional similarity search.
type SimilarResponse struct {
	User            *UserResponse `json:"user"`
	SimilarityScore float64       `json:"similarityScore"`
	AttributeScore  float64       `json:"attributeScore"`
	HybridScore     float64       `json:"hybridScore"`
}

// FindSimilarRoommates handles GET /api/v1/users/:id/similar.
func (s *MatchService) FindSimilarRoommates(c echo.Context) error {
	userID := c.Param("id")
	topK := parseTopK(c.QueryParam("limit"))

	results, err := s.Engine.FindSimilarRoommates(c.Request().Context(), userID, topK)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return jsonError(c, http.StatusNotFound, "user not found")
		}
		slog.Error("similarity search failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}

	out := make([]*SimilarResponse, 0, len(results))
	for _, r := range results {
		out = append(out, &SimilarResponse{
			User:            convertUser(r.User),
			SimilarityScore: r.SimilarityScore,
			AttributeScore:  r.AttributeScore,
			HybridScore:     r.HybridScore,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"similar": out})
}

// ScorePair handles GET /api/v1/matches/pairwise?first=&second=.
func (s *MatchService) ScorePair(c echo.Context) error {
	first := c.QueryParam("first")
	second := c.QueryParam("second")
	if first == "" || second == "" {
		return jsonError(c, http.StatusBadRequest, "first and second user ids are required")
	}
	if first == second {
		return jsonError(c, http.StatusBadRequest, "user ids must be distinct")
	}

	result, err := s.Engine.ScorePair(c.Request().Context(), first, second)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return jsonError(c, http.StatusNotFound, "user not found")
		}
		slog.Error("pairwise scoring failed",
			slog.String("first", first),
			slog.String("second", second),
			slog.Any("err", err))
		return internalError(c)
	}
	return c.JSON(http.StatusOK, result)
}

// SearchRequest is the free-text search body.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SearchResponse is one free-text search hit.
type SearchResponse struct {
	User            *UserResponse `json:"user"`
	SimilarityScore float64       `json:"similarityScore"`
}

// SearchByText handles POST /api/v1/matches/search.
func (s *MatchService) SearchByText(c echo.Context) error {
	req := &SearchRequest{}
	if err := c.Bind(req); err != nil {
		return jsonError(c, http.StatusBadRequest, "malformed request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return jsonError(c, http.StatusBadRequest, "query is required")
	}
	topK := req.Limit
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	results, err := s.Engine.SearchByText(c.Request().Context(), req.Query, topK)
	if err != nil {
		slog.Error("text search failed", slog.Any("err", err))
		return internalError(c)
	}

	out := make([]*SearchResponse, 0, len(results))
	for _, r := range results {
		out = append(out, &SearchResponse{
			User:            convertUser(r.User),
			SimilarityScore: r.SimilarityScore,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"results": out})
}

// Reindex handles POST /api/v1/matches/reindex: rebuilds vectors for every
// stored user in the background and answers immediately.
func (s *MatchService) Reindex(c echo.Context) error {
	users, err := s.Store.ListUsers(c.Request().Context(), &store.FindUser{})
	if err != nil {
		slog.Error("reindex listing failed", slog.Any("err", err))
		return internalError(c)
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := s.Indexer.Reindex(ctx, ids); err != nil {
			slog.Error("background reindex failed", slog.Any("err", err))
			return
		}
		slog.Info("background reindex finished", slog.Int("users", len(ids)))
	}()

	return c.JSON(http.StatusAccepted, map[string]any{"queued": len(ids)})
}

func parseTopK(raw string) int {
	if raw == "" {
		return defaultTopK
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultTopK
	}
	if n > maxTopK {
		return maxTopK
	}
	return n
}
