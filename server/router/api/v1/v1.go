// Package v1 exposes the REST API: user CRUD, matching, free-text search,
// city coverage stats and identity webhook ingestion.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/nestmate/nestmate/citystats"
	"github.com/nestmate/nestmate/indexer"
	"github.com/nestmate/nestmate/internal/profile"
	"github.com/nestmate/nestmate/match"
	"github.com/nestmate/nestmate/store"
)

type APIV1Service struct {
	// Domain services
	UserService      *UserService
	MatchService     *MatchService
	WebhookService   *WebhookService
	CityStatsService *CityStatsService

	// Shared infra
	Profile *profile.Profile
	Store   *store.Store
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, engine *match.Engine, idx *indexer.Indexer, stats *citystats.Aggregator) *APIV1Service {
	service := &APIV1Service{
		Profile: profile,
		Store:   store,
	}

	service.UserService = &UserService{
		Store:   store,
		Profile: profile,
		Indexer: idx,
		Stats:   stats,
		// Thumbnail generation is CPU heavy; cap concurrent encodes.
		thumbnailSemaphore: semaphore.NewWeighted(3),
	}
	service.MatchService = &MatchService{
		Engine:  engine,
		Store:   store,
		Indexer: idx,
	}
	service.WebhookService = &WebhookService{
		Store:   store,
		Secret:  profile.WebhookSecret,
		Indexer: idx,
		Stats:   stats,
	}
	service.CityStatsService = &CityStatsService{Stats: stats}

	return service
}

// Register mounts every v1 route on the echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/users", s.UserService.CreateUser)
	g.GET("/users/:id", s.UserService.GetUser)
	g.PATCH("/users/:id", s.UserService.UpdateUser)
	g.DELETE("/users/:id", s.UserService.DeleteUser)
	g.PUT("/users/:id/preferences", s.UserService.SetPreferences)
	g.POST("/users/:id/avatar", s.UserService.UploadAvatar)
	g.GET("/users/:id/avatar", s.UserService.GetAvatar)

	g.GET("/users/:id/matches", s.MatchService.FindMutualMatches)
	g.GET("/users/:id/similar", s.MatchService.FindSimilarRoommates)
	g.GET("/matches/pairwise", s.MatchService.ScorePair)
	g.POST("/matches/search", s.MatchService.SearchByText)
	g.POST("/matches/reindex", s.MatchService.Reindex)

	g.GET("/cities/top", s.CityStatsService.TopCities)
	g.GET("/cities/:code", s.CityStatsService.CityCount)

	g.POST("/webhooks/identity", s.WebhookService.HandleIdentityEvent)
}

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Message string `json:"message"`
}

func jsonError(c echo.Context, code int, message string) error {
	return c.JSON(code, &errorResponse{Message: message})
}

func internalError(c echo.Context) error {
	return jsonError(c, http.StatusInternalServerError, "internal server error")
}
