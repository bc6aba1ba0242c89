package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/nestmate/nestmate/citystats"
)

type CityStatsService struct {
	Stats *citystats.Aggregator
}

// TopCities handles GET /api/v1/cities/top?n=.
func (s *CityStatsService) TopCities(c echo.Context) error {
	n := 10
	if raw := c.QueryParam("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"cities": s.Stats.Top(n),
		"total":  s.Stats.Total(),
	})
}

// CityCount handles GET /api/v1/cities/:code.
func (s *CityStatsService) CityCount(c echo.Context) error {
	code := c.Param("code")
	return c.JSON(http.StatusOK, citystats.CityCount{
		CityCode: code,
		Count:    s.Stats.Count(code),
	})
}
