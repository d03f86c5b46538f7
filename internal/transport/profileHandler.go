package transport

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ds124wfegd/smartblood/internal/service"
	"github.com/ds124wfegd/smartblood/pkg/geo"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	profiles service.ProfileService
	matcher  service.MatchService
}

func NewProfileHandler(profiles service.ProfileService, matcher service.MatchService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, matcher: matcher}
}

func (h *ProfileHandler) UpsertMe(c *gin.Context) {
	var req service.UpsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	profile, err := h.profiles.Upsert(c.Request.Context(), actorFrom(c).ProfileID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// FindDonors takes ?blood= and optionally both ?lat= and ?lon=. The caller
// is never part of the result.
func (h *ProfileHandler) FindDonors(c *gin.Context) {
	origin, err := parseOrigin(c.Query("lat"), c.Query("lon"))
	if err != nil {
		badRequest(c, err)
		return
	}

	donors, err := h.matcher.FindDonors(c.Request.Context(), actorFrom(c).ProfileID, c.Query("blood"), origin)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, donors)
}

func (h *ProfileHandler) Leaderboard(c *gin.Context) {
	top, err := h.matcher.Leaderboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, top)
}

func parseOrigin(lat, lon string) (*geo.Point, error) {
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, errors.New("lat and lon must be given together")
	}

	la, err := strconv.ParseFloat(lat, 64)
	if err != nil || la < -90 || la > 90 {
		return nil, errors.New("invalid lat")
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil || lo < -180 || lo > 180 {
		return nil, errors.New("invalid lon")
	}
	return &geo.Point{Lat: la, Lon: lo}, nil
}
