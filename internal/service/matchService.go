package service

import (
	"context"
	"sort"
	"strings"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/pkg/geo"
)

const (
	DefaultRadiusKm        = 1.5
	DefaultLeaderboardSize = 5
)

type donorMatcher struct {
	profiles        database.ProfileRepository
	radiusKm        float64
	leaderboardSize int
}

func NewDonorMatcher(profiles database.ProfileRepository, radiusKm float64, leaderboardSize int) MatchService {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	if leaderboardSize <= 0 {
		leaderboardSize = DefaultLeaderboardSize
	}
	return &donorMatcher{
		profiles:        profiles,
		radiusKm:        radiusKm,
		leaderboardSize: leaderboardSize,
	}
}

func (m *donorMatcher) donorPool(ctx context.Context) ([]*entity.Profile, error) {
	all, err := m.profiles.List(ctx)
	if err != nil {
		return nil, err
	}

	pool := make([]*entity.Profile, 0, len(all))
	for _, p := range all {
		if p.IsDonor() {
			pool = append(pool, p)
		}
	}
	return pool, nil
}

func (m *donorMatcher) FindDonors(ctx context.Context, excludeID, bloodType string, origin *geo.Point) ([]*entity.Profile, error) {
	if bloodType != "" && !entity.IsValidBloodType(bloodType) {
		return nil, entity.NewValidationError("blood", "is not a known blood group")
	}

	pool, err := m.donorPool(ctx)
	if err != nil {
		return nil, err
	}
	return Match(pool, bloodType, origin, excludeID, m.radiusKm), nil
}

func (m *donorMatcher) Leaderboard(ctx context.Context) ([]*entity.Profile, error) {
	pool, err := m.donorPool(ctx)
	if err != nil {
		return nil, err
	}
	return TopDonors(pool, m.leaderboardSize), nil
}

// Match filters pool in order: excluded profile, incomplete profiles, blood
// group (exact, when given), then distance from origin for profiles that
// have coordinates. Input order is preserved.
func Match(pool []*entity.Profile, bloodType string, origin *geo.Point, excludeID string, radiusKm float64) []*entity.Profile {
	matched := make([]*entity.Profile, 0, len(pool))
	for _, p := range pool {
		if excludeID != "" && p.ID == excludeID {
			continue
		}
		if strings.TrimSpace(p.BloodType) == "" || strings.TrimSpace(p.Name) == "" {
			continue
		}
		if bloodType != "" && p.BloodType != bloodType {
			continue
		}
		if origin != nil && p.Location.HasCoordinates() {
			at := geo.Point{Lat: *p.Location.Lat, Lon: *p.Location.Lon}
			if !geo.Within(*origin, at, radiusKm) {
				continue
			}
		}
		matched = append(matched, p)
	}
	return matched
}

// TopDonors orders by donation count, highest first, ties in input order.
func TopDonors(pool []*entity.Profile, n int) []*entity.Profile {
	ranked := make([]*entity.Profile, len(pool))
	copy(ranked, pool)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DonationCount > ranked[j].DonationCount
	})

	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
