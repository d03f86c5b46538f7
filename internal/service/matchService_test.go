package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/pkg/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One degree of longitude at the equator is about 111.19 km.
const kmPerDegree = 111.19

func donorAt(id, blood string, lat, lon *float64) *entity.Profile {
	return &entity.Profile{
		ID:        id,
		Name:      "Donor " + id,
		Role:      entity.RoleDonor,
		BloodType: blood,
		Location:  entity.Location{Lat: lat, Lon: lon},
	}
}

func ids(profiles []*entity.Profile) []string {
	out := make([]string, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.ID)
	}
	return out
}

func TestMatch(t *testing.T) {
	origin := &geo.Point{Lat: 0, Lon: 0}

	near := donorAt("d1", "O-", floatPtr(0), floatPtr(0.3/kmPerDegree))
	far := donorAt("d2", "O-", floatPtr(0), floatPtr(3/kmPerDegree))
	noCoords := donorAt("d3", "O-", nil, nil)
	otherGroup := donorAt("d4", "A+", floatPtr(0), floatPtr(0))
	self := donorAt("me", "O-", floatPtr(0), floatPtr(0))
	nameless := donorAt("d5", "O-", nil, nil)
	nameless.Name = ""
	noBlood := donorAt("d6", "", nil, nil)

	pool := []*entity.Profile{near, far, noCoords, otherGroup, self, nameless, noBlood}

	tests := []struct {
		name   string
		blood  string
		origin *geo.Point
		want   []string
	}{
		{"blood and distance", "O-", origin, []string{"d1", "d3"}},
		{"no origin keeps distant donors", "O-", nil, []string{"d1", "d2", "d3"}},
		{"no blood filter", "", origin, []string{"d1", "d3", "d4"}},
		{"nothing matches", "AB-", origin, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(pool, tt.blood, tt.origin, "me", DefaultRadiusKm)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestTopDonors(t *testing.T) {
	counts := []int{5, 0, 3, 3, 8}
	pool := make([]*entity.Profile, 0, len(counts))
	for i, c := range counts {
		p := donorAt(string(rune('a'+i)), "O+", nil, nil)
		p.DonationCount = c
		pool = append(pool, p)
	}

	top := TopDonors(pool, DefaultLeaderboardSize)

	got := make([]int, 0, len(top))
	for _, p := range top {
		got = append(got, p.DonationCount)
	}
	assert.Equal(t, []int{8, 5, 3, 3, 0}, got)
	// equal counts keep input order
	assert.Equal(t, []string{"e", "a", "c", "d", "b"}, ids(top))

	assert.Len(t, TopDonors(pool, 2), 2)
	assert.Equal(t, "a", pool[0].ID, "input is not reordered")
}

func TestDonorMatcher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.profile(t, "d1", "Ravi", entity.RoleDonor, "O-")
	f.profile(t, "d2", "Mina", entity.RoleDonor, "O-")
	f.profile(t, "p1", "Asha", entity.RolePatient, "O-")

	donors, err := f.services.Matcher.FindDonors(ctx, "d2", "O-", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids(donors))

	_, err = f.services.Matcher.FindDonors(ctx, "", "Z+", nil)
	assert.True(t, errors.Is(err, entity.ErrValidation))

	board, err := f.services.Matcher.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, ids(board))
}
