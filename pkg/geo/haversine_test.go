package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Point
		expected float64
		delta    float64
	}{
		{
			name:     "same point",
			a:        Point{Lat: 12.97, Lon: 77.59},
			b:        Point{Lat: 12.97, Lon: 77.59},
			expected: 0,
			delta:    1e-9,
		},
		{
			name:     "one degree of latitude",
			a:        Point{Lat: 0, Lon: 0},
			b:        Point{Lat: 1, Lon: 0},
			expected: 111.195,
			delta:    0.01,
		},
		{
			name:     "one degree of longitude on the equator",
			a:        Point{Lat: 0, Lon: 0},
			b:        Point{Lat: 0, Lon: 1},
			expected: 111.195,
			delta:    0.01,
		},
		{
			name:     "london to paris",
			a:        Point{Lat: 51.5074, Lon: -0.1278},
			b:        Point{Lat: 48.8566, Lon: 2.3522},
			expected: 343.5,
			delta:    1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, DistanceKm(tt.a, tt.b), tt.delta)
			assert.InDelta(t, tt.expected, DistanceKm(tt.b, tt.a), tt.delta)
		})
	}
}

func TestWithin(t *testing.T) {
	origin := Point{Lat: 12.9716, Lon: 77.5946}

	// 0.0027 degrees of latitude is roughly 300 m
	near := Point{Lat: origin.Lat + 0.0027, Lon: origin.Lon}
	// 0.027 degrees is roughly 3 km
	far := Point{Lat: origin.Lat + 0.027, Lon: origin.Lon}

	assert.True(t, Within(origin, near, 1.5))
	assert.False(t, Within(origin, far, 1.5))
	assert.True(t, Within(origin, origin, 0))
}
