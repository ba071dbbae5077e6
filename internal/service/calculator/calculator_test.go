package calculator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
)

func TestDistance(t *testing.T) {
	c := New()

	assert.Equal(t, 0.0, c.Distance(models.Point{Lat: 55.75, Lon: 37.61}, models.Point{Lat: 55.75, Lon: 37.61}))

	// one degree of latitude
	d := c.Distance(models.Point{Lat: 0, Lon: 0}, models.Point{Lat: 1, Lon: 0})
	assert.Equal(t, 111.19, d)

	// Moscow to Saint Petersburg, about 634 km
	d = c.Distance(models.Point{Lat: 55.7558, Lon: 37.6176}, models.Point{Lat: 59.9343, Lon: 30.3351})
	assert.InDelta(t, 634, d, 2)
}

func TestETA(t *testing.T) {
	c := New()

	tests := []struct {
		name    string
		km      float64
		traffic float64
		want    int
	}{
		{"short trip uses minimum", 0.5, 1, 3},
		{"40 km free flow", 40, 1, 60},
		{"heavy traffic slows down", 10, 2, 30},
		{"non positive traffic treated as 1", 20, 0, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ETA(tt.km, tt.traffic))
		})
	}
}

func TestFare(t *testing.T) {
	c := New()

	assert.Equal(t, 100.0, c.Fare(1, 3, 1), "minimum fare")
	assert.Equal(t, 250.0, c.Fare(10, 10, 1))
	assert.Equal(t, 375.0, c.Fare(10, 10, 1.5))
	assert.Equal(t, 111.0, c.Fare(3.01, 3, 1), "rounded up")
}

func TestTrafficAt(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2024, 1, 1, h, 30, 0, 0, time.UTC) }

	assert.Equal(t, 1.8, trafficAt(at(8)))
	assert.Equal(t, 1.8, trafficAt(at(18)))
	assert.Equal(t, 0.9, trafficAt(at(2)))
	assert.Equal(t, 1.2, trafficAt(at(13)))
}

func TestEstimate(t *testing.T) {
	c := &Calculator{now: func() time.Time { return time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC) }}
	o := &models.Order{Pickup: models.Point{Lat: 0, Lon: 0}, Destination: models.Point{Lat: 0.1, Lon: 0}}

	c.Estimate(o, 1)

	assert.Equal(t, 11.12, o.DistanceKm)
	assert.Equal(t, 21, o.DurationMin)
	assert.Equal(t, 322.0, o.Price)
}
