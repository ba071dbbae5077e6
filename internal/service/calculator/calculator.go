package calculator

import (
	"math"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
)

const (
	earthRadiusKm   = 6371.0
	averageSpeedKmh = 40.0
	minETAMinutes   = 3

	baseFee     = 50.0
	perKm       = 15.0
	perMinute   = 5.0
	minimumFare = 100.0
)

// Calculator estimates trip distance, duration and price
type Calculator struct {
	now func() time.Time
}

func New() *Calculator {
	return &Calculator{now: time.Now}
}

// Distance returns the great-circle distance in km, rounded to 2 decimals
func (c *Calculator) Distance(a, b models.Point) float64 {
	return math.Round(HaversineKm(a, b)*100) / 100
}

// HaversineKm returns the unrounded great-circle distance in km
func HaversineKm(a, b models.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ETA returns the trip duration in minutes at the given traffic level, never below 3
func (c *Calculator) ETA(distanceKm, traffic float64) int {
	if traffic <= 0 {
		traffic = 1
	}
	speed := averageSpeedKmh / traffic
	minutes := int(math.Ceil(distanceKm / speed * 60))
	return max(minETAMinutes, minutes)
}

// Fare returns the price rounded up to a whole unit, with the surge applied before the minimum
func (c *Calculator) Fare(distanceKm float64, durationMin int, surge float64) float64 {
	if surge <= 0 {
		surge = 1
	}
	fare := (baseFee + distanceKm*perKm + float64(durationMin)*perMinute) * surge
	return math.Ceil(math.Max(fare, minimumFare))
}

// TrafficLevel is a time-of-day multiplier: rush hours are slower, nights faster
func (c *Calculator) TrafficLevel() float64 {
	return trafficAt(c.now())
}

func trafficAt(t time.Time) float64 {
	h := t.Hour()
	switch {
	case (h >= 7 && h < 10) || (h >= 17 && h < 20):
		return 1.8
	case h < 5:
		return 0.9
	default:
		return 1.2
	}
}

// Estimate fills distance, duration and price of an order from its points
func (c *Calculator) Estimate(o *models.Order, surge float64) {
	o.DistanceKm = c.Distance(o.Pickup, o.Destination)
	o.DurationMin = c.ETA(o.DistanceKm, c.TrafficLevel())
	o.Price = c.Fare(o.DistanceKm, o.DurationMin, surge)
}
