package models

import (
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
)

type Driver struct {
	ID         int64              `json:"id"`
	Name       string             `json:"name,omitempty"`
	Status     types.DriverStatus `json:"status"`
	IsVerified bool               `json:"is_verified"`
	CarModel   string             `json:"car_model,omitempty"`
	CarPlate   string             `json:"car_plate,omitempty"`
	Location   *LocationSample    `json:"location,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// LocationSample is one append-only position report of a driver
type LocationSample struct {
	DriverID   int64     `json:"driver_id"`
	Point      Point     `json:"point"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *int      `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Candidate is a driver eligible for an offer, with the distance to the pickup point
type Candidate struct {
	DriverID       int64     `json:"driver_id"`
	Point          Point     `json:"point"`
	DistanceMeters float64   `json:"distance_meters"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// NearbyQuery asks for eligible drivers around a point.
// FreshSince, when set, excludes drivers whose latest sample is older.
type NearbyQuery struct {
	Point        Point
	RadiusMeters float64
	Limit        int
	FreshSince   *time.Time
}
