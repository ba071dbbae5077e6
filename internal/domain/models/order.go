package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
)

// Point is a WGS84 coordinate
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate is within latitude/longitude bounds
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

type Order struct {
	ID                 int64             `json:"id"`
	UUID               uuid.UUID         `json:"order_uuid"`
	PassengerID        int64             `json:"passenger_id"`
	DriverID           *int64            `json:"driver_id,omitempty"`
	PickupAddress      string            `json:"pickup_address,omitempty"`
	Pickup             Point             `json:"pickup"`
	DestinationAddress string            `json:"destination_address,omitempty"`
	Destination        Point             `json:"destination"`
	Status             types.OrderStatus `json:"status"`
	TariffName         string            `json:"tariff_name,omitempty"`
	Price              float64           `json:"price"`
	DistanceKm         float64           `json:"distance_km"`
	DurationMin        int               `json:"duration_minutes"`

	CreatedAt   time.Time  `json:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	ArrivedAt   *time.Time `json:"arrived_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// HasDriver reports whether id is the driver bound to the order
func (o *Order) HasDriver(id int64) bool {
	return o.DriverID != nil && *o.DriverID == id
}

// NewOrder is the input for order creation
type NewOrder struct {
	PassengerID        int64
	PickupAddress      string
	Pickup             Point
	DestinationAddress string
	Destination        Point
	TariffName         string
	Surge              float64
}

// OrderEvent describes a status change and who caused it
type OrderEvent struct {
	OrderID   int64             `json:"order_id"`
	Status    types.OrderStatus `json:"status"`
	ActorKind types.ActorKind   `json:"actor_kind"`
	ActorID   int64             `json:"actor_id"`
	At        time.Time         `json:"at"`
}

// Actor identifies a participant in the system
type Actor struct {
	Kind types.ActorKind
	ID   int64
}

// SystemActor is the actor for changes made by the service itself
var SystemActor = Actor{Kind: types.ActorSystem}
