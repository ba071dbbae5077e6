package dto

import (
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/validator"
)

type CreateOrderReq struct {
	PassengerID        int64    `json:"passenger_id"`
	PickupAddress      string   `json:"pickup_address"`
	PickupLat          *float64 `json:"pickup_lat"`
	PickupLon          *float64 `json:"pickup_lon"`
	DestinationAddress string   `json:"destination_address"`
	DestinationLat     *float64 `json:"destination_lat"`
	DestinationLon     *float64 `json:"destination_lon"`
	TariffName         string   `json:"tariff_name"`
	Surge              *float64 `json:"surge"`
}

func (r *CreateOrderReq) Validate(v *validator.Validator) {
	v.Check(r.PassengerID > 0, "passenger_id", "must be provided")
	checkLat(v, "pickup_lat", r.PickupLat)
	checkLon(v, "pickup_lon", r.PickupLon)
	checkLat(v, "destination_lat", r.DestinationLat)
	checkLon(v, "destination_lon", r.DestinationLon)
	v.Check(len(r.PickupAddress) <= 500, "pickup_address", "must be at most 500 characters")
	v.Check(len(r.DestinationAddress) <= 500, "destination_address", "must be at most 500 characters")
	v.Check(len(r.TariffName) <= 50, "tariff_name", "must be at most 50 characters")
	if r.Surge != nil {
		v.Check(*r.Surge >= 1 && *r.Surge <= 5, "surge", "must be between 1 and 5")
	}
}

func (r *CreateOrderReq) ToModel() models.NewOrder {
	surge := 1.0
	if r.Surge != nil {
		surge = *r.Surge
	}
	return models.NewOrder{
		PassengerID:        r.PassengerID,
		PickupAddress:      r.PickupAddress,
		Pickup:             models.Point{Lat: *r.PickupLat, Lon: *r.PickupLon},
		DestinationAddress: r.DestinationAddress,
		Destination:        models.Point{Lat: *r.DestinationLat, Lon: *r.DestinationLon},
		TariffName:         r.TariffName,
		Surge:              surge,
	}
}

// UpdateOrderStatusReq carries the target status. DriverID names the acting driver
// when requests are not authenticated.
type UpdateOrderStatusReq struct {
	Status   types.OrderStatus `json:"status"`
	DriverID *int64            `json:"driver_id"`
}

func (r *UpdateOrderStatusReq) Validate(v *validator.Validator) {
	v.Check(r.Status != "", "status", "must be provided")
	v.Check(r.Status == "" || r.Status.IsValid(), "status", "must be a known order status")
	if r.DriverID != nil {
		v.Check(*r.DriverID > 0, "driver_id", "must be positive")
	}
}

func checkLat(v *validator.Validator, key string, lat *float64) {
	if lat == nil {
		v.AddError(key, "must be provided")
		return
	}
	v.Check(*lat >= -90 && *lat <= 90, key, "must be between -90 and 90")
}

func checkLon(v *validator.Validator, key string, lon *float64) {
	if lon == nil {
		v.AddError(key, "must be provided")
		return
	}
	v.Check(*lon >= -180 && *lon <= 180, key, "must be between -180 and 180")
}
