package dto

import (
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/validator"
)

type LocationUpdateReq struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Speed    *float64 `json:"speed"`
	Heading  *int     `json:"heading"`
	Accuracy *float64 `json:"accuracy"`
}

func (r *LocationUpdateReq) Validate(v *validator.Validator) {
	checkLat(v, "lat", r.Lat)
	checkLon(v, "lon", r.Lon)
	if r.Speed != nil {
		v.Check(*r.Speed >= 0, "speed", "must not be negative")
	}
	if r.Heading != nil {
		v.Check(*r.Heading >= 0 && *r.Heading < 360, "heading", "must be between 0 and 359")
	}
}

func (r *LocationUpdateReq) ToModel(driverID int64) models.LocationSample {
	return models.LocationSample{
		DriverID: driverID,
		Point:    models.Point{Lat: *r.Lat, Lon: *r.Lon},
		Speed:    r.Speed,
		Heading:  r.Heading,
	}
}

type DriverStatusReq struct {
	Status types.DriverStatus `json:"status"`
}

func (r *DriverStatusReq) Validate(v *validator.Validator) {
	v.Check(r.Status.IsValid(), "status", "must be one of online, offline, busy, break")
}
