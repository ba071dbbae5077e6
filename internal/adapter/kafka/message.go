package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
)

var ErrMissingDriver = errors.New("location message without driver_id")

// LocationMessage is one driver position on the driver-locations topic
type LocationMessage struct {
	DriverID   int64     `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *int      `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recorded_at,omitzero"`
}

func (m LocationMessage) Sample() models.LocationSample {
	return models.LocationSample{
		DriverID:   m.DriverID,
		Point:      models.Point{Lat: m.Lat, Lon: m.Lon},
		Speed:      m.Speed,
		Heading:    m.Heading,
		RecordedAt: m.RecordedAt,
	}
}

// NewLocationMessage builds the message published for sample
func NewLocationMessage(s models.LocationSample) LocationMessage {
	return LocationMessage{
		DriverID:   s.DriverID,
		Lat:        s.Point.Lat,
		Lon:        s.Point.Lon,
		Speed:      s.Speed,
		Heading:    s.Heading,
		RecordedAt: s.RecordedAt,
	}
}

func decodeLocation(value []byte) (LocationMessage, error) {
	var m LocationMessage
	if err := json.Unmarshal(value, &m); err != nil {
		return m, fmt.Errorf("decode location: %w", err)
	}
	if m.DriverID <= 0 {
		return m, ErrMissingDriver
	}
	return m, nil
}

// messageKey partitions samples by driver so each driver's samples stay ordered
func messageKey(driverID int64) []byte {
	return []byte(strconv.FormatInt(driverID, 10))
}
