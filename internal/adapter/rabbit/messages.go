package rabbit

import (
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
)

// OrderRequestMessage asks a dispatch instance to search drivers for an order
type OrderRequestMessage struct {
	OrderID     int64        `json:"order_id"`
	OrderUUID   uuid.UUID    `json:"order_uuid"`
	PassengerID int64        `json:"passenger_id"`
	Pickup      models.Point `json:"pickup"`
	TariffName  string       `json:"tariff_name"`
	CreatedAt   time.Time    `json:"created_at"`
}

// OrderStatusMessage is published for every routed order event
type OrderStatusMessage struct {
	OrderID     int64             `json:"order_id"`
	OrderUUID   uuid.UUID         `json:"order_uuid"`
	Status      types.OrderStatus `json:"status"`
	PassengerID int64             `json:"passenger_id"`
	DriverID    *int64            `json:"driver_id,omitempty"`
	ActorKind   types.ActorKind   `json:"actor_kind"`
	ActorID     int64             `json:"actor_id"`
	Price       float64           `json:"price"`
	At          time.Time         `json:"at"`
}

func newOrderRequest(o *models.Order) OrderRequestMessage {
	return OrderRequestMessage{
		OrderID:     o.ID,
		OrderUUID:   o.UUID,
		PassengerID: o.PassengerID,
		Pickup:      o.Pickup,
		TariffName:  o.TariffName,
		CreatedAt:   o.CreatedAt,
	}
}

func newOrderStatus(ev models.OrderEvent, o *models.Order) OrderStatusMessage {
	return OrderStatusMessage{
		OrderID:     ev.OrderID,
		OrderUUID:   o.UUID,
		Status:      ev.Status,
		PassengerID: o.PassengerID,
		DriverID:    o.DriverID,
		ActorKind:   ev.ActorKind,
		ActorID:     ev.ActorID,
		Price:       o.Price,
		At:          ev.At,
	}
}

// statusKey is the routing key of a status message: order.status.{status}
func statusKey(status types.OrderStatus) string {
	return "order.status." + status.String()
}
