package models

import (
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
)

// Outbound live channel messages

type ConnectedMessage struct {
	Type     types.MessageType `json:"type"`
	UserID   int64             `json:"user_id"`
	UserType types.ActorKind   `json:"user_type"`
	Message  string            `json:"message"`
}

// NewOrderMessage is an offer to a driver
type NewOrderMessage struct {
	Type             types.MessageType `json:"type"`
	OrderID          int64             `json:"order_id"`
	Order            *Order            `json:"order"`
	Timeout          int               `json:"timeout"`
	ResponseDeadline time.Time         `json:"response_deadline"`
}

type OrderUpdateMessage struct {
	Type    types.MessageType `json:"type"`
	OrderID int64             `json:"order_id"`
	Status  types.OrderStatus `json:"status"`
	Order   *Order            `json:"order"`
}

type PingMessage struct {
	Type types.MessageType `json:"type"`
}

type ErrorMessage struct {
	Type  types.MessageType `json:"type"`
	Error any               `json:"error"`
}

// InboundMessage is the union of messages accepted from clients
type InboundMessage struct {
	Type    types.MessageType `json:"type"`
	Lat     *float64          `json:"lat,omitempty"`
	Lon     *float64          `json:"lon,omitempty"`
	Speed   *float64          `json:"speed,omitempty"`
	Heading *int              `json:"heading,omitempty"`
	OrderID int64             `json:"order_id,omitempty"`
	Status  types.OrderStatus `json:"status,omitempty"`
}
