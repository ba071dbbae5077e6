package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/driver"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	ws "github.com/Temutjin2k/taxi-dispatch/pkg/wsHub"
)

// Connector registers live channels
type Connector interface {
	Connect(conn *ws.Conn) error
	Disconnect(conn *ws.Conn) bool
}

type Live struct {
	hub      Connector
	greeter  Greeter
	orders   OrderService
	drivers  DriverService
	upgrader websocket.Upgrader
	l        logger.Logger
}

func NewLive(hub Connector, greeter Greeter, orders OrderService, drivers DriverService, allowedOrigins []string, l logger.Logger) *Live {
	return &Live{
		hub:     hub,
		greeter: greeter,
		orders:  orders,
		drivers: drivers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      originChecker(allowedOrigins),
		},
		l: l,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		return slices.Contains(allowed, origin) || slices.Contains(allowed, "*")
	}
}

// Connect upgrades GET /ws/{kind}/{id} into a live channel for that actor
//
// @Summary      Live channel for a driver, passenger or admin
// @Tags         live
// @Security     BearerAuth
// @Param        kind path string true "driver, passenger or admin"
// @Param        id path int true "Actor ID"
// @Success      101
// @Router       /ws/{kind}/{id} [get]
func (h *Live) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionWSConnect)

	kind := types.ActorKind(r.PathValue("kind"))
	if !kind.IsValid() {
		badRequestResponse(w, types.ErrInvalidActorKind.Error())
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}
	if actor, ok := models.ActorFromContext(ctx); ok {
		if actor.Kind != types.ActorAdmin && (actor.Kind != kind || actor.ID != id) {
			errorResponse(w, http.StatusForbidden, types.ErrForbidden.Error())
			return
		}
	}
	ctx = wrap.WithActor(ctx, kind.String(), id)

	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		h.l.Warn(ctx, "websocket upgrade failed", "error", err.Error())
		return
	}

	key := ws.Key{Kind: kind, ID: id}
	conn := ws.NewConn(ctx, key, c)
	if err := h.hub.Connect(conn); err != nil {
		h.l.Warn(ctx, "failed to register connection", "error", err.Error())
		_ = conn.Close()
		return
	}
	defer func() {
		h.hub.Disconnect(conn)
		_ = conn.Close()
		h.l.Debug(wrap.WithAction(ctx, types.ActionWSDisconnect), "connection closed")
	}()

	if err := h.greeter.Greet(ctx, key); err != nil {
		h.l.Warn(ctx, "failed to greet connection", "error", err.Error())
		return
	}

	actor := models.Actor{Kind: kind, ID: id}
	err = conn.Listen(func(raw json.RawMessage) error {
		h.handleInbound(wrap.WithAction(ctx, "ws_message"), conn, actor, raw)
		return nil
	})
	if err != nil && !errors.Is(err, ws.ErrConnClosed) {
		h.l.Debug(ctx, "listen stopped", "reason", err.Error())
	}
}

// handleInbound never fails the channel. Bad messages are answered with an error message.
func (h *Live) handleInbound(ctx context.Context, conn *ws.Conn, actor models.Actor, raw json.RawMessage) {
	var msg models.InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reply(ctx, conn, "malformed message")
		return
	}

	switch msg.Type {
	case types.MsgPong:
		return

	case types.MsgLocationUpdate:
		if actor.Kind != types.ActorDriver {
			h.reply(ctx, conn, "only drivers may send location updates")
			return
		}
		if msg.Lat == nil || msg.Lon == nil {
			h.reply(ctx, conn, "lat and lon are required")
			return
		}
		sample := models.LocationSample{
			DriverID: actor.ID,
			Point:    models.Point{Lat: *msg.Lat, Lon: *msg.Lon},
			Speed:    msg.Speed,
			Heading:  msg.Heading,
		}
		if err := h.drivers.UpdateLocation(ctx, sample, driver.SourceWS); err != nil {
			h.l.Warn(ctx, "location update rejected", "error", err.Error())
			h.reply(ctx, conn, errorMessage(err, GetCode(err)))
		}

	case types.MsgOrderUpdate:
		if msg.OrderID <= 0 || !msg.Status.IsValid() {
			h.reply(ctx, conn, "order_id and a valid status are required")
			return
		}
		if _, err := h.orders.UpdateStatus(wrap.WithOrderID(ctx, msg.OrderID), msg.OrderID, msg.Status, actor); err != nil {
			h.l.Warn(ctx, "order update rejected", "error", err.Error())
			h.reply(ctx, conn, errorMessage(err, GetCode(err)))
		}

	default:
		h.reply(ctx, conn, "unsupported message type")
	}
}

func (h *Live) reply(ctx context.Context, conn *ws.Conn, message string) {
	if err := conn.Send(models.ErrorMessage{Type: types.MsgError, Error: message}); err != nil {
		h.l.Debug(ctx, "failed to send error message", "error", err.Error())
	}
}
