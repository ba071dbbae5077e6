package wshandler

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	ws "github.com/Temutjin2k/taxi-dispatch/pkg/wsHub"
)

type OrderGetter interface {
	Get(ctx context.Context, id int64) (*models.Order, error)
}

// EventPublisher forwards routed order events to other consumers
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, ev models.OrderEvent, o *models.Order) error
}

// Router turns order events and offers into live channel messages
type Router struct {
	hub       *ws.Hub
	orders    OrderGetter
	publisher EventPublisher
	now       func() time.Time
	l         logger.Logger
}

func NewRouter(hub *ws.Hub, orders OrderGetter, l logger.Logger) *Router {
	return &Router{
		hub:    hub,
		orders: orders,
		now:    time.Now,
		l:      l,
	}
}

// WithPublisher also hands every routed event to p
func (r *Router) WithPublisher(p EventPublisher) *Router {
	r.publisher = p
	return r
}

// Recipients returns who must hear about ev: the passenger always, the driver
// unless the driver caused the event.
func Recipients(o *models.Order, ev models.OrderEvent) []ws.Key {
	keys := []ws.Key{{Kind: types.ActorPassenger, ID: o.PassengerID}}
	if o.DriverID == nil {
		return keys
	}
	if ev.ActorKind == types.ActorDriver && ev.ActorID == *o.DriverID {
		return keys
	}
	return append(keys, ws.Key{Kind: types.ActorDriver, ID: *o.DriverID})
}

// Notify delivers an order_update to the order's participants. Missing
// connections and missing orders are not errors.
func (r *Router) Notify(ctx context.Context, ev models.OrderEvent) error {
	ctx = wrap.WithAction(wrap.WithOrderID(ctx, ev.OrderID), types.ActionNotify)

	o, err := r.orders.Get(ctx, ev.OrderID)
	if err != nil {
		if errors.Is(err, types.ErrOrderNotFound) {
			r.l.Warn(ctx, "order to notify about not found")
			return nil
		}
		return wrap.Error(ctx, err)
	}

	msg := models.OrderUpdateMessage{
		Type:    types.MsgOrderUpdate,
		OrderID: ev.OrderID,
		Status:  ev.Status,
		Order:   o,
	}
	for _, key := range Recipients(o, ev) {
		if err := r.hub.Send(key, msg); err != nil {
			r.l.Warn(ctx, "order update not delivered", "recipient", key.String(), "error", err.Error())
		}
	}

	if r.publisher != nil {
		if err := r.publisher.PublishOrderEvent(ctx, ev, o); err != nil {
			r.l.Warn(ctx, "failed to publish order event", "error", err.Error())
		}
	}
	return nil
}

// SendOffer proposes the order to a driver until deadline
func (r *Router) SendOffer(ctx context.Context, driverID int64, o *models.Order, deadline time.Time) error {
	timeout := int(math.Ceil(deadline.Sub(r.now()).Seconds()))
	return r.hub.Send(ws.Key{Kind: types.ActorDriver, ID: driverID}, models.NewOrderMessage{
		Type:             types.MsgNewOrder,
		OrderID:          o.ID,
		Order:            o,
		Timeout:          max(timeout, 0),
		ResponseDeadline: deadline.UTC(),
	})
}

// Greet confirms a freshly registered connection
func (r *Router) Greet(_ context.Context, key ws.Key) error {
	return r.hub.Send(key, models.ConnectedMessage{
		Type:     types.MsgConnected,
		UserID:   key.ID,
		UserType: key.Kind,
		Message:  "connected as " + key.String(),
	})
}

// PingAll pings every live connection and returns how many were evicted
func (r *Router) PingAll(ctx context.Context) int {
	evicted := r.hub.PingAll(models.PingMessage{Type: types.MsgPing})
	r.l.Debug(wrap.WithAction(ctx, types.ActionPingConnections), "ping sweep", "evicted", evicted)
	return evicted
}
