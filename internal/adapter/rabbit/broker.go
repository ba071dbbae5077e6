package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/metrics"
	"github.com/Temutjin2k/taxi-dispatch/pkg/rabbit"
)

const (
	ExchangeOrderTopic = "order_topic"

	KeyOrderCreated = "order.created"

	QueueOrderRequests = "order_requests"
	QueueOrderStatus   = "order_status"

	publishRetries = 3
	publishBackoff = 500 * time.Millisecond
)

// OrderBroker publishes order requests and status events to the order_topic exchange
type OrderBroker struct {
	client *rabbit.RabbitMQ
	l      logger.Logger
}

func NewOrderBroker(client *rabbit.RabbitMQ, l logger.Logger) *OrderBroker {
	return &OrderBroker{client: client, l: l}
}

// Setup declares the exchange and the queues this service relies on
func (b *OrderBroker) Setup(ctx context.Context) error {
	const op = "OrderBroker.Setup"

	if err := b.client.DeclareTopic(ExchangeOrderTopic); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: declare exchange: %w", op, err))
	}
	if err := b.client.BindQueue(QueueOrderRequests, ExchangeOrderTopic, KeyOrderCreated); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if err := b.client.BindQueue(QueueOrderStatus, ExchangeOrderTopic, "order.status.*"); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// PublishOrderCreated hands a fresh order to whichever dispatch instance consumes it first
func (b *OrderBroker) PublishOrderCreated(ctx context.Context, o *models.Order) error {
	ctx = wrap.WithAction(wrap.WithOrderID(ctx, o.ID), types.ActionPublishEvent)

	if err := b.publish(ctx, KeyOrderCreated, newOrderRequest(o)); err != nil {
		return wrap.Error(ctx, err)
	}
	return nil
}

// PublishOrderEvent mirrors a routed order event as order.status.{status}
func (b *OrderBroker) PublishOrderEvent(ctx context.Context, ev models.OrderEvent, o *models.Order) error {
	ctx = wrap.WithAction(wrap.WithOrderID(ctx, ev.OrderID), types.ActionPublishEvent)

	if err := b.publish(ctx, statusKey(ev.Status), newOrderStatus(ev, o)); err != nil {
		return wrap.Error(ctx, err)
	}
	return nil
}

func (b *OrderBroker) publish(ctx context.Context, key string, msg any) (err error) {
	defer func() { metrics.RecordRabbitMQPublish(key, err) }()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := b.client.EnsureConnection(ctx); err != nil {
		return fmt.Errorf("%w: %w", types.ErrFailedToPublishEvent, err)
	}

	err = retry(ctx, publishRetries, publishBackoff, func() error {
		return b.client.Publish(ctx, ExchangeOrderTopic, key, body)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrFailedToPublishEvent, err)
	}
	return nil
}
