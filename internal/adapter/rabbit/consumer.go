package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/metrics"
	"github.com/Temutjin2k/taxi-dispatch/pkg/rabbit"
)

const (
	consumerPrefetch = 20
	reconnectDelay   = 2 * time.Second
)

// OrderRequestHandler starts a search for the requested order
type OrderRequestHandler func(ctx context.Context, req OrderRequestMessage) error

// ack decisions for a handled delivery
type verdict int

const (
	verdictAck verdict = iota
	verdictRequeue
	verdictDrop
)

type OrderConsumer struct {
	client *rabbit.RabbitMQ
	name   string
	l      logger.Logger
}

func NewOrderConsumer(client *rabbit.RabbitMQ, name string, l logger.Logger) *OrderConsumer {
	return &OrderConsumer{client: client, name: name, l: l}
}

// ConsumeOrderRequests reads order.created messages until ctx is done,
// reconnecting whenever the delivery channel closes.
func (c *OrderConsumer) ConsumeOrderRequests(ctx context.Context, fn OrderRequestHandler) error {
	ctx = wrap.WithAction(ctx, types.ActionConsumeRequest)

	for {
		if ctx.Err() != nil {
			c.l.Debug(ctx, "order request consumer stopped by context")
			return nil
		}

		if err := c.client.EnsureConnection(ctx); err != nil {
			c.l.Error(ctx, "ensure connection failed", err)
			if !sleep(ctx, reconnectDelay) {
				return nil
			}
			continue
		}

		msgs, err := c.client.Consume(QueueOrderRequests, c.name, consumerPrefetch)
		if err != nil {
			c.l.Error(ctx, "consume failed", err, "queue", QueueOrderRequests)
			if !sleep(ctx, reconnectDelay) {
				return nil
			}
			continue
		}

		c.l.Info(ctx, "start consuming order requests", "queue", QueueOrderRequests)

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				c.l.Info(ctx, "order request consumer shutting down")
				return nil
			case d, ok := <-msgs:
				if !ok {
					c.l.Warn(ctx, "message channel closed, reconnecting...")
					break consumeLoop
				}
				c.handle(ctx, fn, d)
			}
		}
	}
}

func (c *OrderConsumer) handle(ctx context.Context, fn OrderRequestHandler, d amqp.Delivery) {
	req, err := decodeOrderRequest(d.Body)
	if err != nil {
		c.l.Warn(ctx, "dropping undecodable order request", "error", err.Error())
		metrics.RecordRabbitMQConsume(QueueOrderRequests, err)
		_ = d.Nack(false, false)
		return
	}

	ctx = wrap.WithRequestID(wrap.WithOrderID(ctx, req.OrderID), d.CorrelationId)
	err = fn(ctx, req)
	metrics.RecordRabbitMQConsume(QueueOrderRequests, err)

	switch verdictFor(err) {
	case verdictAck:
		if err != nil {
			c.l.Debug(ctx, "order no longer needs a search", "reason", err.Error())
		}
		if err := d.Ack(false); err != nil {
			c.l.Warn(ctx, "ack failed", "error", err.Error())
		}
	case verdictRequeue:
		c.l.Error(wrap.ErrorCtx(ctx, err), "order request failed, requeueing", err)
		_ = d.Nack(false, !d.Redelivered)
	default:
		c.l.Error(wrap.ErrorCtx(ctx, err), "order request rejected", err)
		_ = d.Nack(false, false)
	}
}

func decodeOrderRequest(body []byte) (OrderRequestMessage, error) {
	var req OrderRequestMessage
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("decode order request: %w", err)
	}
	if req.OrderID <= 0 {
		return req, errors.New("decode order request: missing order_id")
	}
	return req, nil
}

// verdictFor decides what happens to a delivery after its handler returned err
func verdictFor(err error) verdict {
	switch {
	case err == nil, errors.Is(err, types.ErrInvalidTransition):
		return verdictAck
	case isRecoverableError(err):
		return verdictRequeue
	default:
		return verdictDrop
	}
}
