package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// LocationUpdater stores a sample reported through source
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, sample models.LocationSample, source string) error
}

// MessageReader is the subset of *kafka.Reader used by the consumer
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// LocationConsumer feeds the driver-locations topic into the driver service
type LocationConsumer struct {
	reader  MessageReader
	updater LocationUpdater
	source  string
	l       logger.Logger
}

func NewLocationConsumer(cfg Config, updater LocationUpdater, source string, l logger.Logger) *LocationConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return newLocationConsumer(r, updater, source, l)
}

func newLocationConsumer(r MessageReader, updater LocationUpdater, source string, l logger.Logger) *LocationConsumer {
	return &LocationConsumer{reader: r, updater: updater, source: source, l: l}
}

// Run reads until ctx is done. Read errors back off exponentially up to 30s,
// bad messages and rejected samples are logged and skipped.
func (c *LocationConsumer) Run(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, types.ActionLocationIngest)
	backoff := minBackoff

	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.l.Info(ctx, "location consumer shutting down")
				return nil
			}
			c.l.Warn(ctx, "kafka read failed", "error", err.Error(), "retry_in", backoff.String())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff

		c.handle(ctx, m)
	}
}

func (c *LocationConsumer) handle(ctx context.Context, m kafka.Message) {
	msg, err := decodeLocation(m.Value)
	if err != nil {
		c.l.Warn(ctx, "invalid location message", "error", err.Error(), "offset", m.Offset, "partition", m.Partition)
		return
	}

	ctx = wrap.WithDriverID(ctx, msg.DriverID)
	if err := c.updater.UpdateLocation(ctx, msg.Sample(), c.source); err != nil {
		if rejected(err) {
			c.l.Warn(ctx, "location sample rejected", "error", err.Error())
			return
		}
		c.l.Error(wrap.ErrorCtx(ctx, err), "failed to store location sample", err)
	}
}

func rejected(err error) bool {
	return errors.Is(err, types.ErrInvalidCoordinates) ||
		errors.Is(err, types.ErrInvalidHeading) ||
		errors.Is(err, types.ErrInvalidSpeed) ||
		errors.Is(err, types.ErrDriverNotFound)
}

func (c *LocationConsumer) Close() error {
	return c.reader.Close()
}
