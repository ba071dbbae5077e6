package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/metrics"
	"github.com/Temutjin2k/taxi-dispatch/pkg/trm"
)

// Location sources, used as metric labels
const (
	SourceHTTP  = "http"
	SourceWS    = "ws"
	SourceKafka = "kafka"
)

/*
Service holds driver availability and position, and the accept flow
that binds a driver to a searching order.
*/
type Service struct {
	drivers   DriverRepo
	locations LocationRepo
	orders    OrderReader
	sm        Assigner
	notifier  Notifier
	geo       GeoIndex
	trm       trm.TxManager
	l         logger.Logger
}

func New(drivers DriverRepo, locations LocationRepo, orders OrderReader, sm Assigner, notifier Notifier, trm trm.TxManager, l logger.Logger) *Service {
	return &Service{
		drivers:   drivers,
		locations: locations,
		orders:    orders,
		sm:        sm,
		notifier:  notifier,
		trm:       trm,
		l:         l,
	}
}

// WithGeoIndex keeps the live geo index in step with locations and statuses
func (s *Service) WithGeoIndex(g GeoIndex) *Service {
	s.geo = g
	return s
}

// UpdateLocation appends a sample to the driver's history and refreshes the geo index.
// The index is best effort: a failure there is logged, not returned.
func (s *Service) UpdateLocation(ctx context.Context, sample models.LocationSample, source string) (err error) {
	ctx = wrap.WithAction(wrap.WithDriverID(ctx, sample.DriverID), types.ActionLocationIngest)
	defer func() { metrics.RecordLocationSample(source, err) }()

	if !sample.Point.Valid() {
		return types.ErrInvalidCoordinates
	}
	if sample.Heading != nil && (*sample.Heading < 0 || *sample.Heading >= 360) {
		return types.ErrInvalidHeading
	}
	if sample.Speed != nil && *sample.Speed < 0 {
		return types.ErrInvalidSpeed
	}

	if err := s.locations.Append(ctx, &sample); err != nil {
		return wrap.Error(ctx, err)
	}

	if s.geo != nil {
		if err := s.geo.Upsert(ctx, sample); err != nil {
			s.l.Warn(ctx, "failed to refresh geo index", "error", err.Error())
		}
	}
	return nil
}

// UpdateStatus sets the driver's availability. Drivers leaving online are dropped from the geo index.
func (s *Service) UpdateStatus(ctx context.Context, driverID int64, status types.DriverStatus) (*models.Driver, error) {
	ctx = wrap.WithAction(wrap.WithDriverID(ctx, driverID), "update_driver_status")

	if !status.IsValid() {
		return nil, types.ErrInvalidDriverStatus
	}
	if err := s.drivers.UpdateStatus(ctx, driverID, status); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	d, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	if s.geo != nil {
		switch {
		case status != types.DriverOnline:
			if err := s.geo.Remove(ctx, driverID); err != nil {
				s.l.Warn(ctx, "failed to drop driver from geo index", "error", err.Error())
			}
		case d.Location != nil:
			if err := s.geo.Upsert(ctx, *d.Location); err != nil {
				s.l.Warn(ctx, "failed to refresh geo index", "error", err.Error())
			}
		}
	}

	s.l.Info(ctx, "driver status changed", "status", status.String())
	return d, nil
}

// Release puts a busy driver back online once their order is over and returns
// them to the geo index at their last known position.
func (s *Service) Release(ctx context.Context, driverID int64) (bool, error) {
	ctx = wrap.WithAction(wrap.WithDriverID(ctx, driverID), "release_driver")

	ok, err := s.drivers.SwapStatus(ctx, driverID, types.DriverBusy, types.DriverOnline)
	if err != nil {
		return false, wrap.Error(ctx, err)
	}
	if !ok || s.geo == nil {
		return ok, nil
	}

	d, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		s.l.Warn(ctx, "failed to load released driver", "error", err.Error())
		return true, nil
	}
	if d.Location != nil {
		if err := s.geo.Upsert(ctx, *d.Location); err != nil {
			s.l.Warn(ctx, "failed to refresh geo index", "error", err.Error())
		}
	}
	return true, nil
}

// ActiveOrder returns the order the driver is currently bound to
func (s *Service) ActiveOrder(ctx context.Context, driverID int64) (*models.Order, error) {
	o, err := s.orders.ActiveByDriver(ctx, driverID)
	if err != nil {
		return nil, wrap.Error(wrap.WithDriverID(ctx, driverID), err)
	}
	return o, nil
}

// AcceptOrder binds the driver to the order if it is still searching and marks the driver busy.
// Only one of any number of concurrent accepts for the same order succeeds.
func (s *Service) AcceptOrder(ctx context.Context, driverID, orderID int64) (*models.Order, error) {
	ctx = wrap.WithAction(wrap.WithOrderID(wrap.WithDriverID(ctx, driverID), orderID), types.ActionAssignDriver)

	d, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if d.Status != types.DriverOnline || !d.IsVerified {
		return nil, types.ErrDriverNotAvailable
	}

	_, err = s.orders.ActiveByDriver(ctx, driverID)
	switch {
	case err == nil:
		return nil, types.ErrDriverHasActiveOrder
	case !errors.Is(err, types.ErrNoActiveOrder):
		return nil, wrap.Error(ctx, err)
	}

	err = s.trm.Do(ctx, func(ctx context.Context) error {
		ok, err := s.sm.Assign(ctx, orderID, driverID)
		if err != nil {
			return err
		}
		if !ok {
			return types.ErrOrderAlreadyTaken
		}

		swapped, err := s.drivers.SwapStatus(ctx, driverID, types.DriverOnline, types.DriverBusy)
		if err != nil {
			return fmt.Errorf("mark driver busy: %w", err)
		}
		if !swapped {
			return types.ErrDriverNotAvailable
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrOrderAlreadyTaken) {
			s.l.Info(ctx, "order already taken")
		}
		return nil, err
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	s.l.Info(ctx, "driver accepted order")
	if s.geo != nil {
		if err := s.geo.Remove(ctx, driverID); err != nil {
			s.l.Warn(ctx, "failed to drop driver from geo index", "error", err.Error())
		}
	}
	if err := s.notifier.Notify(ctx, models.OrderEvent{
		OrderID:   orderID,
		Status:    types.StatusDriverAssigned,
		ActorKind: types.ActorDriver,
		ActorID:   driverID,
		At:        time.Now().UTC(),
	}); err != nil {
		s.l.Warn(ctx, "failed to notify order update", "error", err.Error())
	}
	return o, nil
}
