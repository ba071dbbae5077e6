package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/trm"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

type Service struct {
	repo       OrderRepo
	sm         *StateMachine
	drivers    DriverReleaser
	estimator  Estimator
	notifier   Notifier
	dispatcher Dispatcher
	publisher  RequestPublisher
	addresses  AddressResolver
	logger     logger.Logger
	trm        trm.TxManager
}

func NewService(repo OrderRepo, sm *StateMachine, drivers DriverReleaser, estimator Estimator, notifier Notifier, trm trm.TxManager, logger logger.Logger) *Service {
	return &Service{
		repo:      repo,
		sm:        sm,
		drivers:   drivers,
		estimator: estimator,
		notifier:  notifier,
		trm:       trm,
		logger:    logger,
	}
}

// WithDispatcher sets the engine that searches for drivers in process
func (s *Service) WithDispatcher(d Dispatcher) *Service {
	s.dispatcher = d
	return s
}

// WithPublisher routes new orders through the broker instead of the in-process dispatcher
func (s *Service) WithPublisher(p RequestPublisher) *Service {
	s.publisher = p
	return s
}

// WithAddressResolver fills missing addresses from coordinates
func (s *Service) WithAddressResolver(r AddressResolver) *Service {
	s.addresses = r
	return s
}

// Create stores a new order in status created and hands it to dispatch
func (s *Service) Create(ctx context.Context, in models.NewOrder) (*models.Order, error) {
	ctx = wrap.WithAction(ctx, "create_order")

	if !in.Pickup.Valid() || !in.Destination.Valid() {
		return nil, types.ErrInvalidCoordinates
	}

	o := &models.Order{
		UUID:               uuid.New(),
		PassengerID:        in.PassengerID,
		PickupAddress:      in.PickupAddress,
		Pickup:             in.Pickup,
		DestinationAddress: in.DestinationAddress,
		Destination:        in.Destination,
		Status:             types.StatusCreated,
		TariffName:         in.TariffName,
	}
	if o.TariffName == "" {
		o.TariffName = "standard"
	}
	s.resolveAddresses(ctx, o)
	s.estimator.Estimate(o, in.Surge)

	err := s.trm.Do(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, o)
	})
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("could not create order: %w", err))
	}

	ctx = wrap.WithOrderID(ctx, o.ID)
	s.logger.Info(ctx, "order created", "price", o.Price, "distance_km", o.DistanceKm)

	s.startDispatch(ctx, o)
	return o, nil
}

func (s *Service) resolveAddresses(ctx context.Context, o *models.Order) {
	if s.addresses == nil {
		return
	}
	fill := func(addr *string, p models.Point) {
		if *addr != "" {
			return
		}
		resolved, err := s.addresses.GetAddress(ctx, p)
		if err != nil {
			s.logger.Warn(ctx, "failed to resolve address", "error", err.Error())
			return
		}
		*addr = resolved
	}
	fill(&o.PickupAddress, o.Pickup)
	fill(&o.DestinationAddress, o.Destination)
}

func (s *Service) startDispatch(ctx context.Context, o *models.Order) {
	if s.publisher != nil {
		err := s.publisher.PublishOrderCreated(ctx, o)
		if err == nil {
			return
		}
		s.logger.Warn(ctx, "failed to publish order request, dispatching in process", "error", err.Error())
	}
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, o.ID)
	}
}

// Dispatch starts a search for an order that is not resolved yet.
// It reports whether a new search was started.
func (s *Service) Dispatch(ctx context.Context, orderID int64) (bool, error) {
	ctx = wrap.WithAction(wrap.WithOrderID(ctx, orderID), types.ActionSearchDriver)

	status, err := s.repo.Status(ctx, orderID)
	if err != nil {
		return false, wrap.Error(ctx, err)
	}
	if status != types.StatusCreated && status != types.StatusSearchingDriver {
		return false, fmt.Errorf("%w: order is %s", types.ErrInvalidTransition, status)
	}
	if s.dispatcher == nil {
		return false, nil
	}
	return s.dispatcher.Dispatch(ctx, orderID), nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrap.Error(wrap.WithOrderID(ctx, id), err)
	}
	return o, nil
}

// UpdateStatus moves the order from its current status to the requested one on behalf of actor.
// A driver may only move orders bound to them, a passenger may only cancel their own order.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, to types.OrderStatus, actor models.Actor) (*models.Order, error) {
	ctx = wrap.WithActor(wrap.WithOrderID(ctx, orderID), actor.Kind.String(), actor.ID)
	ctx = wrap.WithAction(ctx, types.ActionOrderTransition)

	if !to.IsValid() {
		return nil, types.ErrInvalidOrderStatus
	}
	if to == types.StatusDriverAssigned {
		return nil, fmt.Errorf("%w: drivers are assigned by accepting an offer", types.ErrInvalidTransition)
	}

	current, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if err := authorize(current, to, actor); err != nil {
		return nil, err
	}

	ok, err := s.sm.Transition(ctx, orderID, current.Status, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.ErrStatusChanged
	}

	if to.IsTerminal() && current.DriverID != nil {
		s.releaseDriver(ctx, *current.DriverID)
	}

	updated, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	s.logger.Info(ctx, "order status changed", "from", current.Status.String(), "to", to.String())
	s.notify(ctx, models.OrderEvent{
		OrderID:   orderID,
		Status:    to,
		ActorKind: actor.Kind,
		ActorID:   actor.ID,
		At:        time.Now().UTC(),
	})
	return updated, nil
}

func authorize(o *models.Order, to types.OrderStatus, actor models.Actor) error {
	switch actor.Kind {
	case types.ActorDriver:
		if !o.HasDriver(actor.ID) {
			return types.ErrForbidden
		}
	case types.ActorPassenger:
		if o.PassengerID != actor.ID || to != types.StatusCancelled {
			return types.ErrForbidden
		}
	}
	return nil
}

// releaseDriver puts a busy driver back online once their order is over
func (s *Service) releaseDriver(ctx context.Context, driverID int64) {
	ctx = wrap.WithDriverID(ctx, driverID)
	ok, err := s.drivers.Release(ctx, driverID)
	if err != nil {
		s.logger.Error(wrap.ErrorCtx(ctx, err), "failed to release driver", err)
		return
	}
	if !ok {
		s.logger.Debug(ctx, "driver was not busy, status left unchanged")
	}
}

func (s *Service) notify(ctx context.Context, ev models.OrderEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn(ctx, "failed to notify order update", "error", err.Error())
	}
}

// Recent returns the newest orders first
func (s *Service) Recent(ctx context.Context, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	limit = min(limit, maxRecentLimit)

	orders, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, wrap.Error(wrap.WithAction(ctx, "recent_orders"), err)
	}
	return orders, nil
}
