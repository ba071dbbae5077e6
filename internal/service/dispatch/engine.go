package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/clock"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/metrics"
)

// Search outcomes, also used as metric labels
const (
	OutcomeAssigned  = "assigned"
	OutcomeResolved  = "resolved"
	OutcomeExhausted = "exhausted"
	OutcomeFailed    = "failed"
)

const storeRetryBackoff = 200 * time.Millisecond

// Engine searches for a driver for one order at a time per task: it offers the
// order to the nearest candidates, waits for someone to take it, widens the
// radius between rounds, and cancels the order when the deadline passes.
type Engine struct {
	cfg      Config
	orders   OrderReader
	sm       StatusMover
	finder   CandidateFinder
	notify   Notifications
	waker    *Waker
	sup      *Supervisor
	observer RoundObserver
	clock    clock.Clock
	log      logger.Logger
}

func NewEngine(cfg Config, orders OrderReader, sm StatusMover, finder CandidateFinder, notify Notifications, waker *Waker, sup *Supervisor, log logger.Logger) *Engine {
	if cfg.StoreRetryLimit <= 0 {
		cfg.StoreRetryLimit = 1
	}
	return &Engine{
		cfg:    cfg,
		orders: orders,
		sm:     sm,
		finder: finder,
		notify: notify,
		waker:  waker,
		sup:    sup,
		clock:  clock.NewSystem(),
		log:    log,
	}
}

// WithObserver sets a hook called after every candidate query
func (e *Engine) WithObserver(o RoundObserver) *Engine {
	e.observer = o
	return e
}

// WithClock replaces the clock used for deadlines
func (e *Engine) WithClock(c clock.Clock) *Engine {
	e.clock = c
	return e
}

// Dispatch starts a search for the order unless one is already running.
// The search outlives ctx; only its log context is carried over.
func (e *Engine) Dispatch(ctx context.Context, orderID int64) bool {
	lc, _ := ctx.Value(wrap.LogCtxKey).(wrap.LogCtx)
	started := e.sup.Start(orderID, lc, func(ctx context.Context) error {
		return e.search(ctx, orderID)
	})
	if !started {
		e.log.Debug(wrap.WithOrderID(ctx, orderID), "search already running")
	}
	return started
}

// search is the state of one running task
type search struct {
	order    *models.Order
	wake     <-chan struct{}
	deadline time.Time
	failures int
}

func (e *Engine) search(ctx context.Context, orderID int64) (err error) {
	ctx = wrap.WithAction(wrap.WithOrderID(ctx, orderID), types.ActionSearchDriver)

	start := e.clock.Now()
	metrics.SearchesStarted.Inc()
	metrics.ActiveSearches.Inc()
	outcome := OutcomeFailed
	defer func() {
		metrics.ActiveSearches.Dec()
		metrics.RecordSearchFinished(outcome, e.clock.Now().Sub(start))
	}()

	wake, unsubscribe := e.waker.Subscribe(orderID)
	defer unsubscribe()

	order, resumed, err := e.begin(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		outcome = OutcomeResolved
		return nil
	}

	s := &search{order: order, wake: wake, deadline: start.Add(e.cfg.MaxSearchDuration)}
	if resumed && !order.CreatedAt.IsZero() {
		// a search picked up again keeps the window that opened with the order
		s.deadline = minTime(s.deadline, order.CreatedAt.Add(e.cfg.MaxSearchDuration))
	}
	e.log.Info(ctx, "driver search started", "pickup_lat", order.Pickup.Lat, "pickup_lon", order.Pickup.Lon)

	radius := e.cfg.BaseRadiusKm
	for round := 1; e.clock.Now().Before(s.deadline); round++ {
		status, err := e.runRound(ctx, s, round, radius)
		if err != nil {
			return err
		}
		if status != types.StatusSearchingDriver {
			outcome = outcomeOf(status)
			e.log.Info(ctx, "driver search finished", "status", status.String(), "rounds", round)
			return nil
		}

		radius = NextRadius(radius, e.cfg.GrowthFactor, e.cfg.MaxRadiusKm)
		if !e.wait(ctx, s, min(e.cfg.RoundDelay, s.deadline.Sub(e.clock.Now()))) {
			return ctx.Err()
		}
		status, err = e.status(ctx, s)
		if err != nil {
			return err
		}
		if status != types.StatusSearchingDriver {
			outcome = outcomeOf(status)
			e.log.Info(ctx, "driver search finished", "status", status.String(), "rounds", round)
			return nil
		}
	}

	outcome, err = e.exhaust(ctx, s)
	return err
}

// begin moves the order into searching_driver. A nil order means it was already resolved.
// resumed is set when the order was searching before this task started.
func (e *Engine) begin(ctx context.Context, orderID int64) (order *models.Order, resumed bool, err error) {
	err = e.retryStore(ctx, func() error {
		o, err := e.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	switch order.Status {
	case types.StatusSearchingDriver:
		return order, true, nil
	case types.StatusCreated:
	default:
		e.log.Info(ctx, "order no longer needs a driver", "status", order.Status.String())
		return nil, false, nil
	}

	var moved bool
	err = e.retryStore(ctx, func() error {
		ok, err := e.sm.Transition(ctx, orderID, types.StatusCreated, types.StatusSearchingDriver)
		moved = ok
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if moved {
		order.Status = types.StatusSearchingDriver
		return order, false, nil
	}

	// someone else moved it first, continue only if that was into the search
	var status types.OrderStatus
	err = e.retryStore(ctx, func() error {
		st, err := e.orders.Status(ctx, orderID)
		status = st
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if status != types.StatusSearchingDriver {
		return nil, false, nil
	}
	order.Status = status
	return order, false, nil
}

// runRound offers the order to every candidate within radius, nearest first.
// It returns the last observed order status.
func (e *Engine) runRound(ctx context.Context, s *search, round int, radiusKm float64) (types.OrderStatus, error) {
	q := models.NearbyQuery{
		Point:        s.order.Pickup,
		RadiusMeters: radiusKm * 1000,
		Limit:        e.cfg.CandidateLimit,
		FreshSince:   e.freshSince(),
	}
	candidates, err := e.finder.FindNearby(ctx, q)
	metrics.SearchRadius.Observe(radiusKm)
	if e.observer != nil {
		e.observer.ObserveRound(RoundInfo{OrderID: s.order.ID, Round: round, RadiusKm: radiusKm, Candidates: len(candidates)})
	}
	if err != nil {
		e.log.Warn(ctx, "candidate query failed", "error", err.Error(), "radius_km", radiusKm)
		return types.StatusSearchingDriver, nil
	}
	e.log.Debug(ctx, "search round", "round", round, "radius_km", radiusKm, "candidates", len(candidates))

	offered := false
	for _, c := range candidates {
		if !e.clock.Now().Before(s.deadline) {
			break
		}
		status, err := e.status(ctx, s)
		if err != nil {
			return "", err
		}
		if status != types.StatusSearchingDriver {
			return status, nil
		}

		timeout := min(e.cfg.OfferTimeout, s.deadline.Sub(e.clock.Now()))
		if err := e.offer(ctx, s.order, c, timeout); err != nil {
			continue
		}
		offered = true
		if !e.wait(ctx, s, timeout) {
			return "", ctx.Err()
		}
	}

	if !offered {
		return types.StatusSearchingDriver, nil
	}
	return e.status(ctx, s)
}

func (e *Engine) offer(ctx context.Context, o *models.Order, c models.Candidate, timeout time.Duration) error {
	ctx = wrap.WithAction(wrap.WithDriverID(ctx, c.DriverID), types.ActionSendOffer)

	err := e.notify.SendOffer(ctx, c.DriverID, o, e.clock.Now().Add(timeout))
	metrics.RecordOffer(err)
	if err != nil {
		e.log.Warn(ctx, "failed to deliver offer", "error", err.Error())
		return err
	}
	e.log.Debug(ctx, "offer sent", "distance_m", c.DistanceMeters)
	return nil
}

// status re-reads the order status. Store errors are tolerated until they happen
// StoreRetryLimit times in a row; meanwhile the order is assumed to be still searching.
func (e *Engine) status(ctx context.Context, s *search) (types.OrderStatus, error) {
	status, err := e.orders.Status(ctx, s.order.ID)
	if err == nil {
		s.failures = 0
		return status, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	s.failures++
	e.log.Warn(ctx, "failed to read order status", "error", err.Error(), "consecutive_failures", s.failures)
	if s.failures >= e.cfg.StoreRetryLimit {
		return "", fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}
	return types.StatusSearchingDriver, nil
}

// wait suspends the search for d, returning early when the order is woken.
// false means ctx was cancelled.
func (e *Engine) wait(ctx context.Context, s *search, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-s.wake:
		return true
	case <-timer.C:
		return true
	}
}

// exhaust cancels the order after the deadline. Losing the race to another
// actor is a normal ending.
func (e *Engine) exhaust(ctx context.Context, s *search) (string, error) {
	var cancelled bool
	err := e.retryStore(ctx, func() error {
		ok, err := e.sm.Transition(ctx, s.order.ID, types.StatusSearchingDriver, types.StatusCancelled)
		cancelled = ok
		return err
	})
	if err != nil {
		return OutcomeFailed, err
	}
	if !cancelled {
		status, err := e.orders.Status(ctx, s.order.ID)
		if err != nil {
			return OutcomeResolved, nil
		}
		return outcomeOf(status), nil
	}

	e.log.Warn(ctx, "order cancelled, no driver accepted before the deadline", "error", types.ErrSearchExhausted.Error())
	e.publish(ctx, models.OrderEvent{
		OrderID:   s.order.ID,
		Status:    types.StatusCancelled,
		ActorKind: models.SystemActor.Kind,
		ActorID:   models.SystemActor.ID,
		At:        e.clock.Now(),
	})
	return OutcomeExhausted, nil
}

func (e *Engine) publish(ctx context.Context, ev models.OrderEvent) {
	if err := e.notify.Notify(ctx, ev); err != nil {
		e.log.Warn(ctx, "failed to notify order update", "error", err.Error())
	}
}

// retryStore runs fn until it succeeds or fails StoreRetryLimit times
func (e *Engine) retryStore(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= e.cfg.StoreRetryLimit; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, types.ErrOrderNotFound) {
			return err
		}
		if attempt == e.cfg.StoreRetryLimit {
			break
		}
		e.log.Warn(ctx, "store operation failed, retrying", "error", err.Error(), "attempt", attempt)

		timer := time.NewTimer(time.Duration(attempt) * storeRetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
}

func (e *Engine) freshSince() *time.Time {
	if e.cfg.LocationFreshness <= 0 {
		return nil
	}
	t := e.clock.Now().Add(-e.cfg.LocationFreshness)
	return &t
}

func outcomeOf(status types.OrderStatus) string {
	if status.IsActive() || status == types.StatusCompleted {
		return OutcomeAssigned
	}
	return OutcomeResolved
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
