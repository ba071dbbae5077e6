package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/order"
	"github.com/Temutjin2k/taxi-dispatch/pkg/clock"
)

type harness struct {
	store  *fakeStore
	finder *fakeFinder
	notify *fakeNotifications
	rounds *radiusRecorder
	waker  *Waker
	sup    *Supervisor
	sm     *order.StateMachine
	engine *Engine
}

func newHarness(t *testing.T, cfg Config, orders ...models.Order) *harness {
	t.Helper()
	h := &harness{
		store:  newFakeStore(orders...),
		finder: &fakeFinder{},
		notify: &fakeNotifications{},
		rounds: &radiusRecorder{},
		waker:  NewWaker(),
		sup:    NewSupervisor(testLogger),
	}
	h.sm = order.NewStateMachine(h.store, h.waker)
	h.engine = NewEngine(cfg, h.store, h.sm, h.finder, h.notify, h.waker, h.sup, testLogger).WithObserver(h.rounds)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.sup.Shutdown(ctx)
	})
	return h
}

func fastConfig() Config {
	return Config{
		BaseRadiusKm:      5,
		GrowthFactor:      1.5,
		MaxRadiusKm:       50,
		OfferTimeout:      40 * time.Millisecond,
		MaxSearchDuration: 300 * time.Millisecond,
		RoundDelay:        20 * time.Millisecond,
		CandidateLimit:    10,
		StoreRetryLimit:   3,
	}
}

var pickup = models.Point{Lat: 55.7558, Lon: 37.6176}

func newOrder(id int64, status types.OrderStatus) models.Order {
	return models.Order{ID: id, PassengerID: 100 + id, Pickup: pickup, Status: status, CreatedAt: time.Now().UTC()}
}

// advanceOnRound moves a manual clock forward every time a round runs
type advanceOnRound struct {
	clock *clock.Manual
	step  time.Duration
	*radiusRecorder
}

func (a advanceOnRound) ObserveRound(info RoundInfo) {
	a.radiusRecorder.ObserveRound(info)
	a.clock.Advance(a.step)
}

func TestNextRadius(t *testing.T) {
	assert.Equal(t, 7.5, NextRadius(5, 1.5, 50))
	assert.Equal(t, 50.0, NextRadius(40, 1.5, 50))
	assert.Equal(t, 50.0, NextRadius(50, 1.5, 50))
	assert.Equal(t, 5.0, NextRadius(5, 0.5, 50), "never shrinks")

	r := 0.3
	for range 100 {
		next := NextRadius(r, 1.7, 42)
		require.GreaterOrEqual(t, next, r)
		require.LessOrEqual(t, next, 42.0)
		r = next
	}
	assert.Equal(t, 42.0, r)
}

func TestEngine_NoDriversWithinMaxRadius(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OfferTimeout = time.Millisecond
	cfg.RoundDelay = time.Millisecond

	h := newHarness(t, cfg, newOrder(1, types.StatusCreated))
	manual := clock.NewManual(time.Now())
	rec := &radiusRecorder{}
	h.engine.WithClock(manual).WithObserver(advanceOnRound{clock: manual, step: 10 * time.Second, radiusRecorder: rec})

	require.True(t, h.engine.Dispatch(context.Background(), 1))
	h.sup.Wait()

	assert.Equal(t, []float64{5, 7.5, 11.25, 16.875, 25.3125, 37.96875, 50, 50, 50, 50, 50, 50}, rec.radii())
	assert.Equal(t, types.StatusCancelled, h.store.order(1).Status)

	events := h.notify.sentEvents()
	require.Len(t, events, 1)
	assert.Equal(t, types.StatusCancelled, events[0].Status)
	assert.Equal(t, types.ActorSystem, events[0].ActorKind)
	assert.Empty(t, h.notify.offeredTo())
	assert.Empty(t, h.sup.Failed())
}

func TestEngine_TerminatesWithinDeadline(t *testing.T) {
	cfg := fastConfig()
	h := newHarness(t, cfg, newOrder(1, types.StatusCreated))

	start := time.Now()
	require.True(t, h.engine.Dispatch(context.Background(), 1))
	h.sup.Wait()
	elapsed := time.Since(start)

	assert.Equal(t, types.StatusCancelled, h.store.order(1).Status)
	assert.GreaterOrEqual(t, elapsed, cfg.MaxSearchDuration)
	assert.Less(t, elapsed, cfg.MaxSearchDuration+cfg.RoundDelay+200*time.Millisecond)

	radii := h.rounds.radii()
	require.NotEmpty(t, radii)
	assert.Equal(t, cfg.BaseRadiusKm, radii[0])
	for i := 1; i < len(radii); i++ {
		assert.GreaterOrEqual(t, radii[i], radii[i-1])
		assert.LessOrEqual(t, radii[i], cfg.MaxRadiusKm)
	}
}

func TestEngine_FirstCandidateAccepts(t *testing.T) {
	cfg := fastConfig()
	cfg.OfferTimeout = 5 * time.Second
	cfg.MaxSearchDuration = 30 * time.Second
	h := newHarness(t, cfg, newOrder(1, types.StatusCreated))
	h.finder.fn = func(models.NearbyQuery) ([]models.Candidate, error) { return candidates(7, 8, 9), nil }
	h.notify.onOffer = func(driverID int64, o *models.Order) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			_, _ = h.sm.Assign(context.Background(), o.ID, driverID)
		}()
	}

	start := time.Now()
	require.True(t, h.engine.Dispatch(context.Background(), 1))
	h.sup.Wait()

	assert.Less(t, time.Since(start), time.Second, "the accept wakes the search before the offer timeout")
	got := h.store.order(1)
	assert.Equal(t, types.StatusDriverAssigned, got.Status)
	require.NotNil(t, got.DriverID)
	assert.Equal(t, int64(7), *got.DriverID)
	assert.Equal(t, []int64{7}, h.notify.offeredTo(), "no further offers")
	assert.Equal(t, 1, h.finder.calls(), "no further rounds")
	assert.Empty(t, h.notify.sentEvents(), "the accepting flow notifies, not the engine")
}

func TestEngine_OffersInDistanceOrderWithDeadline(t *testing.T) {
	cfg := fastConfig()
	cfg.OfferTimeout = 15 * time.Millisecond
	cfg.MaxSearchDuration = 500 * time.Millisecond
	h := newHarness(t, cfg, newOrder(1, types.StatusSearchingDriver))
	h.finder.fn = func(models.NearbyQuery) ([]models.Candidate, error) { return candidates(3, 1, 2), nil }
	h.notify.onOffer = func(driverID int64, o *models.Order) {
		if driverID == 2 {
			_, _ = h.sm.Assign(context.Background(), o.ID, driverID)
		}
	}

	before := time.Now()
	require.True(t, h.engine.Dispatch(context.Background(), 1))
	h.sup.Wait()

	assert.Equal(t, []int64{3, 1, 2}, h.notify.offeredTo())
	for _, o := range h.notify.offers {
		assert.True(t, o.deadline.After(before))
		assert.LessOrEqual(t, o.deadline.Sub(before), cfg.OfferTimeout+100*time.Millisecond)
	}
}

func TestEngine_CancelledOrderStopsOffers(t *testing.T) {
	cfg := fastConfig()
	h := newHarness(t, cfg, newOrder(1, types.StatusSearchingDriver))
	h.finder.fn = func(models.NearbyQuery) ([]models.Candidate, error) { return candidates(1, 2, 3), nil }
	h.notify.onOffer = func(_ int64, o *models.Order) {
		_, _ = h.sm.Transition(context.Background(), o.ID, types.StatusSearchingDriver, types.StatusCancelled)
	}

	require.True(t, h.engine.Dispatch(context.Background(), 1))
	h.sup.Wait()

	assert.Equal(t, []int64{1}, h.notify.offeredTo())
	assert.Equal(t, types.StatusCancelled, h.store.order(1).Status)
	assert.Empty(t, h.notify.sentEvents(), "the engine does not re-announce someone else's cancel")
}

func TestEngine_FailedDeliveryMovesOn(t *testing.T) {
	cfg := fastConfig()
	h := newHarness(t, cfg, newOrder(1, types.StatusSearchingDriver))
	h.finder.fn = func(models.NearbyQuery) ([]models.Candidate, error) { return candidates(1, 2), nil }
	h.notify.offerErr = map[int64]error{1: assert.AnError}
	h.notify.onOffer = func(driverID int64, o *models.Order) {
		_, _ = h.sm.Assign(context.Background(), o.ID, driverID)
	}

	require.True(t, h.engine.Dispatch(context.Background(), 1))
	h.sup.Wait()

	assert.Equal(t, []int64{2}, h.notify.offeredTo())
	assert.Equal(t, types.StatusDriverAssigned, h.store.order(1).Status)
}

func TestEngine_CandidateQueryErrorIsNotFatal(t *testing.T) {
	cfg := fastConfig()
	h := newHarness(t, cfg, newOrder(1, types.StatusSearchingDriver))
	calls := 0
	h.finder.fn = func(models.NearbyQuery) ([]models.Candidate, error) {
		calls++
		if calls == 1 {
			return nil, errStoreDown
		}
		return candidates(4), nil
	}
	h.notify.onOffer = func(driverID int64, o *models.Order) {
		_, _ = h.sm.Assign(context.Background(), o.ID, driverID)
	}

	require.True(t, h.engine.Dispatch(context.Background(), 1))
	h.sup.Wait()

	assert.Equal(t, types.StatusDriverAssigned, h.store.order(1).Status)
	assert.Empty(t, h.sup.Failed())
}

func TestEngine_IdempotentStart(t *testing.T) {
	cfg := fastConfig()
	h := newHarness(t, cfg, newOrder(1, types.StatusCreated))
	release := make(chan struct{})
	h.finder.fn = func(models.NearbyQuery) ([]models.Candidate, error) {
		<-release
		return []models.Candidate{}, nil
	}

	assert.True(t, h.engine.Dispatch(context.Background(), 1))
	assert.False(t, h.engine.Dispatch(context.Background(), 1))
	assert.True(t, h.sup.IsActive(1))

	active, failed := h.engine.Stats()
	assert.Equal(t, 1, active)
	assert.Zero(t, failed)

	close(release)
	h.sup.Wait()
	assert.False(t, h.sup.IsActive(1))
}

func TestEngine_ResolvedOrderIsNotSearched(t *testing.T) {
	h := newHarness(t, fastConfig(), newOrder(1, types.StatusCompleted))

	require.True(t, h.engine.Dispatch(context.Background(), 1))
	h.sup.Wait()

	assert.Zero(t, h.finder.calls())
	assert.Equal(t, types.StatusCompleted, h.store.order(1).Status)
	assert.Empty(t, h.sup.Failed())
}

func TestEngine_StoreOutageFailsTask(t *testing.T) {
	cfg := fastConfig()
	cfg.OfferTimeout = 5 * time.Millisecond
	h := newHarness(t, cfg, newOrder(1, types.StatusSearchingDriver))
	h.finder.fn = func(models.NearbyQuery) ([]models.Candidate, error) { return candidates(1, 2, 3, 4), nil }
	h.store.statusErr = errStoreDown

	require.True(t, h.engine.Dispatch(context.Background(), 1))
	h.sup.Wait()

	failed := h.sup.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(1), failed[0].OrderID)
	assert.Equal(t, TaskFailed, failed[0].State)
	assert.Contains(t, failed[0].Err, types.ErrStoreUnavailable.Error())
	assert.Equal(t, []int64{1, 2}, h.notify.offeredTo())
	assert.Equal(t, types.StatusSearchingDriver, h.store.order(1).Status, "left for the reconciler")
}

func TestEngine_FreshnessBound(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxSearchDuration = 10 * time.Millisecond
	cfg.LocationFreshness = time.Minute
	h := newHarness(t, cfg, newOrder(1, types.StatusSearchingDriver))

	require.True(t, h.engine.Dispatch(context.Background(), 1))
	h.sup.Wait()

	require.NotEmpty(t, h.finder.queries)
	q := h.finder.queries[0]
	require.NotNil(t, q.FreshSince)
	assert.WithinDuration(t, time.Now().Add(-time.Minute), *q.FreshSince, time.Second)
	assert.Equal(t, 5000.0, q.RadiusMeters)
	assert.Equal(t, cfg.CandidateLimit, q.Limit)
	assert.Equal(t, pickup, q.Point)
}

func TestEngine_Recover(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxSearchDuration = 5 * time.Second
	cfg.OfferTimeout = time.Second
	old := time.Now().UTC().Add(-10 * time.Minute)

	stale := newOrder(1, types.StatusSearchingDriver)
	stale.CreatedAt = old
	fresh := newOrder(2, types.StatusSearchingDriver)
	stuck := newOrder(3, types.StatusCreated)
	stuck.CreatedAt = old
	justCreated := newOrder(4, types.StatusCreated)
	done := newOrder(5, types.StatusCompleted)
	done.CreatedAt = old

	h := newHarness(t, cfg, stale, fresh, stuck, justCreated, done)

	report, err := h.engine.Recover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RecoverReport{Restarted: 2, Cancelled: 1}, report)
	assert.Equal(t, types.StatusCancelled, h.store.order(1).Status)
	assert.True(t, h.sup.IsActive(2))
	assert.True(t, h.sup.IsActive(3))
	assert.False(t, h.sup.IsActive(4))
	assert.Equal(t, types.StatusCompleted, h.store.order(5).Status)

	events := h.notify.sentEvents()
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].OrderID)
	assert.Equal(t, types.StatusCancelled, events[0].Status)

	again, err := h.engine.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecoverReport{}, again, "running searches are left alone")
}

func TestEngine_RecoveredSearchKeepsOriginalWindow(t *testing.T) {
	cfg := fastConfig()
	cfg.OfferTimeout = 10 * time.Millisecond
	cfg.RoundDelay = 10 * time.Millisecond

	orphan := newOrder(1, types.StatusSearchingDriver)
	orphan.CreatedAt = time.Now().UTC().Add(-250 * time.Millisecond)
	h := newHarness(t, cfg, orphan)

	report, err := h.engine.Recover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Restarted)
	h.sup.Wait()

	assert.Equal(t, types.StatusCancelled, h.store.order(1).Status)
	assert.Less(t, time.Since(orphan.CreatedAt), cfg.MaxSearchDuration+cfg.RoundDelay+100*time.Millisecond,
		"the restarted search must end within the window opened at creation")
}

func TestEngine_ResumedSearchPastWindowEndsAtOnce(t *testing.T) {
	cfg := fastConfig()
	orphan := newOrder(1, types.StatusSearchingDriver)
	orphan.CreatedAt = time.Now().UTC().Add(-time.Hour)
	h := newHarness(t, cfg, orphan)

	start := time.Now()
	require.True(t, h.engine.Dispatch(context.Background(), 1))
	h.sup.Wait()

	assert.Equal(t, types.StatusCancelled, h.store.order(1).Status)
	assert.Less(t, time.Since(start), cfg.MaxSearchDuration)
	assert.Empty(t, h.rounds.radii())
}
