package order

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
)

var testLogger = logger.New(io.Discard, "test", logger.LevelError)

// memRepo is an in-memory order store with the same conditional update semantics as the database
type memRepo struct {
	mu       sync.Mutex
	orders   map[int64]*models.Order
	nextID   int64
	failWith error
	limits   []int
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[int64]*models.Order{}}
}

func (r *memRepo) put(o models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = &o
	r.nextID = max(r.nextID, o.ID)
}

func (r *memRepo) Create(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.nextID++
	o.ID = r.nextID
	o.CreatedAt = time.Now()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *memRepo) Get(_ context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, types.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memRepo) Status(ctx context.Context, id int64) (types.OrderStatus, error) {
	o, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

func (r *memRepo) Assign(_ context.Context, orderID, driverID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return false, r.failWith
	}
	o, ok := r.orders[orderID]
	if !ok || o.Status != types.StatusSearchingDriver {
		return false, nil
	}
	o.Status = types.StatusDriverAssigned
	o.DriverID = &driverID
	return true, nil
}

func (r *memRepo) Transition(_ context.Context, orderID int64, from, to types.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return false, r.failWith
	}
	o, ok := r.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (r *memRepo) Recent(_ context.Context, limit int) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = append(r.limits, limit)
	return []*models.Order{}, nil
}

type countingSignal struct {
	mu    sync.Mutex
	woken []int64
}

func (c *countingSignal) Wake(orderID int64) {
	c.mu.Lock()
	c.woken = append(c.woken, orderID)
	c.mu.Unlock()
}

func (c *countingSignal) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.woken)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev models.OrderEvent) error {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	return nil
}

type recordingDrivers struct {
	released []int64
}

func (d *recordingDrivers) Release(_ context.Context, id int64) (bool, error) {
	d.released = append(d.released, id)
	return true, nil
}

type recordingDispatcher struct {
	started []int64
}

func (d *recordingDispatcher) Dispatch(_ context.Context, orderID int64) bool {
	d.started = append(d.started, orderID)
	return true
}

type stubPublisher struct {
	err       error
	published []int64
}

func (p *stubPublisher) PublishOrderCreated(_ context.Context, o *models.Order) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, o.ID)
	return nil
}

type fixedEstimator struct{}

func (fixedEstimator) Estimate(o *models.Order, surge float64) {
	o.DistanceKm = 10
	o.DurationMin = 20
	o.Price = 300 * max(surge, 1)
}

type stubResolver struct{}

func (stubResolver) GetAddress(_ context.Context, p models.Point) (string, error) {
	if p.Lat == 0 {
		return "", errors.New("lookup failed")
	}
	return "Tverskaya 1", nil
}

type noTx struct{}

func (noTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
