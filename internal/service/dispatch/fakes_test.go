package dispatch

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

var errStoreDown = errors.New("connection refused")

// fakeStore keeps orders in memory with conditional updates like the database
type fakeStore struct {
	mu        sync.Mutex
	orders    map[int64]*models.Order
	statusErr error
}

func newFakeStore(orders ...models.Order) *fakeStore {
	s := &fakeStore{orders: map[int64]*models.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = &o
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, types.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) Status(_ context.Context, id int64) (types.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return "", s.statusErr
	}
	o, ok := s.orders[id]
	if !ok {
		return "", types.ErrOrderNotFound
	}
	return o.Status, nil
}

func (s *fakeStore) ListByStatus(_ context.Context, status types.OrderStatus, limit int) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.Status == status && len(out) < limit {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) Assign(_ context.Context, orderID, driverID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != types.StatusSearchingDriver {
		return false, nil
	}
	o.Status = types.StatusDriverAssigned
	o.DriverID = &driverID
	return true, nil
}

func (s *fakeStore) Transition(_ context.Context, orderID int64, from, to types.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (s *fakeStore) order(id int64) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

// fakeFinder returns the candidates produced by fn and records every query
type fakeFinder struct {
	mu      sync.Mutex
	fn      func(q models.NearbyQuery) ([]models.Candidate, error)
	queries []models.NearbyQuery
}

func (f *fakeFinder) FindNearby(_ context.Context, q models.NearbyQuery) ([]models.Candidate, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return []models.Candidate{}, nil
	}
	return fn(q)
}

func (f *fakeFinder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type sentOffer struct {
	driverID int64
	deadline time.Time
}

// fakeNotifications records offers and events. onOffer runs synchronously inside SendOffer.
type fakeNotifications struct {
	mu       sync.Mutex
	offers   []sentOffer
	events   []models.OrderEvent
	offerErr map[int64]error
	onOffer  func(driverID int64, o *models.Order)
}

func (n *fakeNotifications) SendOffer(_ context.Context, driverID int64, o *models.Order, deadline time.Time) error {
	n.mu.Lock()
	err := n.offerErr[driverID]
	if err == nil {
		n.offers = append(n.offers, sentOffer{driverID: driverID, deadline: deadline})
	}
	hook := n.onOffer
	n.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(driverID, o)
	}
	return nil
}

func (n *fakeNotifications) Notify(_ context.Context, ev models.OrderEvent) error {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifications) offeredTo() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int64, len(n.offers))
	for i, o := range n.offers {
		out[i] = o.driverID
	}
	return out
}

func (n *fakeNotifications) sentEvents() []models.OrderEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.OrderEvent(nil), n.events...)
}

type radiusRecorder struct {
	mu     sync.Mutex
	rounds []RoundInfo
}

func (r *radiusRecorder) ObserveRound(info RoundInfo) {
	r.mu.Lock()
	r.rounds = append(r.rounds, info)
	r.mu.Unlock()
}

func (r *radiusRecorder) radii() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.rounds))
	for i, info := range r.rounds {
		out[i] = info.RadiusKm
	}
	return out
}

func candidates(ids ...int64) []models.Candidate {
	out := make([]models.Candidate, len(ids))
	for i, id := range ids {
		out[i] = models.Candidate{DriverID: id, DistanceMeters: float64(100 * (i + 1))}
	}
	return out
}
