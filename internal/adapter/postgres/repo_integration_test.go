package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/trm"
)

// Moscow, Red Square
var pickup = models.Point{Lat: 55.7558, Lon: 37.6176}

type RepoIntegrationSuite struct {
	suite.Suite
	pool       *pgxpool.Pool
	orders     *OrderRepo
	drivers    *DriverRepo
	locations  *LocationRepo
	passengers *PassengerRepo
	stats      *StatsRepo
}

func TestRepoIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	suite.Run(t, new(RepoIntegrationSuite))
}

func (s *RepoIntegrationSuite) SetupSuite() {
	s.pool = testDB(s.T())
	s.orders = NewOrderRepo(s.pool)
	s.drivers = NewDriverRepo(s.pool)
	s.locations = NewLocationRepo(s.pool)
	s.passengers = NewPassengerRepo(s.pool)
	s.stats = NewStatsRepo(s.pool)
}

func (s *RepoIntegrationSuite) SetupTest() {
	truncate(s.T(), s.pool)
}

func (s *RepoIntegrationSuite) newOrder(status types.OrderStatus) *models.Order {
	ctx := context.Background()
	pid, err := s.passengers.Create(ctx, "passenger", "")
	s.Require().NoError(err)

	o := &models.Order{
		UUID:        uuid.New(),
		PassengerID: pid,
		Pickup:      pickup,
		Destination: models.Point{Lat: 55.7339, Lon: 37.5880},
		Status:      status,
		TariffName:  "economy",
		Price:       250,
		DistanceKm:  3.1,
		DurationMin: 8,
	}
	s.Require().NoError(s.orders.Create(ctx, o))
	return o
}

// newDriver creates a driver with one location sample offset north of pickup by meters
func (s *RepoIntegrationSuite) newDriver(status types.DriverStatus, verified bool, northMeters float64, at time.Time) int64 {
	ctx := context.Background()
	d := &models.Driver{Name: "driver", Status: status, IsVerified: verified}
	s.Require().NoError(s.drivers.Create(ctx, d))

	if northMeters >= 0 {
		s.addSample(d.ID, northMeters, at)
	}
	return d.ID
}

func (s *RepoIntegrationSuite) addSample(driverID int64, northMeters float64, at time.Time) {
	p := models.Point{Lat: pickup.Lat + northMeters/111_195.0, Lon: pickup.Lon}
	s.Require().NoError(s.locations.Append(context.Background(), &models.LocationSample{DriverID: driverID, Point: p, RecordedAt: at}))
}

func (s *RepoIntegrationSuite) TestCreateAndGet() {
	o := s.newOrder("")

	got, err := s.orders.Get(context.Background(), o.ID)
	s.Require().NoError(err)
	s.Equal(types.StatusCreated, got.Status)
	s.Equal(o.UUID, got.UUID)
	s.InDelta(250, got.Price, 0.001)
	s.Nil(got.DriverID)

	_, err = s.orders.Get(context.Background(), o.ID+100)
	s.ErrorIs(err, types.ErrOrderNotFound)
}

func (s *RepoIntegrationSuite) TestAppend_TouchesDriverInSameStatement() {
	ctx := context.Background()
	id := s.newDriver(types.DriverOnline, true, -1, time.Time{})

	_, err := s.pool.Exec(ctx, `UPDATE drivers SET updated_at = now() - interval '1 hour' WHERE id = $1`, id)
	s.Require().NoError(err)

	at := time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond)
	sample := &models.LocationSample{DriverID: id, Point: pickup, RecordedAt: at}
	s.Require().NoError(s.locations.Append(ctx, sample))
	s.True(sample.RecordedAt.Equal(at))

	var ageSec int64
	s.Require().NoError(s.pool.QueryRow(ctx, `SELECT EXTRACT(EPOCH FROM now() - updated_at)::bigint FROM drivers WHERE id = $1`, id).Scan(&ageSec))
	s.Less(ageSec, int64(60))

	unstamped := &models.LocationSample{DriverID: id, Point: pickup}
	s.Require().NoError(s.locations.Append(ctx, unstamped))
	s.False(unstamped.RecordedAt.IsZero())

	var before int
	s.Require().NoError(s.pool.QueryRow(ctx, `SELECT count(*) FROM driver_locations`).Scan(&before))
	err = s.locations.Append(ctx, &models.LocationSample{DriverID: id + 1000, Point: pickup})
	s.ErrorIs(err, types.ErrDriverNotFound)

	var after int
	s.Require().NoError(s.pool.QueryRow(ctx, `SELECT count(*) FROM driver_locations`).Scan(&after))
	s.Equal(before, after)
}

func (s *RepoIntegrationSuite) TestCreate_UnknownPassenger() {
	o := &models.Order{UUID: uuid.New(), PassengerID: 999, Pickup: pickup, Destination: pickup}
	s.ErrorIs(s.orders.Create(context.Background(), o), types.ErrPassengerNotFound)
}

func (s *RepoIntegrationSuite) TestAssign_ConcurrentExactlyOneWins() {
	ctx := context.Background()
	o := s.newOrder(types.StatusSearchingDriver)

	const n = 16
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = s.newDriver(types.DriverOnline, true, -1, time.Time{})
	}

	var (
		wins   atomic.Int32
		winner atomic.Int64
		wg     sync.WaitGroup
		start  = make(chan struct{})
	)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := s.orders.Assign(ctx, o.ID, id)
			s.NoError(err)
			if ok {
				wins.Add(1)
				winner.Store(id)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), wins.Load())

	got, err := s.orders.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(types.StatusDriverAssigned, got.Status)
	s.Require().NotNil(got.DriverID)
	s.Equal(winner.Load(), *got.DriverID)
	s.NotNil(got.AcceptedAt)
}

func (s *RepoIntegrationSuite) TestAssign_RequiresSearching() {
	o := s.newOrder(types.StatusCreated)
	d := s.newDriver(types.DriverOnline, true, -1, time.Time{})

	ok, err := s.orders.Assign(context.Background(), o.ID, d)
	s.NoError(err)
	s.False(ok)
}

func (s *RepoIntegrationSuite) TestAssign_DriverWithActiveOrder() {
	ctx := context.Background()
	d := s.newDriver(types.DriverOnline, true, -1, time.Time{})

	first := s.newOrder(types.StatusSearchingDriver)
	ok, err := s.orders.Assign(ctx, first.ID, d)
	s.Require().NoError(err)
	s.Require().True(ok)

	second := s.newOrder(types.StatusSearchingDriver)
	_, err = s.orders.Assign(ctx, second.ID, d)
	s.ErrorIs(err, types.ErrDriverHasActiveOrder)
}

func (s *RepoIntegrationSuite) TestTransition_GuardedAndStampedOnce() {
	ctx := context.Background()
	o := s.newOrder(types.StatusSearchingDriver)

	ok, err := s.orders.Transition(ctx, o.ID, types.StatusDriverAssigned, types.StatusDriverArrived)
	s.NoError(err)
	s.False(ok, "guard on prior status")

	ok, err = s.orders.Transition(ctx, o.ID, types.StatusSearchingDriver, types.StatusCancelled)
	s.NoError(err)
	s.True(ok)

	got, err := s.orders.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(types.StatusCancelled, got.Status)
	s.Require().NotNil(got.CancelledAt)
	s.False(got.CancelledAt.Before(got.CreatedAt))

	ok, err = s.orders.Transition(ctx, o.ID, types.StatusSearchingDriver, types.StatusCancelled)
	s.NoError(err)
	s.False(ok)
}

func (s *RepoIntegrationSuite) TestFindNearby() {
	ctx := context.Background()
	now := time.Now()

	near := s.newDriver(types.DriverOnline, true, 500, now)
	far := s.newDriver(types.DriverOnline, true, 3000, now)
	s.newDriver(types.DriverOnline, true, 9000, now) // outside radius
	s.newDriver(types.DriverOffline, true, 100, now) // offline
	s.newDriver(types.DriverOnline, false, 100, now) // unverified
	stale := s.newDriver(types.DriverOnline, true, 200, now.Add(-time.Hour))

	// only the latest sample counts: moved from 10km to 1km
	moved := s.newDriver(types.DriverOnline, true, 10_000, now.Add(-time.Minute))
	s.addSample(moved, 1000, now)

	busy := s.newDriver(types.DriverOnline, true, 50, now)
	o := s.newOrder(types.StatusSearchingDriver)
	ok, err := s.orders.Assign(ctx, o.ID, busy)
	s.Require().NoError(err)
	s.Require().True(ok)

	got, err := s.drivers.FindNearby(ctx, models.NearbyQuery{Point: pickup, RadiusMeters: 5000, Limit: 10})
	s.Require().NoError(err)

	ids := make([]int64, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.DriverID)
	}
	s.Equal([]int64{stale, near, moved, far}, ids)
	s.IsNonDecreasing(distances(got))

	fresh := now.Add(-5 * time.Minute)
	got, err = s.drivers.FindNearby(ctx, models.NearbyQuery{Point: pickup, RadiusMeters: 5000, Limit: 2, FreshSince: &fresh})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(near, got[0].DriverID)
	s.Equal(moved, got[1].DriverID)
}

func (s *RepoIntegrationSuite) TestEligible() {
	ctx := context.Background()
	ok1 := s.newDriver(types.DriverOnline, true, -1, time.Time{})
	off := s.newDriver(types.DriverBreak, true, -1, time.Time{})

	got, err := s.drivers.Eligible(ctx, []int64{ok1, off, 12345})
	s.Require().NoError(err)
	s.Equal(map[int64]bool{ok1: true}, got)
}

func (s *RepoIntegrationSuite) TestDriverStatusAndActiveOrder() {
	ctx := context.Background()
	d := s.newDriver(types.DriverOnline, true, 100, time.Now())

	_, err := s.orders.ActiveByDriver(ctx, d)
	s.ErrorIs(err, types.ErrNoActiveOrder)

	o := s.newOrder(types.StatusSearchingDriver)
	ok, err := s.orders.Assign(ctx, o.ID, d)
	s.Require().NoError(err)
	s.Require().True(ok)

	active, err := s.orders.ActiveByDriver(ctx, d)
	s.Require().NoError(err)
	s.Equal(o.ID, active.ID)

	swapped, err := s.drivers.SwapStatus(ctx, d, types.DriverOnline, types.DriverBusy)
	s.NoError(err)
	s.True(swapped)

	swapped, err = s.drivers.SwapStatus(ctx, d, types.DriverOnline, types.DriverBusy)
	s.NoError(err)
	s.False(swapped)

	drv, err := s.drivers.Get(ctx, d)
	s.Require().NoError(err)
	s.Equal(types.DriverBusy, drv.Status)
	s.Require().NotNil(drv.Location)

	s.ErrorIs(s.drivers.UpdateStatus(ctx, d+100, types.DriverOnline), types.ErrDriverNotFound)
}

func (s *RepoIntegrationSuite) TestTransactionRollback() {
	ctx := context.Background()
	tm := trm.New(s.pool)

	err := tm.Do(ctx, func(ctx context.Context) error {
		if _, err := s.passengers.Create(ctx, "ghost", ""); err != nil {
			return err
		}
		return types.ErrStatusChanged
	})
	s.ErrorIs(err, types.ErrStatusChanged)

	st, err := s.stats.Stats(ctx)
	s.Require().NoError(err)
	s.Zero(st.TotalOrders)

	var n int
	s.Require().NoError(s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM passengers`).Scan(&n))
	s.Zero(n)
}

func (s *RepoIntegrationSuite) TestStatsAndRecent() {
	ctx := context.Background()
	s.newDriver(types.DriverOnline, true, -1, time.Time{})
	s.newDriver(types.DriverOffline, true, -1, time.Time{})

	done := s.newOrder(types.StatusSearchingDriver)
	d := s.newDriver(types.DriverOnline, true, -1, time.Time{})
	ok, err := s.orders.Assign(ctx, done.ID, d)
	s.Require().NoError(err)
	s.Require().True(ok)
	for _, step := range [][2]types.OrderStatus{
		{types.StatusDriverAssigned, types.StatusDriverArrived},
		{types.StatusDriverArrived, types.StatusInProgress},
		{types.StatusInProgress, types.StatusCompleted},
	} {
		ok, err := s.orders.Transition(ctx, done.ID, step[0], step[1])
		s.Require().NoError(err)
		s.Require().True(ok)
	}
	s.newOrder(types.StatusSearchingDriver)

	st, err := s.stats.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(3, st.TotalDrivers)
	s.Equal(2, st.OnlineDrivers)
	s.Equal(2, st.TotalOrders)
	s.Equal(1, st.ActiveOrders)
	s.Equal(1, st.CompletedOrders)
	s.InDelta(250, st.TotalRevenue, 0.001)

	recent, err := s.orders.Recent(ctx, 1)
	s.Require().NoError(err)
	s.Len(recent, 1)

	searching, err := s.orders.ListByStatus(ctx, types.StatusSearchingDriver, 10)
	s.Require().NoError(err)
	s.Len(searching, 1)
}

func distances(cs []models.Candidate) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.DistanceMeters
	}
	return out
}
