package handler

import (
	"context"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/admin"
	ws "github.com/Temutjin2k/taxi-dispatch/pkg/wsHub"
)

/*=====Order=====*/

type OrderService interface {
	Create(ctx context.Context, in models.NewOrder) (*models.Order, error)
	Get(ctx context.Context, id int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, to types.OrderStatus, actor models.Actor) (*models.Order, error)
	Dispatch(ctx context.Context, orderID int64) (bool, error)
	Recent(ctx context.Context, limit int) ([]*models.Order, error)
}

type PriceCalculator interface {
	ETA(distanceKm, traffic float64) int
	Fare(distanceKm float64, durationMin int, surge float64) float64
	TrafficLevel() float64
}

type CandidateFinder interface {
	FindNearby(ctx context.Context, nq models.NearbyQuery) ([]models.Candidate, error)
}

/*=====Driver=====*/

type DriverService interface {
	UpdateLocation(ctx context.Context, sample models.LocationSample, source string) error
	UpdateStatus(ctx context.Context, driverID int64, status types.DriverStatus) (*models.Driver, error)
	ActiveOrder(ctx context.Context, driverID int64) (*models.Order, error)
	AcceptOrder(ctx context.Context, driverID, orderID int64) (*models.Order, error)
}

/*=====Admin=====*/

type AdminService interface {
	Stats(ctx context.Context) (*models.SystemStats, error)
	Searches(ctx context.Context) admin.SearchReport
}

type TokenIssuer interface {
	Issue(ctx context.Context, actor models.Actor) (string, time.Time, error)
}

/*=====Live channels=====*/

type Greeter interface {
	Greet(ctx context.Context, key ws.Key) error
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}
