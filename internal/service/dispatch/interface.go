package dispatch

import (
	"context"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
)

/*=====================Order Repository===========================*/

type OrderReader interface {
	Get(ctx context.Context, id int64) (*models.Order, error)
	Status(ctx context.Context, id int64) (types.OrderStatus, error)
	ListByStatus(ctx context.Context, status types.OrderStatus, limit int) ([]*models.Order, error)
}

/*=====================State Machine==============================*/

type StatusMover interface {
	Transition(ctx context.Context, orderID int64, from, to types.OrderStatus) (bool, error)
}

/*=====================Candidates=================================*/

// CandidateFinder returns eligible drivers ordered by ascending distance
type CandidateFinder interface {
	FindNearby(ctx context.Context, q models.NearbyQuery) ([]models.Candidate, error)
}

/*=====================Notifications==============================*/

type Notifications interface {
	SendOffer(ctx context.Context, driverID int64, o *models.Order, deadline time.Time) error
	Notify(ctx context.Context, ev models.OrderEvent) error
}

/*=====================Observation================================*/

// RoundInfo describes one pass over the candidate list
type RoundInfo struct {
	OrderID    int64
	Round      int
	RadiusKm   float64
	Candidates int
}

type RoundObserver interface {
	ObserveRound(r RoundInfo)
}
