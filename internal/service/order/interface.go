package order

import (
	"context"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
)

/*=====================Order Repository===========================*/

type OrderRepo interface {
	OrderMover
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id int64) (*models.Order, error)
	Status(ctx context.Context, id int64) (types.OrderStatus, error)
	Recent(ctx context.Context, limit int) ([]*models.Order, error)
}

// OrderMover is the pair of conditional updates the state machine is built on
type OrderMover interface {
	Assign(ctx context.Context, orderID, driverID int64) (bool, error)
	Transition(ctx context.Context, orderID int64, from, to types.OrderStatus) (bool, error)
}

/*=====================Drivers====================================*/

// DriverReleaser frees a busy driver when their order ends
type DriverReleaser interface {
	Release(ctx context.Context, driverID int64) (bool, error)
}

/*=====================Dispatch===================================*/

// Signaler is told when an order leaves searching_driver
type Signaler interface {
	Wake(orderID int64)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, orderID int64) bool
}

// RequestPublisher hands new orders to a dispatcher over the broker
type RequestPublisher interface {
	PublishOrderCreated(ctx context.Context, o *models.Order) error
}

/*=====================Notifications==============================*/

type Notifier interface {
	Notify(ctx context.Context, ev models.OrderEvent) error
}

/*=====================Estimates==================================*/

type Estimator interface {
	Estimate(o *models.Order, surge float64)
}

// AddressResolver turns coordinates into a human readable address
type AddressResolver interface {
	GetAddress(ctx context.Context, p models.Point) (string, error)
}
