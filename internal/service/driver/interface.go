package driver

import (
	"context"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
)

/*=================Driver Repository======================*/

type DriverRepo interface {
	Get(ctx context.Context, id int64) (*models.Driver, error)
	UpdateStatus(ctx context.Context, id int64, status types.DriverStatus) error
	SwapStatus(ctx context.Context, id int64, from, to types.DriverStatus) (bool, error)
}

/*=================Location Repository====================*/

type LocationRepo interface {
	Append(ctx context.Context, s *models.LocationSample) error
}

/*=================Order Repository=======================*/

type OrderReader interface {
	Get(ctx context.Context, id int64) (*models.Order, error)
	ActiveByDriver(ctx context.Context, driverID int64) (*models.Order, error)
}

/*=================Geo Index==============================*/

// GeoIndex is the live position index of online drivers
type GeoIndex interface {
	Upsert(ctx context.Context, s models.LocationSample) error
	Remove(ctx context.Context, driverID int64) error
}

/*=================Order State Machine====================*/

type Assigner interface {
	Assign(ctx context.Context, orderID, driverID int64) (bool, error)
}

/*=================Notifications==========================*/

type Notifier interface {
	Notify(ctx context.Context, ev models.OrderEvent) error
}
