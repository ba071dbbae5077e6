package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/postgres"
)

type OrderRepo struct {
	db *pgxpool.Pool
}

func NewOrderRepo(db *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{db: db}
}

const orderColumns = `
	o.id, o.order_uuid, o.passenger_id, o.driver_id,
	o.pickup_address, o.pickup_lat, o.pickup_lon,
	o.destination_address, o.destination_lat, o.destination_lon,
	o.status, o.tariff_name, o.price::float8, o.distance_km, o.duration_minutes,
	o.created_at, o.accepted_at, o.arrived_at, o.started_at, o.completed_at, o.cancelled_at`

// lifecycle timestamp stamped by a move into each status
var statusTimestamp = map[types.OrderStatus]string{
	types.StatusDriverAssigned: "accepted_at",
	types.StatusDriverArrived:  "arrived_at",
	types.StatusInProgress:     "started_at",
	types.StatusCompleted:      "completed_at",
	types.StatusCancelled:      "cancelled_at",
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.UUID, &o.PassengerID, &o.DriverID,
		&o.PickupAddress, &o.Pickup.Lat, &o.Pickup.Lon,
		&o.DestinationAddress, &o.Destination.Lat, &o.Destination.Lon,
		&o.Status, &o.TariffName, &o.Price, &o.DistanceKm, &o.DurationMin,
		&o.CreatedAt, &o.AcceptedAt, &o.ArrivedAt, &o.StartedAt, &o.CompletedAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts the order and fills its id, status and created_at
func (r *OrderRepo) Create(ctx context.Context, o *models.Order) error {
	const op = "OrderRepo.Create"
	q := TxorDB(ctx, r.db)

	query := `
		INSERT INTO orders (
			order_uuid, passenger_id,
			pickup_address, pickup_lat, pickup_lon,
			destination_address, destination_lat, destination_lon,
			status, tariff_name, price, distance_km, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`

	if o.Status == "" {
		o.Status = types.StatusCreated
	}

	err := q.QueryRow(ctx, query,
		o.UUID, o.PassengerID,
		o.PickupAddress, o.Pickup.Lat, o.Pickup.Lon,
		o.DestinationAddress, o.Destination.Lat, o.Destination.Lon,
		o.Status, o.TariffName, o.Price, o.DistanceKm, o.DurationMin,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return types.ErrPassengerNotFound
		}
		return wrap.Error(wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed), fmt.Errorf("%s: %w", op, err))
	}

	return nil
}

func (r *OrderRepo) Get(ctx context.Context, id int64) (*models.Order, error) {
	const op = "OrderRepo.Get"
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`

	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrOrderNotFound
		}
		return nil, wrap.Error(wrap.WithOrderID(ctx, id), fmt.Errorf("%s: %w", op, err))
	}
	return o, nil
}

// Status reads only the current status
func (r *OrderRepo) Status(ctx context.Context, id int64) (types.OrderStatus, error) {
	const op = "OrderRepo.Status"
	q := TxorDB(ctx, r.db)

	var status types.OrderStatus
	if err := q.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.ErrOrderNotFound
		}
		return "", wrap.Error(wrap.WithOrderID(ctx, id), fmt.Errorf("%s: %w", op, err))
	}
	return status, nil
}

// Assign binds the driver only while the order is still searching.
// It reports whether this call won the assignment.
func (r *OrderRepo) Assign(ctx context.Context, orderID, driverID int64) (bool, error) {
	const op = "OrderRepo.Assign"
	q := TxorDB(ctx, r.db)

	query := `
		UPDATE orders
		SET driver_id = $1,
			status = 'driver_assigned',
			accepted_at = now(),
			updated_at = now()
		WHERE id = $2 AND status = 'searching_driver'`

	tag, err := q.Exec(ctx, query, driverID, orderID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return false, types.ErrDriverHasActiveOrder
		}
		if postgres.IsForeignKeyViolation(err) {
			return false, types.ErrDriverNotFound
		}
		ctx = wrap.WithDriverID(wrap.WithOrderID(ctx, orderID), driverID)
		return false, wrap.Error(wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed), fmt.Errorf("%s: %w", op, err))
	}

	return tag.RowsAffected() == 1, nil
}

// Transition moves the order from one status to another if it is still in from.
// The lifecycle timestamp of the target status is set only once.
func (r *OrderRepo) Transition(ctx context.Context, orderID int64, from, to types.OrderStatus) (bool, error) {
	const op = "OrderRepo.Transition"
	q := TxorDB(ctx, r.db)

	set := "status = $1, updated_at = now()"
	if col, ok := statusTimestamp[to]; ok {
		set += fmt.Sprintf(", %[1]s = COALESCE(%[1]s, now())", col)
	}
	query := `UPDATE orders SET ` + set + ` WHERE id = $2 AND status = $3`

	tag, err := q.Exec(ctx, query, to, orderID, from)
	if err != nil {
		ctx = wrap.WithOrderID(ctx, orderID)
		return false, wrap.Error(wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed), fmt.Errorf("%s: %w", op, err))
	}

	return tag.RowsAffected() == 1, nil
}

// ListByStatus returns orders in status, oldest first
func (r *OrderRepo) ListByStatus(ctx context.Context, status types.OrderStatus, limit int) ([]*models.Order, error) {
	const op = "OrderRepo.ListByStatus"
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.status = $1 ORDER BY o.created_at ASC LIMIT $2`
	return r.list(ctx, q, op, query, status, limit)
}

// ActiveByDriver returns the newest order bound to the driver that is not finished
func (r *OrderRepo) ActiveByDriver(ctx context.Context, driverID int64) (*models.Order, error) {
	const op = "OrderRepo.ActiveByDriver"
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.driver_id = $1
		  AND o.status IN ('driver_assigned', 'driver_arrived', 'in_progress')
		ORDER BY o.created_at DESC
		LIMIT 1`

	o, err := scanOrder(q.QueryRow(ctx, query, driverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNoActiveOrder
		}
		return nil, wrap.Error(wrap.WithDriverID(ctx, driverID), fmt.Errorf("%s: %w", op, err))
	}
	return o, nil
}

// Recent returns the newest orders
func (r *OrderRepo) Recent(ctx context.Context, limit int) ([]*models.Order, error) {
	const op = "OrderRepo.Recent"
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + orderColumns + ` FROM orders o ORDER BY o.created_at DESC, o.id DESC LIMIT $1`
	return r.list(ctx, q, op, query, limit)
}

func (r *OrderRepo) list(ctx context.Context, q Querier, op, query string, args ...any) ([]*models.Order, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: scan: %w", op, err))
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return orders, nil
}
