package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

type StatsRepo struct {
	db *pgxpool.Pool
}

func NewStatsRepo(db *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{db: db}
}

// Stats aggregates driver and order counters in one round trip
func (r *StatsRepo) Stats(ctx context.Context) (*models.SystemStats, error) {
	const op = "StatsRepo.Stats"
	q := TxorDB(ctx, r.db)

	query := `
		SELECT
			d.total_drivers, d.online_drivers,
			o.total_orders, o.active_orders, o.completed_orders, o.total_revenue
		FROM (
			SELECT
				COUNT(*) AS total_drivers,
				COUNT(*) FILTER (WHERE status = 'online') AS online_drivers
			FROM drivers
		) d
		CROSS JOIN (
			SELECT
				COUNT(*) AS total_orders,
				COUNT(*) FILTER (WHERE status IN ('created', 'searching_driver', 'driver_assigned', 'driver_arrived', 'in_progress')) AS active_orders,
				COUNT(*) FILTER (WHERE status = 'completed') AS completed_orders,
				COALESCE(SUM(price) FILTER (WHERE status = 'completed'), 0)::float8 AS total_revenue
			FROM orders
		) o`

	var s models.SystemStats
	err := q.QueryRow(ctx, query).Scan(
		&s.TotalDrivers, &s.OnlineDrivers,
		&s.TotalOrders, &s.ActiveOrders, &s.CompletedOrders, &s.TotalRevenue,
	)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return &s, nil
}

// Ping checks the database connection
func (r *StatsRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
