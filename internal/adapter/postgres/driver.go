package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

type DriverRepo struct {
	db *pgxpool.Pool
}

func NewDriverRepo(db *pgxpool.Pool) *DriverRepo {
	return &DriverRepo{
		db: db,
	}
}

// great-circle distance in meters between the latest sample l and point ($1, $2)
const distanceExpr = `
	2 * 6371000 * asin(least(1, sqrt(
		power(sin(radians(l.lat - $1) / 2), 2) +
		cos(radians($1)) * cos(radians(l.lat)) * power(sin(radians(l.lon - $2) / 2), 2)
	)))`

// FindNearby returns online, verified drivers without an active order whose most
// recent location sample lies within the radius, nearest first.
func (r *DriverRepo) FindNearby(ctx context.Context, nq models.NearbyQuery) ([]models.Candidate, error) {
	const op = "DriverRepo.FindNearby"
	q := TxorDB(ctx, r.db)

	query := `
		SELECT d.id, l.lat, l.lon, l.recorded_at, g.distance_m
		FROM drivers d
		JOIN LATERAL (
			SELECT lat, lon, recorded_at
			FROM driver_locations
			WHERE driver_id = d.id
			ORDER BY recorded_at DESC
			LIMIT 1
		) l ON true
		CROSS JOIN LATERAL (SELECT ` + distanceExpr + ` AS distance_m) g
		WHERE d.status = 'online'
		  AND d.is_verified = true
		  AND g.distance_m <= $3
		  AND ($5::timestamptz IS NULL OR l.recorded_at >= $5)
		  AND NOT EXISTS (
			SELECT 1 FROM orders o
			WHERE o.driver_id = d.id
			  AND o.status IN ('driver_assigned', 'driver_arrived', 'in_progress')
		  )
		ORDER BY g.distance_m ASC, d.id ASC
		LIMIT $4`

	rows, err := q.Query(ctx, query, nq.Point.Lat, nq.Point.Lon, nq.RadiusMeters, nq.Limit, nq.FreshSince)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	candidates := make([]models.Candidate, 0, nq.Limit)
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(&c.DriverID, &c.Point.Lat, &c.Point.Lon, &c.RecordedAt, &c.DistanceMeters); err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: scan: %w", op, err))
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return candidates, nil
}

// Eligible filters ids down to drivers that may receive an offer right now
func (r *DriverRepo) Eligible(ctx context.Context, ids []int64) (map[int64]bool, error) {
	const op = "DriverRepo.Eligible"
	q := TxorDB(ctx, r.db)

	out := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT d.id
		FROM drivers d
		WHERE d.id = ANY($1)
		  AND d.status = 'online'
		  AND d.is_verified = true
		  AND NOT EXISTS (
			SELECT 1 FROM orders o
			WHERE o.driver_id = d.id
			  AND o.status IN ('driver_assigned', 'driver_arrived', 'in_progress')
		  )`

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: scan: %w", op, err))
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (r *DriverRepo) Get(ctx context.Context, id int64) (*models.Driver, error) {
	const op = "DriverRepo.Get"
	q := TxorDB(ctx, r.db)

	query := `
		SELECT d.id, d.name, d.status, d.is_verified, d.car_model, d.car_plate, d.updated_at,
			l.lat, l.lon, l.speed, l.heading, l.recorded_at
		FROM drivers d
		LEFT JOIN LATERAL (
			SELECT lat, lon, speed, heading, recorded_at
			FROM driver_locations
			WHERE driver_id = d.id
			ORDER BY recorded_at DESC
			LIMIT 1
		) l ON true
		WHERE d.id = $1`

	var (
		d          models.Driver
		lat, lon   *float64
		speed      *float64
		heading    *int
		recordedAt *time.Time
	)
	err := q.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.Name, &d.Status, &d.IsVerified, &d.CarModel, &d.CarPlate, &d.UpdatedAt,
		&lat, &lon, &speed, &heading, &recordedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrDriverNotFound
		}
		return nil, wrap.Error(wrap.WithDriverID(ctx, id), fmt.Errorf("%s: %w", op, err))
	}

	if lat != nil && lon != nil && recordedAt != nil {
		d.Location = &models.LocationSample{
			DriverID:   d.ID,
			Point:      models.Point{Lat: *lat, Lon: *lon},
			Speed:      speed,
			Heading:    heading,
			RecordedAt: *recordedAt,
		}
	}

	return &d, nil
}

// UpdateStatus sets the driver status unconditionally
func (r *DriverRepo) UpdateStatus(ctx context.Context, id int64, status types.DriverStatus) error {
	const op = "DriverRepo.UpdateStatus"
	q := TxorDB(ctx, r.db)

	tag, err := q.Exec(ctx, `UPDATE drivers SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		ctx = wrap.WithDriverID(ctx, id)
		return wrap.Error(wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed), fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDriverNotFound
	}
	return nil
}

// SwapStatus sets the driver status only if it is currently from
func (r *DriverRepo) SwapStatus(ctx context.Context, id int64, from, to types.DriverStatus) (bool, error) {
	const op = "DriverRepo.SwapStatus"
	q := TxorDB(ctx, r.db)

	tag, err := q.Exec(ctx, `UPDATE drivers SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		ctx = wrap.WithDriverID(ctx, id)
		return false, wrap.Error(wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed), fmt.Errorf("%s: %w", op, err))
	}
	return tag.RowsAffected() == 1, nil
}

// Create inserts a driver; used by the seed command and tests
func (r *DriverRepo) Create(ctx context.Context, d *models.Driver) error {
	const op = "DriverRepo.Create"
	q := TxorDB(ctx, r.db)

	query := `
		INSERT INTO drivers (name, status, is_verified, car_model, car_plate)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, updated_at`

	if d.Status == "" {
		d.Status = types.DriverOffline
	}
	if err := q.QueryRow(ctx, query, d.Name, d.Status, d.IsVerified, d.CarModel, d.CarPlate).Scan(&d.ID, &d.UpdatedAt); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}
