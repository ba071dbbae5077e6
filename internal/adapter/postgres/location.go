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

// LocationRepo stores the append-only driver location history
type LocationRepo struct {
	db *pgxpool.Pool
}

func NewLocationRepo(db *pgxpool.Pool) *LocationRepo {
	return &LocationRepo{db: db}
}

// Append stores a sample and touches the driver row in one statement.
// A zero RecordedAt is filled by the database.
func (r *LocationRepo) Append(ctx context.Context, s *models.LocationSample) error {
	const op = "LocationRepo.Append"
	q := TxorDB(ctx, r.db)

	query := `
		WITH touched AS (
			UPDATE drivers SET updated_at = now() WHERE id = $1 RETURNING id
		)
		INSERT INTO driver_locations (driver_id, lat, lon, speed, heading, recorded_at)
		SELECT id, $2::double precision, $3::double precision, $4::double precision, $5::integer,
			COALESCE($6::timestamptz, now())
		FROM touched
		RETURNING recorded_at`

	var recordedAt any
	if !s.RecordedAt.IsZero() {
		recordedAt = s.RecordedAt
	}

	err := q.QueryRow(ctx, query, s.DriverID, s.Point.Lat, s.Point.Lon, s.Speed, s.Heading, recordedAt).Scan(&s.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || postgres.IsForeignKeyViolation(err) {
			return types.ErrDriverNotFound
		}
		ctx = wrap.WithDriverID(ctx, s.DriverID)
		return wrap.Error(wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed), fmt.Errorf("%s: %w", op, err))
	}

	return nil
}
