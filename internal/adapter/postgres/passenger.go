package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

type PassengerRepo struct {
	db *pgxpool.Pool
}

func NewPassengerRepo(db *pgxpool.Pool) *PassengerRepo {
	return &PassengerRepo{db: db}
}

// Create inserts a passenger and returns its id
func (r *PassengerRepo) Create(ctx context.Context, name, phone string) (int64, error) {
	const op = "PassengerRepo.Create"
	q := TxorDB(ctx, r.db)

	var id int64
	if err := q.QueryRow(ctx, `INSERT INTO passengers (name, phone) VALUES ($1, NULLIF($2, '')) RETURNING id`, name, phone).Scan(&id); err != nil {
		return 0, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return id, nil
}
