package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestViolationHelpers(t *testing.T) {
	unique := fmt.Errorf("repo: %w", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "orders_one_active_per_driver"})
	fk := &pgconn.PgError{Code: codeForeignKeyViolation}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsForeignKeyViolation(unique))
	assert.Equal(t, "orders_one_active_per_driver", ConstraintName(unique))

	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsCheckViolation(fk))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
	assert.Empty(t, ConstraintName(errors.New("plain")))
}
