package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"order number taken", &pgconn.PgError{Code: "23505", ConstraintName: constraintOrderNumber}, true},
		{"other unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "products_sku_key"}, false},
		{"wrapped deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"plain failure", pgx.ErrTxClosed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err, "op")
			assert.Equal(t, tt.conflict, apperr.CodeOf(got) == apperr.CodeConcurrencyConflict)
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.NoError(t, translate(nil, "op"))
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "coupons_code_key"}
	assert.True(t, isUniqueViolation(err, "coupons_code_key"))
	assert.False(t, isUniqueViolation(err, "products_sku_key"))
	assert.False(t, isUniqueViolation(nil, "coupons_code_key"))
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/x?sslmode=disable", migrateURL("postgres://u:p@db:5432/x?sslmode=disable"))
	assert.Equal(t, "pgx5://db/x", migrateURL("postgresql://db/x"))
	assert.Equal(t, "pgx5://db/x", migrateURL("pgx5://db/x"))
}
