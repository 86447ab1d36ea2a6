package postgres

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
)

const (
	sqlstateUniqueViolation      = "23505"
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"

	constraintOrderNumber = "orders_order_number_key"
)

// translate maps driver failures onto the error taxonomy. Transient
// contention becomes ConcurrencyConflict; everything else is wrapped.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateSerializationFailure, sqlstateDeadlockDetected:
			return apperr.ConcurrencyConflict(errors.Wrap(err, op))
		case sqlstateUniqueViolation:
			if pgErr.ConstraintName == constraintOrderNumber {
				return apperr.ConcurrencyConflict(errors.Wrap(err, op))
			}
		}
	}
	return errors.Wrap(err, op)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation && pgErr.ConstraintName == constraint
}

func noRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
