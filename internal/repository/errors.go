package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/couplegram/couplegram/internal/gateway"
)

// PostgreSQL error codes translated to gateway error kinds.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	invalidTextRep      = "22P02"
)

// classify wraps err with the gateway kind it corresponds to, keeping the
// driver error in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, gateway.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, gateway.ErrConflict, err)
		case foreignKeyViolation, invalidTextRep:
			return fmt.Errorf("%s: %w: %w", op, gateway.ErrInvalid, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// affected turns a zero row count into ErrNotFound.
func affected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, gateway.ErrNotFound)
	}
	return nil
}
