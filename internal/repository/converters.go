package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shyding/kura-spool/internal/domain"
	"github.com/shyding/kura-spool/internal/pkg/pgerr"
)

// mapError translates a backend failure into a domain sentinel.
// Grounded on teacher's repository/converters.go:mapError.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}

	if pgerr.Is(err, pgerr.UniqueViolation) {
		return fmt.Errorf("%w: duplicate id: %w", domain.ErrStoreError, err)
	}

	return errors.Join(domain.ErrStoreError, err)
}
