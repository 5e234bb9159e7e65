package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyResolved is returned when resolving an alert that has already
// left the OPEN state. RESOLVED is terminal.
var ErrAlreadyResolved = errors.New("storage: alert already resolved")

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
