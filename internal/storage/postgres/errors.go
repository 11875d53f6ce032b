package postgres

import "errors"

var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("harvester/postgres: resource not found")
)
