package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a record does not resolve.
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion is returned when a guarded update matched no row
	// because the stored version (or guard column) changed since it was read.
	ErrStaleVersion = errors.New("stale version")
)

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
