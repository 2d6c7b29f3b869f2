package repositories

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Common repository errors
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a version-checked write lost against a
	// concurrent writer.
	ErrConflict = errors.New("stale version")
)

// isRecordNotFoundError checks for the gorm not-found error.
func isRecordNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
