package storage

import (
	"errors"
	"time"

	"github.com/kalambet/persona/internal/rapidapi"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SavedProfile is a profile snapshot kept for later lookup.
type SavedProfile struct {
	ID        string           `json:"id"`
	Profile   rapidapi.Profile `json:"profile"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
