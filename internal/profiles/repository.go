package profiles

import (
	"context"
	"errors"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/models"
)

var (
	ErrNotFound    = errors.New("profile not found")
	ErrInvalidRole = errors.New("invalid role")
)

// Repository defines persistence operations for profiles.
//
// Insert is conflict-safe: inserting an id that already exists leaves the stored
// row untouched and returns it, so concurrent provisioning never yields two rows.
type Repository interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
	Insert(ctx context.Context, p *models.Profile) (*models.Profile, error)
	UpdateRole(ctx context.Context, id string, role models.Role) error
}
