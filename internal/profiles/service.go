package profiles

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/models"
)

// Service encapsulates profile-related business logic
type Service struct {
	repo  Repository
	group singleflight.Group
}

func NewService(r Repository) *Service {
	return &Service{repo: r}
}

// Get returns the profile for an identity id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*models.Profile, error) {
	return s.repo.Get(ctx, id)
}

// Provision creates the profile if absent and returns the stored row. Concurrent
// calls for the same id inside this process share one insert; across processes the
// repository's conflict-safe insert keeps a single row.
func (s *Service) Provision(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	if p == nil || p.ID == "" {
		return nil, fmt.Errorf("provision profile: missing id")
	}
	if !p.Role.Valid() {
		return nil, fmt.Errorf("provision profile %s: %w", p.ID, ErrInvalidRole)
	}
	v, err, _ := s.group.Do(p.ID, func() (interface{}, error) {
		return s.repo.Insert(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	stored := *v.(*models.Profile)
	return &stored, nil
}

func (s *Service) UpdateRole(ctx context.Context, id string, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("update role %q: %w", role, ErrInvalidRole)
	}
	return s.repo.UpdateRole(ctx, id, role)
}

// DisplayName picks a best-effort name from provider metadata, falling back to the
// local part of the email address.
func DisplayName(metadata map[string]string, email string) string {
	for _, k := range []string{"full_name", "name", "preferred_username"} {
		if v := strings.TrimSpace(metadata[k]); v != "" {
			return v
		}
	}
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
