package profiles

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/models"
)

func TestService_ProvisionConcurrentYieldsOneProfile(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.Provision(context.Background(), &models.Profile{ID: "u-1", Email: "ana@bar.test", Role: models.RoleAdmin})
			require.NoError(t, err)
			require.Equal(t, "u-1", p.ID)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, repo.Len())
}

func TestService_ProvisionKeepsExistingRow(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Provision(ctx, &models.Profile{ID: "u-1", Role: models.RoleKitchen})
	require.NoError(t, err)
	p, err := svc.Provision(ctx, &models.Profile{ID: "u-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, models.RoleKitchen, p.Role)
}

func TestService_Validation(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Provision(ctx, &models.Profile{})
	require.Error(t, err)
	_, err = svc.Provision(ctx, &models.Profile{ID: "u-1", Role: "chef"})
	require.ErrorIs(t, err, ErrInvalidRole)
	require.ErrorIs(t, svc.UpdateRole(ctx, "u-1", "chef"), ErrInvalidRole)
	require.ErrorIs(t, svc.UpdateRole(ctx, "u-1", models.RoleAdmin), ErrNotFound)

	_, err = svc.Get(ctx, "u-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Ana Souza", DisplayName(map[string]string{"full_name": "Ana Souza", "name": "Ana"}, "ana@bar.test"))
	require.Equal(t, "Ana", DisplayName(map[string]string{"name": " Ana "}, "ana@bar.test"))
	require.Equal(t, "ana", DisplayName(nil, "ana@bar.test"))
	require.Equal(t, "terminal", DisplayName(nil, "terminal"))
}
