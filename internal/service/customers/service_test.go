package customers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
)

func TestService_CRUD(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewCustomerRepository(), nil)

	created, err := svc.Create(ctx, domain.Customer{ID: 99, Name: "Ada", CreditStanding: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID, "id comes from the store")

	created.Email = "ada@example.com"
	require.NoError(t, svc.Update(ctx, created.ID, created))

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, created.ID), domain.ErrNotFound)
}

func TestService_UpdateErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewCustomerRepository(), nil)

	require.ErrorIs(t, svc.Update(ctx, 1, domain.Customer{ID: 2}), domain.ErrValidation)
	require.ErrorIs(t, svc.Update(ctx, 5, domain.Customer{ID: 5}), domain.ErrNotFound)
}

func TestService_SeedOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewCustomerRepository(), nil)

	n, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = svc.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "Frank One", all[0].Name)
	assert.Equal(t, int64(200), all[4].CreditStanding)
}
