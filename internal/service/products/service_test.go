package products

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
	svc := NewService(memory.NewProductRepository(), nil)

	created, err := svc.Create(ctx, domain.Product{Name: "Saw", Price: 30, ItemsInStock: 4})
	require.NoError(t, err)

	created.ItemsReserved = 2
	require.NoError(t, svc.Update(ctx, created.ID, created))

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ItemsReserved)
	assert.Equal(t, 2, got.Available())

	require.ErrorIs(t, svc.Update(ctx, created.ID+1, created), domain.ErrValidation)
	require.NoError(t, svc.Delete(ctx, created.ID))
	require.ErrorIs(t, svc.Update(ctx, created.ID, created), domain.ErrNotFound)
}

func TestService_Seed(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewProductRepository(), nil)

	n, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = svc.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
