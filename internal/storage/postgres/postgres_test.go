//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/easyeat/internal/domain/auth"
	"github.com/xenking/easyeat/internal/domain/cart"
	"github.com/xenking/easyeat/internal/domain/order"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "easyeat",
				"POSTGRES_PASSWORD": "easyeat",
				"POSTGRES_DB":       "easyeat",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := NewPool(ctx, fmt.Sprintf("postgres://easyeat:easyeat@%s:%s/easyeat?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func TestOrderRepository(t *testing.T) {
	pool := startPostgres(t)
	repo := NewOrderRepository(pool)
	ctx := context.Background()

	o := &order.Order{
		ID: "11111111-1111-1111-1111-111111111111",
		Lines: []cart.Line{
			{ItemID: "m1", Name: "Pho", UnitPrice: decimal.RequireFromString("10.99"), Quantity: 3, SellerID: "chef-1", SellerName: "Chef One"},
		},
		ItemsSubtotal: decimal.RequireFromString("32.97"),
		DeliveryFee:   decimal.RequireFromString("2.00"),
		Address:       "1 Main St",
		CustomerID:    "c1",
		CustomerName:  "Alice",
		SellerID:      "chef-1",
		SellerName:    "Chef One",
	}
	require.NoError(t, repo.Create(ctx, o))
	assert.Equal(t, order.StatusNew, o.Status)
	assert.False(t, o.CreatedAt.IsZero())

	created := o.CreatedAt
	require.NoError(t, repo.Create(ctx, o), "retried create is idempotent")
	assert.True(t, created.Equal(o.CreatedAt))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("34.97").Equal(got.Total()))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 3, got.Lines[0].Quantity)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, order.ErrOrderNotFound)

	updatedAt, err := repo.UpdateStatus(ctx, o.ID, order.StatusNew, order.StatusPreparing)
	require.NoError(t, err)
	assert.False(t, updatedAt.Before(created))

	_, err = repo.UpdateStatus(ctx, o.ID, order.StatusNew, order.StatusCancelled)
	require.ErrorIs(t, err, order.ErrStatusChanged)
	_, err = repo.UpdateStatus(ctx, "missing", order.StatusNew, order.StatusCancelled)
	require.ErrorIs(t, err, order.ErrOrderNotFound)

	mine, err := repo.ListByCustomer(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, order.StatusPreparing, mine[0].Status)

	for _, sorted := range []bool{true, false} {
		queue, err := repo.ListBySeller(ctx, "chef-1", order.ListOptions{NewestFirst: sorted})
		require.NoError(t, err)
		assert.Len(t, queue, 1)
	}
}

func TestAPIKeyRepository(t *testing.T) {
	pool := startPostgres(t)
	repo := NewAPIKeyRepository(pool)
	ctx := context.Background()

	hash := auth.HashKey([]byte("pepper"), "secret")
	require.NoError(t, repo.Upsert(ctx, auth.APIKeyInfo{
		ID: "chef-key", KeyHash: hash, SubjectID: "chef-1", Name: "Chef One", Role: auth.RoleChef,
	}))

	info, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{ID: "chef-1", Name: "Chef One", Role: auth.RoleChef}, info.Identity())

	_, err = repo.FindByHash(ctx, "unknown")
	require.ErrorIs(t, err, auth.ErrKeyNotFound)
}
