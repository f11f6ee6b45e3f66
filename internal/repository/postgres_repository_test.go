package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	repo, err := NewPostgres(ctx, &Credentials{
		Host:     host,
		Port:     port.Int(),
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.RunMigrations("./migrations"))
	return repo
}

func TestPostgres_CheckoutFlow(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	addLine(t, repo, 1, 1, 2)
	addLine(t, repo, 1, 1, 1)
	addLine(t, repo, 1, 4, 1)

	order, err := repo.CreateOrder(ctx, newOrderInput(t, repo, 1))
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260501-0001", order.OrderNumber)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 3, order.Items[0].Quantity)

	items, err := repo.ListCartItems(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, items)

	updated, err := repo.ApplyStatusChange(ctx, domain.StatusChange{
		OrderID: order.ID, FromStatus: domain.OrderStatusPending, ToStatus: domain.OrderStatusConfirmed,
		FromPayment: domain.PaymentStatusPending, ToPayment: domain.PaymentStatusPending,
		At: time.Now(), SetConfirmedAt: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, updated.Status)
	assert.NotNil(t, updated.ConfirmedAt)

	active, err := repo.ListOrdersByUser(ctx, 1, domain.OrderFilterActive, 10, 0)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
