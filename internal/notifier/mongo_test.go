package notifier

import (
	"context"
	"testing"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupInbox(t *testing.T) *Inbox {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)
	return NewInbox(db)
}

func TestInbox_StoresUnreadNotifications(t *testing.T) {
	inbox := setupInbox(t)
	ctx := context.Background()

	require.NoError(t, inbox.Notify(ctx, testEvent(domain.EventOrderCreated, domain.OrderStatusPending)))
	require.NoError(t, inbox.Notify(ctx, testEvent(domain.EventOrderStatusChanged, domain.OrderStatusConfirmed)))

	unread, err := inbox.Unread(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "ORD-20260501-0001", unread[0].OrderNumber)
	assert.Equal(t, "33.90", unread[0].Total)

	require.NoError(t, inbox.MarkRead(ctx, unread[0].ID))
	unread, err = inbox.Unread(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	assert.ErrorIs(t, inbox.MarkRead(ctx, "missing"), domain.ErrNotFound)
}
