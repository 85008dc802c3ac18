package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "mppchs/pkg/domain"
	audit "mppchs/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, audit.NewEvent(1, audit.ActionDraftCreated, 7, "", now)))
	require.NoError(t, store.Append(ctx, audit.NewEvent(2, audit.ActionDraftCreated, 8, "", now)))
	require.NoError(t, store.Append(ctx, audit.NewEvent(1, audit.ActionSubmitted, 7, "", now.Add(time.Minute))))

	t.Run("lists entries for one request in order", func(t *testing.T) {
		events, err := store.ListByChangeRequest(ctx, id.ChangeRequestID(1))
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, audit.ActionDraftCreated, events[0].Action)
		assert.Equal(t, audit.ActionSubmitted, events[1].Action)
	})

	t.Run("checkpoint restore drops later appends", func(t *testing.T) {
		restore := store.Checkpoint()
		require.NoError(t, store.Append(ctx, audit.NewEvent(1, audit.ActionApproved, 99, "", now)))
		restore()

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("item action tag", func(t *testing.T) {
		assert.Equal(t, audit.Action("item_rejected"), audit.ItemAction("rejected"))
	})
}
