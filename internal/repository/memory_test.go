package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capsule-backend/internal/apperr"
	"capsule-backend/internal/models"
	"capsule-backend/internal/repository"
)

func pendingNotification(t *testing.T, store *repository.MemoryNotificationStore, capsuleID string) *models.ScheduledNotification {
	t.Helper()
	n := &models.ScheduledNotification{
		CapsuleID: capsuleID,
		Kind:      models.NotificationUnlock,
		FireAt:    time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Create(context.Background(), n))
	return n
}

func TestMemoryCapsuleStore(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns unique ids and reads its own writes", func(t *testing.T) {
		store := repository.NewMemoryCapsuleStore()

		first, err := store.Create(ctx, &models.Capsule{OwnerID: "o1", Title: "a"})
		require.NoError(t, err)
		second, err := store.Create(ctx, &models.Capsule{OwnerID: "o1", Title: "b"})
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		got, err := store.GetByID(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, "a", got.Title)
	})

	t.Run("unknown id yields not found", func(t *testing.T) {
		store := repository.NewMemoryCapsuleStore()

		_, err := store.GetByID(ctx, "nope")
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("lists by owner and recipient", func(t *testing.T) {
		store := repository.NewMemoryCapsuleStore()

		_, err := store.Create(ctx, &models.Capsule{OwnerID: "o1", RecipientEmail: "a@example.com", CreatedAt: time.Now()})
		require.NoError(t, err)
		_, err = store.Create(ctx, &models.Capsule{OwnerID: "o2", RecipientEmail: "a@example.com", CreatedAt: time.Now().Add(time.Second)})
		require.NoError(t, err)

		created, err := store.ListByOwner(ctx, "o1")
		require.NoError(t, err)
		assert.Len(t, created, 1)

		received, err := store.ListByRecipient(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Len(t, received, 2)
	})

	t.Run("returned capsules are copies", func(t *testing.T) {
		store := repository.NewMemoryCapsuleStore()

		id, err := store.Create(ctx, &models.Capsule{OwnerID: "o1", Title: "original"})
		require.NoError(t, err)

		got, err := store.GetByID(ctx, id)
		require.NoError(t, err)
		got.Title = "mutated"

		again, err := store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "original", again.Title)
	})
}

func TestMemoryNotificationStore(t *testing.T) {
	ctx := context.Background()

	t.Run("claim is compare-and-set", func(t *testing.T) {
		store := repository.NewMemoryNotificationStore()
		n := pendingNotification(t, store, "cap-1")

		claimed, err := store.Claim(ctx, n.ID)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = store.Claim(ctx, n.ID)
		require.NoError(t, err)
		assert.False(t, claimed, "second claim must lose")
	})

	t.Run("concurrent claimers get exactly one winner", func(t *testing.T) {
		store := repository.NewMemoryNotificationStore()
		n := pendingNotification(t, store, "cap-1")

		const claimers = 16
		var wg sync.WaitGroup
		wins := make(chan bool, claimers)

		for i := 0; i < claimers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				claimed, err := store.Claim(ctx, n.ID)
				if err == nil && claimed {
					wins <- true
				}
			}()
		}
		wg.Wait()
		close(wins)

		won := 0
		for range wins {
			won++
		}
		assert.Equal(t, 1, won)
	})

	t.Run("duplicate create per capsule and kind is dropped", func(t *testing.T) {
		store := repository.NewMemoryNotificationStore()

		first := pendingNotification(t, store, "cap-1")
		second := &models.ScheduledNotification{
			CapsuleID: "cap-1",
			Kind:      models.NotificationUnlock,
			FireAt:    time.Now(),
		}
		require.NoError(t, store.Create(ctx, second))

		due, err := store.ListDue(ctx, time.Now())
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, first.ID, due[0].ID)
	})

	t.Run("fired notifications leave the due list but stay recorded", func(t *testing.T) {
		store := repository.NewMemoryNotificationStore()
		n := pendingNotification(t, store, "cap-1")

		claimed, err := store.Claim(ctx, n.ID)
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, store.MarkFired(ctx, n.ID))

		due, err := store.ListDue(ctx, time.Now())
		require.NoError(t, err)
		assert.Empty(t, due)

		all, err := store.ListByCapsule(ctx, "cap-1")
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, models.StatusFired, all[0].Status)
	})

	t.Run("terminal transitions require FIRING", func(t *testing.T) {
		store := repository.NewMemoryNotificationStore()
		n := pendingNotification(t, store, "cap-1")

		// Still PENDING: cannot be marked fired.
		err := store.MarkFired(ctx, n.ID)
		assert.Error(t, err)

		claimed, err := store.Claim(ctx, n.ID)
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, store.MarkFailed(ctx, n.ID, 3))

		all, err := store.ListByCapsule(ctx, "cap-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, all[0].Status)
		assert.Equal(t, 3, all[0].Attempts)

		// FAILED is terminal for the sweep.
		claimed, err = store.Claim(ctx, n.ID)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("release puts a claimed notification back in rotation", func(t *testing.T) {
		store := repository.NewMemoryNotificationStore()
		n := pendingNotification(t, store, "cap-1")

		claimed, err := store.Claim(ctx, n.ID)
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, store.Release(ctx, n.ID))

		due, err := store.ListDue(ctx, time.Now())
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, models.StatusPending, due[0].Status)

		// Release requires FIRING, same as the terminal transitions.
		assert.Error(t, store.Release(ctx, n.ID))
	})

	t.Run("reclaim touches only FIRING records older than the cutoff", func(t *testing.T) {
		store := repository.NewMemoryNotificationStore()
		now := time.Now()
		store.Now = func() time.Time { return now }

		stale := pendingNotification(t, store, "cap-1")
		fresh := &models.ScheduledNotification{
			CapsuleID: "cap-2",
			Kind:      models.NotificationUnlock,
			FireAt:    now.Add(-time.Minute),
		}
		require.NoError(t, store.Create(ctx, fresh))

		claimed, err := store.Claim(ctx, stale.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		// The second claim happens much later and is still inside its lease.
		now = now.Add(10 * time.Minute)
		claimed, err = store.Claim(ctx, fresh.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		reclaimed, err := store.ReclaimStale(ctx, now.Add(-5*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, reclaimed)

		all, err := store.ListByCapsule(ctx, "cap-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, all[0].Status)

		all, err = store.ListByCapsule(ctx, "cap-2")
		require.NoError(t, err)
		assert.Equal(t, models.StatusFiring, all[0].Status)
	})

	t.Run("overdue notifications are due", func(t *testing.T) {
		store := repository.NewMemoryNotificationStore()

		old := &models.ScheduledNotification{
			CapsuleID: "cap-1",
			Kind:      models.NotificationUnlock,
			FireAt:    time.Now().Add(-48 * time.Hour),
		}
		future := &models.ScheduledNotification{
			CapsuleID: "cap-2",
			Kind:      models.NotificationUnlock,
			FireAt:    time.Now().Add(time.Hour),
		}
		require.NoError(t, store.Create(ctx, old))
		require.NoError(t, store.Create(ctx, future))

		due, err := store.ListDue(ctx, time.Now())
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "cap-1", due[0].CapsuleID)
	})
}
