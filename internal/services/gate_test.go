package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"capsule-backend/internal/models"
	"capsule-backend/internal/services"
)

func testCapsule(unlock time.Time) *models.Capsule {
	return &models.Capsule{
		ID:             "cap-1",
		OwnerID:        "owner-1",
		Title:          "Graduation",
		Description:    "Open when you graduate",
		Message:        "We are so proud of you",
		SenderName:     "Mom",
		RecipientName:  "Alex",
		RecipientEmail: "alex@example.com",
		Images: []models.MediaReference{
			{Key: "images/photo.jpg-1748700000000", Kind: models.KindImage, ContentType: "image/jpeg"},
		},
		UnlockDate: unlock,
		CreatedAt:  unlock.Add(-24 * time.Hour),
	}
}

func TestIsUnlocked(t *testing.T) {
	unlock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	capsule := testCapsule(unlock)

	t.Run("locked before unlock date", func(t *testing.T) {
		assert.False(t, services.IsUnlocked(capsule, unlock.Add(-time.Second)))
	})

	t.Run("unlocked exactly at unlock date", func(t *testing.T) {
		assert.True(t, services.IsUnlocked(capsule, unlock))
	})

	t.Run("unlocked after unlock date", func(t *testing.T) {
		assert.True(t, services.IsUnlocked(capsule, unlock.Add(time.Second)))
	})

	t.Run("unlock is monotonic", func(t *testing.T) {
		// Once unlocked at t1, the capsule stays unlocked at every t2 >= t1.
		times := []time.Time{
			unlock.Add(-time.Hour),
			unlock.Add(-time.Nanosecond),
			unlock,
			unlock.Add(time.Millisecond),
			unlock.Add(24 * time.Hour),
			unlock.Add(365 * 24 * time.Hour),
		}
		for i := 1; i < len(times); i++ {
			if services.IsUnlocked(capsule, times[i-1]) {
				assert.True(t, services.IsUnlocked(capsule, times[i]),
					"unlocked at %v but locked at later %v", times[i-1], times[i])
			}
		}
	})
}

func TestRenderCapsule(t *testing.T) {
	unlock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	capsule := testCapsule(unlock)

	t.Run("locked view hides message and media", func(t *testing.T) {
		view := services.RenderCapsule(capsule, unlock.Add(-time.Minute))

		assert.False(t, view.Unlocked)
		assert.Equal(t, "cap-1", view.ID)
		assert.Equal(t, "Graduation", view.Title)
		assert.Equal(t, "Open when you graduate", view.Description)
		assert.Equal(t, "Mom", view.SenderName)
		assert.Equal(t, unlock, view.UnlockDate)

		assert.Empty(t, view.Message)
		assert.Empty(t, view.RecipientEmail)
		assert.Empty(t, view.Images)
		assert.Empty(t, view.Videos)
		assert.Empty(t, view.Audios)
	})

	t.Run("unlocked view exposes full content", func(t *testing.T) {
		view := services.RenderCapsule(capsule, unlock)

		assert.True(t, view.Unlocked)
		assert.Equal(t, "We are so proud of you", view.Message)
		assert.Equal(t, "alex@example.com", view.RecipientEmail)
		assert.Len(t, view.Images, 1)
		assert.Equal(t, "images/photo.jpg-1748700000000", view.Images[0].Key)
	})

	t.Run("render is pure", func(t *testing.T) {
		now := unlock.Add(time.Hour)
		first := services.RenderCapsule(capsule, now)
		second := services.RenderCapsule(capsule, now)
		assert.Equal(t, first, second)
	})
}
