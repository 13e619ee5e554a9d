package services

import (
	"time"

	"capsule-backend/internal/models"
)

// IsUnlocked reports whether a capsule's content is visible at the given
// instant. The comparison is inclusive: at exactly the unlock date the capsule
// is unlocked. This is the single unlock computation in the codebase; every
// read surface must go through it (or through RenderCapsule) so all surfaces
// agree near the boundary.
func IsUnlocked(capsule *models.Capsule, now time.Time) bool {
	return !now.Before(capsule.UnlockDate)
}

// CapsuleView is the time-gated projection of a capsule returned to read
// surfaces. While locked, only the fields a recipient may see before the
// unlock instant are populated.
type CapsuleView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SenderName  string    `json:"sender_name"`
	UnlockDate  time.Time `json:"unlock_date"`
	Unlocked    bool      `json:"unlocked"`

	// Populated only when unlocked.
	Message        string                  `json:"message,omitempty"`
	RecipientName  string                  `json:"recipient_name,omitempty"`
	RecipientEmail string                  `json:"recipient_email,omitempty"`
	Images         []models.MediaReference `json:"images,omitempty"`
	Videos         []models.MediaReference `json:"videos,omitempty"`
	Audios         []models.MediaReference `json:"audios,omitempty"`
	CreatedAt      time.Time               `json:"created_at,omitempty"`
}

// RenderCapsule derives the locked or unlocked view of a capsule. Pure: no
// hidden state, no caching.
func RenderCapsule(capsule *models.Capsule, now time.Time) CapsuleView {
	view := CapsuleView{
		ID:          capsule.ID,
		Title:       capsule.Title,
		Description: capsule.Description,
		SenderName:  capsule.SenderName,
		UnlockDate:  capsule.UnlockDate,
	}

	if !IsUnlocked(capsule, now) {
		return view
	}

	view.Unlocked = true
	view.Message = capsule.Message
	view.RecipientName = capsule.RecipientName
	view.RecipientEmail = capsule.RecipientEmail
	view.Images = capsule.Images
	view.Videos = capsule.Videos
	view.Audios = capsule.Audios
	view.CreatedAt = capsule.CreatedAt
	return view
}
