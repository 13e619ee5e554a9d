package models

import "time"

// MediaKind classifies an uploaded file by the form field it arrived on.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
)

// Folder returns the storage folder for this kind of media.
func (k MediaKind) Folder() string {
	switch k {
	case KindImage:
		return "images"
	case KindVideo:
		return "videos"
	case KindAudio:
		return "audios"
	}
	return ""
}

// MediaReference points at one stored object belonging to a capsule.
type MediaReference struct {
	Key         string    `json:"key"`
	Kind        MediaKind `json:"kind"`
	ContentType string    `json:"content_type"`
}

// Capsule represents a persisted time capsule. The unlock date is set once at
// creation and never changes; media slices preserve upload order.
type Capsule struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"owner_id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Message        string           `json:"message"`
	SenderName     string           `json:"sender_name"`
	RecipientName  string           `json:"recipient_name"`
	RecipientEmail string           `json:"recipient_email"`
	RecipientPhone string           `json:"recipient_phone"`
	Images         []MediaReference `json:"images"`
	Videos         []MediaReference `json:"videos"`
	Audios         []MediaReference `json:"audios"`
	UnlockDate     time.Time        `json:"unlock_date"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NotificationKind distinguishes the two emails a capsule produces.
type NotificationKind string

const (
	NotificationCreation NotificationKind = "creation"
	NotificationUnlock   NotificationKind = "unlock"
)

// NotificationStatus is the state of a scheduled notification.
type NotificationStatus string

const (
	StatusPending NotificationStatus = "PENDING"
	StatusFiring  NotificationStatus = "FIRING"
	StatusFired   NotificationStatus = "FIRED"
	StatusFailed  NotificationStatus = "FAILED"
)

// ScheduledNotification is a durable record of an email that must go out at
// FireAt. Rows are unique per (capsule_id, kind) and are kept after firing as
// an audit/dedupe record.
type ScheduledNotification struct {
	ID        string             `json:"id"`
	CapsuleID string             `json:"capsule_id"`
	Kind      NotificationKind   `json:"kind"`
	FireAt    time.Time          `json:"fire_at"`
	Status    NotificationStatus `json:"status"`
	Attempts  int                `json:"attempts"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}
