package repository

import (
	"context"
	"time"

	"capsule-backend/internal/models"
)

// CapsuleStore persists capsule records. The store assigns ids; ids are never
// reused. Reads observe the process's own writes.
type CapsuleStore interface {
	Create(ctx context.Context, capsule *models.Capsule) (string, error)
	GetByID(ctx context.Context, id string) (*models.Capsule, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Capsule, error)
	ListByRecipient(ctx context.Context, email string) ([]*models.Capsule, error)
}

// NotificationStore is the durable registry of scheduled notifications. It is
// the sole source of truth for pending work; state transitions go through
// record-level compare-and-set so multiple scheduler instances are safe.
type NotificationStore interface {
	// Create persists a PENDING notification. Inserting a second record for
	// the same (capsule_id, kind) is a no-op, which is what makes retries and
	// duplicate sweeps dedupe cleanly.
	Create(ctx context.Context, n *models.ScheduledNotification) error
	// ListDue returns PENDING notifications with fire_at <= now, including
	// ones that became overdue while the process was down.
	ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledNotification, error)
	// Claim atomically transitions PENDING -> FIRING. It returns false when
	// the record was already claimed by another sweeper.
	Claim(ctx context.Context, id string) (bool, error)
	// Release transitions FIRING -> PENDING so a later sweep retries the
	// record. Used when a claim cannot proceed for reasons short of dispatch
	// exhaustion.
	Release(ctx context.Context, id string) error
	// ReclaimStale returns FIRING records last touched before cutoff to
	// PENDING and reports how many it moved. A process that dies between
	// claim and send leaves its record FIRING; this is how that work gets
	// back into rotation instead of being lost.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int, error)
	// MarkFired transitions FIRING -> FIRED (terminal).
	MarkFired(ctx context.Context, id string) error
	// MarkFailed transitions FIRING -> FAILED (terminal, manual retry only)
	// and records the attempt count.
	MarkFailed(ctx context.Context, id string, attempts int) error
	// ListByCapsule returns all notifications for one capsule.
	ListByCapsule(ctx context.Context, capsuleID string) ([]*models.ScheduledNotification, error)
}
