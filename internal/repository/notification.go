package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"capsule-backend/internal/apperr"
	"capsule-backend/internal/models"
)

// NotificationRepository handles database operations for scheduled
// notifications. All state transitions are rows-affected compare-and-set
// statements so that concurrent sweepers on separate instances cannot both
// claim the same record.
type NotificationRepository struct {
	db *pgxpool.Pool
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create persists a PENDING notification. The (capsule_id, kind) unique
// constraint makes re-registration a no-op.
func (r *NotificationRepository) Create(ctx context.Context, n *models.ScheduledNotification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.Status = models.StatusPending
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	query := `
		INSERT INTO scheduled_notifications (id, capsule_id, kind, fire_at, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (capsule_id, kind) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		n.ID, n.CapsuleID, n.Kind, n.FireAt, n.Status, n.Attempts, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to create notification: %v", apperr.ErrPersistence, err)
	}
	return nil
}

// ListDue returns PENDING notifications whose fire_at has passed.
func (r *NotificationRepository) ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledNotification, error) {
	query := selectNotification + ` WHERE status = $1 AND fire_at <= $2 ORDER BY fire_at`
	return r.list(ctx, query, models.StatusPending, now)
}

// Claim transitions PENDING -> FIRING. Returns false when another sweeper got
// there first.
func (r *NotificationRepository) Claim(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.Exec(ctx, query, models.StatusFiring, time.Now().UTC(), id, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Release transitions FIRING -> PENDING so a later sweep retries the record.
func (r *NotificationRepository) Release(ctx context.Context, id string) error {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.Exec(ctx, query, models.StatusPending, time.Now().UTC(), id, models.StatusFiring)
	if err != nil {
		return fmt.Errorf("failed to release notification %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %s is not in FIRING state", id)
	}
	return nil
}

// ReclaimStale returns FIRING records last touched before cutoff to PENDING.
// Claim stamps updated_at, so a record still FIRING past the lease window
// belongs to a sweeper that died mid-flight.
func (r *NotificationRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4
	`
	result, err := r.db.Exec(ctx, query, models.StatusPending, time.Now().UTC(), models.StatusFiring, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale notifications: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// MarkFired transitions FIRING -> FIRED.
func (r *NotificationRepository) MarkFired(ctx context.Context, id string) error {
	return r.finish(ctx, id, models.StatusFired, -1)
}

// MarkFailed transitions FIRING -> FAILED after dispatch exhaustion.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string, attempts int) error {
	return r.finish(ctx, id, models.StatusFailed, attempts)
}

func (r *NotificationRepository) finish(ctx context.Context, id string, status models.NotificationStatus, attempts int) error {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, attempts = CASE WHEN $2 >= 0 THEN $2 ELSE attempts + 1 END, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	result, err := r.db.Exec(ctx, query, status, attempts, time.Now().UTC(), id, models.StatusFiring)
	if err != nil {
		return fmt.Errorf("failed to update notification %s to %s: %w", id, status, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %s is not in FIRING state", id)
	}
	return nil
}

// ListByCapsule returns all notifications recorded for a capsule.
func (r *NotificationRepository) ListByCapsule(ctx context.Context, capsuleID string) ([]*models.ScheduledNotification, error) {
	query := selectNotification + ` WHERE capsule_id = $1 ORDER BY created_at`
	return r.list(ctx, query, capsuleID)
}

const selectNotification = `
	SELECT id, capsule_id, kind, fire_at, status, attempts, created_at, updated_at
	FROM scheduled_notifications`

func (r *NotificationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.ScheduledNotification, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.ScheduledNotification
	for rows.Next() {
		var n models.ScheduledNotification
		err := rows.Scan(&n.ID, &n.CapsuleID, &n.Kind, &n.FireAt, &n.Status, &n.Attempts, &n.CreatedAt, &n.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return notifications, nil
}

// GetByID retrieves a notification by ID
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.ScheduledNotification, error) {
	query := selectNotification + ` WHERE id = $1`
	var n models.ScheduledNotification
	err := r.db.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.CapsuleID, &n.Kind, &n.FireAt, &n.Status, &n.Attempts, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("notification %s", id)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}
