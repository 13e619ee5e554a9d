package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"capsule-backend/internal/apperr"
	"capsule-backend/internal/models"
)

// CapsuleRepository handles database operations for capsules
type CapsuleRepository struct {
	db *pgxpool.Pool
}

// NewCapsuleRepository creates a new capsule repository
func NewCapsuleRepository(db *pgxpool.Pool) *CapsuleRepository {
	return &CapsuleRepository{db: db}
}

// Create inserts a capsule and returns the store-assigned id.
func (r *CapsuleRepository) Create(ctx context.Context, capsule *models.Capsule) (string, error) {
	id := uuid.New().String()

	images, videos, audios, err := marshalMedia(capsule)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO capsules (
			id, owner_id, title, description, message,
			sender_name, recipient_name, recipient_email, recipient_phone,
			images, videos, audios, unlock_date, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.Exec(ctx, query,
		id, capsule.OwnerID, capsule.Title, capsule.Description, capsule.Message,
		capsule.SenderName, capsule.RecipientName, capsule.RecipientEmail, capsule.RecipientPhone,
		images, videos, audios, capsule.UnlockDate, capsule.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create capsule: %v", apperr.ErrPersistence, err)
	}

	capsule.ID = id
	return id, nil
}

// GetByID retrieves a capsule by ID
func (r *CapsuleRepository) GetByID(ctx context.Context, id string) (*models.Capsule, error) {
	query := selectCapsule + ` WHERE id = $1`

	capsule, err := scanCapsule(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("capsule %s", id)
		}
		return nil, fmt.Errorf("failed to get capsule: %w", err)
	}
	return capsule, nil
}

// ListByOwner retrieves capsules created by a user, newest first.
func (r *CapsuleRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Capsule, error) {
	query := selectCapsule + ` WHERE owner_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, ownerID)
}

// ListByRecipient retrieves capsules addressed to an email, newest first.
func (r *CapsuleRepository) ListByRecipient(ctx context.Context, email string) ([]*models.Capsule, error) {
	query := selectCapsule + ` WHERE recipient_email = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, email)
}

const selectCapsule = `
	SELECT id, owner_id, title, description, message,
	       sender_name, recipient_name, recipient_email, recipient_phone,
	       images, videos, audios, unlock_date, created_at
	FROM capsules`

func (r *CapsuleRepository) list(ctx context.Context, query string, arg interface{}) ([]*models.Capsule, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list capsules: %w", err)
	}
	defer rows.Close()

	var capsules []*models.Capsule
	for rows.Next() {
		capsule, err := scanCapsule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capsule: %w", err)
		}
		capsules = append(capsules, capsule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating capsules: %w", err)
	}
	return capsules, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCapsule(row rowScanner) (*models.Capsule, error) {
	var (
		c                      models.Capsule
		images, videos, audios []byte
	)

	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Title, &c.Description, &c.Message,
		&c.SenderName, &c.RecipientName, &c.RecipientEmail, &c.RecipientPhone,
		&images, &videos, &audios, &c.UnlockDate, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(images, &c.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}
	if err := json.Unmarshal(videos, &c.Videos); err != nil {
		return nil, fmt.Errorf("failed to decode videos: %w", err)
	}
	if err := json.Unmarshal(audios, &c.Audios); err != nil {
		return nil, fmt.Errorf("failed to decode audios: %w", err)
	}
	return &c, nil
}

func marshalMedia(c *models.Capsule) (images, videos, audios []byte, err error) {
	if images, err = json.Marshal(orEmpty(c.Images)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode images: %w", err)
	}
	if videos, err = json.Marshal(orEmpty(c.Videos)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode videos: %w", err)
	}
	if audios, err = json.Marshal(orEmpty(c.Audios)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode audios: %w", err)
	}
	return images, videos, audios, nil
}

func orEmpty(refs []models.MediaReference) []models.MediaReference {
	if refs == nil {
		return []models.MediaReference{}
	}
	return refs
}
