package services

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"capsule-backend/internal/apperr"
	"capsule-backend/internal/models"
	"capsule-backend/internal/repository"
	"capsule-backend/internal/storage"
)

// Limits are the server-side ingestion constraints. Client-side checks are
// advisory only; these are authoritative.
type Limits struct {
	MaxFileSizeBytes int64
	MaxFilesPerKind  int
}

// FileUpload is one submitted media file. Open must return a fresh reader on
// every call so uploads can run in parallel.
type FileUpload struct {
	Kind         models.MediaKind
	Name         string
	Size         int64
	DeclaredType string
	Open         func() (io.ReadCloser, error)
}

// SubmitRequest carries the metadata fields of a capsule submission.
type SubmitRequest struct {
	Title          string
	Description    string
	Message        string
	SenderName     string
	RecipientName  string
	RecipientEmail string
	RecipientPhone string
	UnlockDate     time.Time
}

// NotificationScheduler is the slice of the scheduler the ingestion pipeline
// needs: durable registration plus a nudge so a freshly registered
// creation-kind notification goes out without waiting a full sweep interval.
type NotificationScheduler interface {
	Register(ctx context.Context, capsuleID string, kind models.NotificationKind, fireAt time.Time) error
	Kick()
}

// CapsuleService is the ingestion pipeline: it validates a submission, uploads
// all media, writes the capsule record as one atomic step, and registers the
// creation and unlock notifications.
type CapsuleService struct {
	capsules  repository.CapsuleStore
	objects   storage.ObjectStore
	scheduler NotificationScheduler
	limits    Limits
	clock     Clock
}

// NewCapsuleService creates a new capsule service
func NewCapsuleService(
	capsules repository.CapsuleStore,
	objects storage.ObjectStore,
	scheduler NotificationScheduler,
	limits Limits,
	clock Clock,
) *CapsuleService {
	return &CapsuleService{
		capsules:  capsules,
		objects:   objects,
		scheduler: scheduler,
		limits:    limits,
		clock:     clock,
	}
}

// allowedContentTypes is the per-kind allow-list for declared upload types.
// A declared type not on the list falls back to the kind default.
var allowedContentTypes = map[models.MediaKind]map[string]bool{
	models.KindImage: {"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true},
	models.KindVideo: {"video/mp4": true, "video/quicktime": true, "video/webm": true},
	models.KindAudio: {"audio/mpeg": true, "audio/mp4": true, "audio/wav": true, "audio/ogg": true},
}

// ResolveContentType picks the stored content type for an upload: the
// declared type when it is on the kind's allow-list, otherwise the kind
// default (image/jpeg, video/mp4, and for audio audio/mp4 when the filename
// ends in .m4a, else audio/mpeg).
func ResolveContentType(kind models.MediaKind, filename, declared string) string {
	if allowedContentTypes[kind][declared] {
		return declared
	}
	switch kind {
	case models.KindImage:
		return "image/jpeg"
	case models.KindVideo:
		return "video/mp4"
	case models.KindAudio:
		if len(filename) >= 4 && filename[len(filename)-4:] == ".m4a" {
			return "audio/mp4"
		}
		return "audio/mpeg"
	}
	return "application/octet-stream"
}

// StorageKey builds the globally unique object key for an upload:
// <kind-folder>/<originalName>-<creationEpochMillis>.
func StorageKey(kind models.MediaKind, filename string, createdAt time.Time) string {
	return kind.Folder() + "/" + filename + "-" + strconv.FormatInt(createdAt.UnixMilli(), 10)
}

// SubmitCapsule runs the whole ingestion pipeline. It is all-or-nothing at its
// own boundary: any upload failure aborts the submission before the record is
// written, and a record-write failure leaves only unreferenced orphans in
// storage. Notification side effects are best-effort and never roll back a
// persisted capsule.
func (s *CapsuleService) SubmitCapsule(ctx context.Context, ownerID string, req SubmitRequest, files []FileUpload) (*models.Capsule, error) {
	if err := s.validate(ownerID, req, files); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()

	// Resolve keys and content types up front; all keys of one submission
	// share the creation epoch.
	refs := make([]models.MediaReference, len(files))
	for i, f := range files {
		refs[i] = models.MediaReference{
			Key:         StorageKey(f.Kind, f.Name, now),
			Kind:        f.Kind,
			ContentType: ResolveContentType(f.Kind, f.Name, f.DeclaredType),
		}
	}

	if err := s.uploadAll(ctx, files, refs); err != nil {
		return nil, err
	}

	capsule := &models.Capsule{
		OwnerID:        ownerID,
		Title:          req.Title,
		Description:    req.Description,
		Message:        req.Message,
		SenderName:     req.SenderName,
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
		RecipientPhone: req.RecipientPhone,
		UnlockDate:     req.UnlockDate.UTC(),
		CreatedAt:      now,
	}
	for _, ref := range refs {
		switch ref.Kind {
		case models.KindImage:
			capsule.Images = append(capsule.Images, ref)
		case models.KindVideo:
			capsule.Videos = append(capsule.Videos, ref)
		case models.KindAudio:
			capsule.Audios = append(capsule.Audios, ref)
		}
	}

	id, err := s.capsules.Create(ctx, capsule)
	if err != nil {
		// Uploaded objects are orphans now. Log their keys for the
		// out-of-band reconciliation sweep; they are referenced by no record.
		keys := make([]string, len(refs))
		for i, ref := range refs {
			keys[i] = ref.Key
		}
		log.Error().
			Err(err).
			Strs("orphaned_keys", keys).
			Msg("Capsule record write failed after uploads")
		return nil, fmt.Errorf("failed to persist capsule: %w", err)
	}

	s.registerNotifications(ctx, id, capsule.UnlockDate, now)

	log.Info().
		Str("capsule_id", id).
		Str("owner_id", ownerID).
		Int("files", len(files)).
		Time("unlock_date", capsule.UnlockDate).
		Msg("Capsule created")

	return capsule, nil
}

func (s *CapsuleService) validate(ownerID string, req SubmitRequest, files []FileUpload) error {
	required := map[string]string{
		"ownerId":        ownerID,
		"title":          req.Title,
		"description":    req.Description,
		"senderName":     req.SenderName,
		"recipientName":  req.RecipientName,
		"recipientEmail": req.RecipientEmail,
		"recipientPhone": req.RecipientPhone,
	}
	for field, value := range required {
		if value == "" {
			return apperr.Validation("missing required field %q", field)
		}
	}
	if req.UnlockDate.IsZero() {
		return apperr.Validation("missing required field %q", "unlockDate")
	}

	counts := map[models.MediaKind]int{}
	for _, f := range files {
		if f.Kind.Folder() == "" {
			return apperr.Validation("unsupported file kind %q", f.Kind)
		}
		counts[f.Kind]++
		if counts[f.Kind] > s.limits.MaxFilesPerKind {
			return apperr.Validation("too many %s files: limit is %d", f.Kind, s.limits.MaxFilesPerKind)
		}
		if f.Size > s.limits.MaxFileSizeBytes {
			return apperr.Validation("file %q exceeds size limit of %d bytes", f.Name, s.limits.MaxFileSizeBytes)
		}
	}
	return nil
}

// uploadAll uploads every file in parallel. The first failure cancels the
// rest and aborts the submission.
func (s *CapsuleService) uploadAll(ctx context.Context, files []FileUpload, refs []models.MediaReference) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range files {
		file, ref := files[i], refs[i]
		g.Go(func() error {
			body, err := file.Open()
			if err != nil {
				return fmt.Errorf("%w: failed to open %q: %v", apperr.ErrStorage, file.Name, err)
			}
			defer body.Close()

			if err := s.objects.Upload(ctx, ref.Key, ref.ContentType, body); err != nil {
				return fmt.Errorf("%w: upload of %q failed: %v", apperr.ErrStorage, file.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// registerNotifications records the creation confirmation (fires immediately)
// and the unlock notification (fires at the unlock date). Failures are logged
// and never propagate: the capsule is already persisted. For the same reason
// the writes are detached from request cancellation; a client hanging up
// after the record landed must not cost the recipient their unlock email.
func (s *CapsuleService) registerNotifications(ctx context.Context, capsuleID string, unlockDate, now time.Time) {
	ctx = context.WithoutCancel(ctx)
	if err := s.scheduler.Register(ctx, capsuleID, models.NotificationCreation, now); err != nil {
		log.Error().Err(err).Str("capsule_id", capsuleID).Msg("Failed to register creation notification")
	}
	if err := s.scheduler.Register(ctx, capsuleID, models.NotificationUnlock, unlockDate); err != nil {
		log.Error().Err(err).Str("capsule_id", capsuleID).Msg("Failed to register unlock notification")
	}
	s.scheduler.Kick()
}

// GetCapsule fetches one capsule by id.
func (s *CapsuleService) GetCapsule(ctx context.Context, id string) (*models.Capsule, error) {
	return s.capsules.GetByID(ctx, id)
}

// ListCreated returns capsules created by a user.
func (s *CapsuleService) ListCreated(ctx context.Context, ownerID string) ([]*models.Capsule, error) {
	return s.capsules.ListByOwner(ctx, ownerID)
}

// ListReceived returns capsules addressed to an email.
func (s *CapsuleService) ListReceived(ctx context.Context, email string) ([]*models.Capsule, error) {
	return s.capsules.ListByRecipient(ctx, email)
}

// PresignMedia returns a time-limited signed URL for one stored object.
func (s *CapsuleService) PresignMedia(ctx context.Context, key string) (string, error) {
	url, err := s.objects.PresignGet(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: presign of %q failed: %v", apperr.ErrStorage, key, err)
	}
	return url, nil
}
