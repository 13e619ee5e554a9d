package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"capsule-backend/internal/apperr"
	"capsule-backend/internal/models"
	"capsule-backend/internal/repository"
)

// FiringLease bounds how long a claimed notification may sit in FIRING. A
// sweeper that dies between claim and send never finishes the transition, so
// any record still FIRING past the lease is returned to PENDING and retried.
// The lease only has to outlast the slowest honest send, retries included.
const FiringLease = 5 * time.Minute

// Scheduler owns every ScheduledNotification state transition. Registration
// persists a PENDING record — the sole source of truth, so pending work
// survives process restarts — and a periodic sweep claims and fires whatever
// is due, including work that became overdue while the process was down.
type Scheduler struct {
	notifications repository.NotificationStore
	capsules      repository.CapsuleStore
	mailer        Mailer
	clock         Clock
	interval      time.Duration
	workers       int
	baseURL       string
	kick          chan struct{}
}

// NewScheduler creates a new scheduler
func NewScheduler(
	notifications repository.NotificationStore,
	capsules repository.CapsuleStore,
	mailer Mailer,
	clock Clock,
	interval time.Duration,
	workers int,
	baseURL string,
) *Scheduler {
	return &Scheduler{
		notifications: notifications,
		capsules:      capsules,
		mailer:        mailer,
		clock:         clock,
		interval:      interval,
		workers:       workers,
		baseURL:       baseURL,
		kick:          make(chan struct{}, 1),
	}
}

// Register persists a PENDING notification for the capsule. Registering the
// same (capsule, kind) twice is a no-op.
func (s *Scheduler) Register(ctx context.Context, capsuleID string, kind models.NotificationKind, fireAt time.Time) error {
	n := &models.ScheduledNotification{
		CapsuleID: capsuleID,
		Kind:      kind,
		FireAt:    fireAt.UTC(),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to register %s notification for capsule %s: %w", kind, capsuleID, err)
	}
	return nil
}

// Kick asks the run loop for an early sweep. Non-blocking; a pending kick is
// enough.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run sweeps on the configured interval until the context is cancelled. The
// first sweep happens immediately, which is what recovers overdue
// notifications after a restart.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", s.interval).
		Int("workers", s.workers).
		Msg("Starting notification scheduler")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("Notification sweep failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Notification scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
		case <-s.kick:
		}
	}
}

// Sweep fires every due PENDING notification. Each notification is claimed
// with a compare-and-set before dispatch, so concurrent sweepers (or a second
// instance) never double-send a successfully claimed record. Dispatches run
// on a bounded worker pool; one slow send cannot stall the rest.
func (s *Scheduler) Sweep(ctx context.Context) error {
	now := s.clock.Now().UTC()

	reclaimed, err := s.notifications.ReclaimStale(ctx, now.Add(-FiringLease))
	if err != nil {
		return fmt.Errorf("failed to reclaim stale notifications: %w", err)
	}
	if reclaimed > 0 {
		log.Warn().Int("count", reclaimed).Msg("Reclaimed notifications stranded in FIRING")
	}

	due, err := s.notifications.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due notifications: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	log.Info().Int("count", len(due)).Time("now", now).Msg("Processing due notifications")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, n := range due {
		n := n
		g.Go(func() error {
			s.fire(ctx, n)
			// Per-notification failures are isolated; they must not halt the
			// sweep for other capsules.
			return nil
		})
	}
	return g.Wait()
}

// fire claims one notification and dispatches it. Claim-then-send gives
// at-most-one in-flight send per notification; delivery overall is
// at-least-once.
func (s *Scheduler) fire(ctx context.Context, n *models.ScheduledNotification) {
	claimed, err := s.notifications.Claim(ctx, n.ID)
	if err != nil {
		log.Error().Err(err).Str("notification_id", n.ID).Msg("Failed to claim notification")
		return
	}
	if !claimed {
		// Another sweeper got it first.
		return
	}

	capsule, err := s.capsules.GetByID(ctx, n.CapsuleID)
	if err != nil {
		log.Error().Err(err).
			Str("notification_id", n.ID).
			Str("capsule_id", n.CapsuleID).
			Msg("Failed to load capsule for notification")
		if apperr.IsNotFound(err) {
			// Dangling record; no capsule will ever appear for it.
			s.markFailed(ctx, n)
			return
		}
		// Transient store failure. The dispatcher never ran, so hand the
		// claim back instead of burning the record.
		s.release(ctx, n)
		return
	}

	subject, body := s.composeEmail(capsule, n.Kind)
	if err := s.mailer.Send(ctx, capsule.RecipientEmail, subject, body); err != nil {
		log.Error().Err(err).
			Str("notification_id", n.ID).
			Str("capsule_id", n.CapsuleID).
			Str("kind", string(n.Kind)).
			Msg("Notification dispatch exhausted")
		s.markFailed(ctx, n)
		return
	}

	if err := s.notifications.MarkFired(ctx, n.ID); err != nil {
		// The email went out but the state update failed; a later sweep may
		// send a duplicate. Tolerable collateral of at-least-once.
		log.Error().Err(err).Str("notification_id", n.ID).Msg("Failed to mark notification fired")
		return
	}

	log.Info().
		Str("notification_id", n.ID).
		Str("capsule_id", n.CapsuleID).
		Str("kind", string(n.Kind)).
		Msg("Notification fired")
}

func (s *Scheduler) release(ctx context.Context, n *models.ScheduledNotification) {
	if err := s.notifications.Release(ctx, n.ID); err != nil {
		// The record stays FIRING until the lease reclaims it.
		log.Error().Err(err).Str("notification_id", n.ID).Msg("Failed to release notification claim")
	}
}

func (s *Scheduler) markFailed(ctx context.Context, n *models.ScheduledNotification) {
	if err := s.notifications.MarkFailed(ctx, n.ID, n.Attempts+1); err != nil {
		log.Error().Err(err).Str("notification_id", n.ID).Msg("Failed to mark notification failed")
	}
}

func (s *Scheduler) composeEmail(capsule *models.Capsule, kind models.NotificationKind) (subject, body string) {
	link := fmt.Sprintf("%s/view-capsule/%s", s.baseURL, capsule.ID)

	switch kind {
	case models.NotificationCreation:
		subject = fmt.Sprintf("You have received a time capsule from %s", capsule.SenderName)
		body = fmt.Sprintf(
			"You have received a time capsule from %s. You can unlock it on %s. Here is the link:\n%s",
			capsule.SenderName,
			capsule.UnlockDate.Format(time.RFC1123),
			link,
		)
	case models.NotificationUnlock:
		subject = fmt.Sprintf("Time capsule unlocked from %s", capsule.SenderName)
		body = fmt.Sprintf(
			"Your time capsule from %s has been unlocked. Here is the link:\n%s\n\nEnjoy!!",
			capsule.SenderName,
			link,
		)
	}
	return subject, body
}
