package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"capsule-backend/internal/apperr"
	"capsule-backend/internal/models"
)

// MemoryCapsuleStore is an in-memory implementation of CapsuleStore. It is
// safe for concurrent use and mirrors the Postgres store's semantics,
// including store-assigned ids and read-your-writes.
type MemoryCapsuleStore struct {
	mu       sync.RWMutex
	capsules map[string]*models.Capsule

	// FailCreate makes Create return a persistence error, to simulate a store
	// write failure after successful uploads.
	FailCreate bool

	// FailGet makes GetByID return a persistence error, to simulate a
	// transient read failure for a capsule that exists.
	FailGet bool
}

// NewMemoryCapsuleStore creates an empty in-memory capsule store.
func NewMemoryCapsuleStore() *MemoryCapsuleStore {
	return &MemoryCapsuleStore{capsules: make(map[string]*models.Capsule)}
}

// Create assigns an id and stores a copy of the capsule.
func (m *MemoryCapsuleStore) Create(ctx context.Context, capsule *models.Capsule) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate {
		return "", apperr.ErrPersistence
	}

	id := uuid.New().String()
	stored := *capsule
	stored.ID = id
	m.capsules[id] = &stored
	capsule.ID = id
	return id, nil
}

// GetByID returns the capsule or a not-found error.
func (m *MemoryCapsuleStore) GetByID(ctx context.Context, id string) (*models.Capsule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailGet {
		return nil, apperr.ErrPersistence
	}

	capsule, ok := m.capsules[id]
	if !ok {
		return nil, apperr.NotFound("capsule %s", id)
	}
	copied := *capsule
	return &copied, nil
}

// ListByOwner returns capsules created by ownerID, newest first.
func (m *MemoryCapsuleStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.Capsule, error) {
	return m.filter(func(c *models.Capsule) bool { return c.OwnerID == ownerID }), nil
}

// ListByRecipient returns capsules addressed to email, newest first.
func (m *MemoryCapsuleStore) ListByRecipient(ctx context.Context, email string) ([]*models.Capsule, error) {
	return m.filter(func(c *models.Capsule) bool { return c.RecipientEmail == email }), nil
}

func (m *MemoryCapsuleStore) filter(keep func(*models.Capsule) bool) []*models.Capsule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Capsule
	for _, c := range m.capsules {
		if keep(c) {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Len reports how many capsules are stored.
func (m *MemoryCapsuleStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.capsules)
}

// MemoryNotificationStore is an in-memory implementation of NotificationStore
// with the same record-level compare-and-set semantics as the Postgres store.
type MemoryNotificationStore struct {
	mu            sync.Mutex
	notifications map[string]*models.ScheduledNotification
	byCapsuleKind map[string]string // "capsuleID/kind" -> id

	// Now supplies record timestamps; defaults to time.Now. Tests point it at
	// a stub clock so lease expiry can be driven without sleeping.
	Now func() time.Time
}

// NewMemoryNotificationStore creates an empty in-memory notification store.
func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{
		notifications: make(map[string]*models.ScheduledNotification),
		byCapsuleKind: make(map[string]string),
	}
}

func dedupeKey(capsuleID string, kind models.NotificationKind) string {
	return capsuleID + "/" + string(kind)
}

func (m *MemoryNotificationStore) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// Create stores a PENDING notification; duplicates per (capsule, kind) are
// dropped.
func (m *MemoryNotificationStore) Create(ctx context.Context, n *models.ScheduledNotification) error {
	// Mirror the database driver: a cancelled context fails the write.
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := dedupeKey(n.CapsuleID, n.Kind)
	if _, exists := m.byCapsuleKind[key]; exists {
		return nil
	}

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.Status = models.StatusPending
	now := m.now()
	n.CreatedAt = now
	n.UpdatedAt = now

	stored := *n
	m.notifications[n.ID] = &stored
	m.byCapsuleKind[key] = n.ID
	return nil
}

// ListDue returns PENDING notifications with fire_at <= now, oldest first.
func (m *MemoryNotificationStore) ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*models.ScheduledNotification
	for _, n := range m.notifications {
		if n.Status == models.StatusPending && !n.FireAt.After(now) {
			copied := *n
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })
	return due, nil
}

// Claim transitions PENDING -> FIRING; false when already claimed.
func (m *MemoryNotificationStore) Claim(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok || n.Status != models.StatusPending {
		return false, nil
	}
	n.Status = models.StatusFiring
	n.UpdatedAt = m.now()
	return true, nil
}

// Release transitions FIRING -> PENDING so a later sweep retries the record.
func (m *MemoryNotificationStore) Release(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok || n.Status != models.StatusFiring {
		return apperr.NotFound("notification %s in FIRING state", id)
	}
	n.Status = models.StatusPending
	n.UpdatedAt = m.now()
	return nil
}

// ReclaimStale returns FIRING records last touched before cutoff to PENDING.
func (m *MemoryNotificationStore) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reclaimed := 0
	for _, n := range m.notifications {
		if n.Status == models.StatusFiring && n.UpdatedAt.Before(cutoff) {
			n.Status = models.StatusPending
			n.UpdatedAt = m.now()
			reclaimed++
		}
	}
	return reclaimed, nil
}

// MarkFired transitions FIRING -> FIRED.
func (m *MemoryNotificationStore) MarkFired(ctx context.Context, id string) error {
	return m.finish(id, models.StatusFired, -1)
}

// MarkFailed transitions FIRING -> FAILED.
func (m *MemoryNotificationStore) MarkFailed(ctx context.Context, id string, attempts int) error {
	return m.finish(id, models.StatusFailed, attempts)
}

func (m *MemoryNotificationStore) finish(id string, status models.NotificationStatus, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok || n.Status != models.StatusFiring {
		return apperr.NotFound("notification %s in FIRING state", id)
	}
	n.Status = status
	if attempts >= 0 {
		n.Attempts = attempts
	} else {
		n.Attempts++
	}
	n.UpdatedAt = m.now()
	return nil
}

// ListByCapsule returns all notifications recorded for a capsule.
func (m *MemoryNotificationStore) ListByCapsule(ctx context.Context, capsuleID string) ([]*models.ScheduledNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.ScheduledNotification
	for _, n := range m.notifications {
		if n.CapsuleID == capsuleID {
			copied := *n
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
