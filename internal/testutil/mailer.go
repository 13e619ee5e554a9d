package testutil

import (
	"context"
	"fmt"
	"sync"
)

// SentMail records one delivered email.
type SentMail struct {
	To      string
	Subject string
	Body    string
}

// RecordingMailer is a Mailer that records sends instead of speaking SMTP.
// Safe for concurrent use.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []SentMail

	// FailAll makes every Send report dispatch exhaustion.
	FailAll bool
}

// NewRecordingMailer creates an empty recording mailer.
func NewRecordingMailer() *RecordingMailer {
	return &RecordingMailer{}
}

func (m *RecordingMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAll {
		return fmt.Errorf("simulated dispatch failure to %s", to)
	}
	m.sent = append(m.sent, SentMail{To: to, Subject: subject, Body: body})
	return nil
}

// Sent returns a copy of everything delivered so far.
func (m *RecordingMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMail, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentCount reports how many emails were delivered.
func (m *RecordingMailer) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
