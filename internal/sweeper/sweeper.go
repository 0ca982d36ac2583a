// Package sweeper enforces message lifetime: it hard-deletes expired rows
// and old soft-deleted rows, then records what it did.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// SoftDeleteRetention is how long a soft-deleted row lingers before it is
// purged for good.
const SoftDeleteRetention = 7 * 24 * time.Hour

// EventMessageDeletion is the event_type written to the audit log.
const EventMessageDeletion = "message_deletion"

// Store is the slice of the database the sweeper needs. Each method is a
// single statement.
type Store interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	PurgeSoftDeleted(ctx context.Context, cutoff time.Time) (int64, error)
	AppendAudit(ctx context.Context, entry *AuditEntry) error
}

// AuditEntry is one row of deletion_logs.
type AuditEntry struct {
	EventType        string
	DeletedCount     int64
	SoftDeletedCount int64
	ExecutedAt       time.Time
	Success          bool
	Error            string
}

// Report summarizes one run.
type Report struct {
	Expired     int64
	SoftDeleted int64
	RanAt       time.Time
	Success     bool
}

type Sweeper struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Sweeper {
	return &Sweeper{store: store, now: time.Now}
}

// Run executes one sweep. A failed step is logged and the next one still
// runs; nothing is retried. The returned error joins every step failure.
// An audit write failure is logged but never returned.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	now := s.now().UTC()
	report := Report{RanAt: now}
	log := logrus.WithField("ran_at", now.Format(time.RFC3339))

	var errs []error

	expired, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		log.WithError(err).Error("❌ Sweep: expired step failed")
		errs = append(errs, fmt.Errorf("delete expired: %w", err))
	} else {
		report.Expired = expired
	}

	cutoff := now.Add(-SoftDeleteRetention)
	purged, err := s.store.PurgeSoftDeleted(ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("❌ Sweep: soft-delete step failed")
		errs = append(errs, fmt.Errorf("purge soft-deleted: %w", err))
	} else {
		report.SoftDeleted = purged
	}

	runErr := errors.Join(errs...)
	report.Success = runErr == nil

	entry := &AuditEntry{
		EventType:        EventMessageDeletion,
		DeletedCount:     report.Expired,
		SoftDeletedCount: report.SoftDeleted,
		ExecutedAt:       now,
		Success:          report.Success,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		log.WithError(err).Warn("sweep audit entry not written")
	}

	observe(report)
	log.WithFields(logrus.Fields{
		"expired":      humanize.Comma(report.Expired),
		"soft_deleted": humanize.Comma(report.SoftDeleted),
		"success":      report.Success,
	}).Info("🧹 Sweep finished")

	return report, runErr
}
