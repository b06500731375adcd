package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/library"
)

// DefaultAuditRetentionDays applies when a cleanup task carries no retention.
const DefaultAuditRetentionDays = 90

// AvailabilityChecker compares book availability flags with open loans and
// optionally rewrites the flags that disagree.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context) ([]library.AvailabilityDrift, error)
	RepairAvailability(ctx context.Context) ([]library.AvailabilityDrift, error)
}

// MaintenanceLogger records the outcome of a maintenance run.
type MaintenanceLogger interface {
	LogMaintenance(actor audit.Actor, action string, drifted, repaired int, err error)
}

// AuditEventCleaner deletes audit events older than a retention window.
type AuditEventCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// maintenanceQueue is the shared queue setup of the maintenance tasks: a few
// retries, and task data kept only for failures.
func maintenanceQueue(name string, backoff, timeout time.Duration) backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        name,
		MaxAttempts: 3,
		Backoff:     backoff,
		Timeout:     timeout,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CheckAvailabilityTask verifies that every book's availability flag matches
// the loan ledger. With Repair set, drifted flags are recomputed.
type CheckAvailabilityTask struct {
	Repair bool `json:"repair"`
}

func (t CheckAvailabilityTask) Config() backlite.QueueConfig {
	return maintenanceQueue("check_availability", time.Minute, 5*time.Minute)
}

// CheckAvailabilityProcessor creates a processor function for CheckAvailabilityTask.
// auditLog may be nil.
func CheckAvailabilityProcessor(checker AvailabilityChecker, auditLog MaintenanceLogger) backlite.QueueProcessor[CheckAvailabilityTask] {
	return func(ctx context.Context, task CheckAvailabilityTask) error {
		if checker == nil {
			return errors.New("availability checker not configured")
		}

		action, run := "availability_check", checker.CheckAvailability
		if task.Repair {
			action, run = "availability_repair", checker.RepairAvailability
		}

		drift, err := run(ctx)
		repaired := 0
		if task.Repair && err == nil {
			repaired = len(drift)
		}
		if auditLog != nil {
			auditLog.LogMaintenance(audit.Actor{}, action, len(drift), repaired, err)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", action, err)
		}

		switch {
		case len(drift) == 0:
			log.Printf("[TASK] Availability flags match the loan ledger")
		case task.Repair:
			log.Printf("[TASK] Repaired availability of %d book(s)", repaired)
		default:
			for _, d := range drift {
				log.Printf("[TASK] Book %d (%q) flagged available=%t, ledger says %t", d.BookID, d.Title, d.Flagged, d.Expected)
			}
			log.Printf("[TASK] %d book(s) out of sync; run with repair to fix", len(drift))
		}
		return nil
	}
}

func NewCheckAvailabilityQueue(checker AvailabilityChecker, auditLog MaintenanceLogger) backlite.Queue {
	return backlite.NewQueue(CheckAvailabilityProcessor(checker, auditLog))
}

// CleanupAuditEventsTask prunes the audit trail. Loans and catalog rows are
// never touched; only their audit events age out.
type CleanupAuditEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return maintenanceQueue("cleanup_audit_events", 5*time.Minute, 2*time.Minute)
}

func (t CleanupAuditEventsTask) retention() (int, time.Duration) {
	days := t.RetentionDays
	if days <= 0 {
		days = DefaultAuditRetentionDays
	}
	return days, time.Duration(days) * 24 * time.Hour
}

// CleanupAuditEventsProcessor creates a processor function for CleanupAuditEventsTask.
func CleanupAuditEventsProcessor(cleaner AuditEventCleaner) backlite.QueueProcessor[CleanupAuditEventsTask] {
	return func(ctx context.Context, task CleanupAuditEventsTask) error {
		if cleaner == nil {
			return errors.New("audit event cleaner not configured")
		}

		days, retention := task.retention()
		deleted, err := cleaner.DeleteOldEvents(retention)
		if err != nil {
			return fmt.Errorf("cleanup audit events: %w", err)
		}

		log.Printf("[TASK] Removed %d audit event(s) older than %d days", deleted, days)
		return nil
	}
}

func NewCleanupAuditEventsQueue(cleaner AuditEventCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupAuditEventsProcessor(cleaner))
}
