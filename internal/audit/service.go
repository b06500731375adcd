package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/entities"
)

// Actor identifies who triggered an audited operation and through which
// request. The zero value is a system actor.
type Actor struct {
	UserID    uint
	RequestID string
	IPAddress string
	UserAgent string
}

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(event); err != nil {
			log.Printf("Failed to log audit event %s/%s: %v", event.EventType, event.Action, err)
		}
	}()
}

// Wait blocks until every event queued by LogAsync has been written.
func (s *Service) Wait() {
	s.pending.Wait()
}

func newEvent(actor Actor, eventType entities.AuditEventType, action string) *entities.AuditEvent {
	return &entities.AuditEvent{
		UserID:    actor.UserID,
		EventType: eventType,
		Action:    action,
		RequestID: actor.RequestID,
		IPAddress: actor.IPAddress,
		UserAgent: truncate(actor.UserAgent, 500),
		Status:    entities.AuditStatusSuccess,
	}
}

func withError(event *entities.AuditEvent, err error) *entities.AuditEvent {
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	return event
}

func withMetadata(event *entities.AuditEvent, metadata map[string]any) *entities.AuditEvent {
	if b, err := json.Marshal(metadata); err == nil {
		event.Metadata = string(b)
	}
	return event
}

// LogBorrow records a borrow attempt. On failure borrowing is nil and the
// book and username the caller asked for are kept in the metadata.
func (s *Service) LogBorrow(actor Actor, bookID uint, username string, borrowing *entities.Borrowing, err error) {
	event := newEvent(actor, entities.AuditEventLoan, "borrow")
	event.EntityType = "borrowing"
	event.Description = fmt.Sprintf("Borrow book #%d", bookID)
	if username != "" {
		event.Description += " for " + username
	}
	if borrowing != nil {
		event.EntityID = &borrowing.ID
	}
	withMetadata(event, map[string]any{"book_id": bookID, "username": username})
	s.LogAsync(withError(event, err))
}

// LogReturn records a return attempt.
func (s *Service) LogReturn(actor Actor, borrowingID uint, err error) {
	event := newEvent(actor, entities.AuditEventLoan, "return")
	event.EntityType = "borrowing"
	event.EntityID = &borrowingID
	event.Description = fmt.Sprintf("Return borrowing #%d", borrowingID)
	s.LogAsync(withError(event, err))
}

// LogCatalog records a book create or update. A create that failed has no
// book ID yet.
func (s *Service) LogCatalog(actor Actor, action string, book *entities.Book, err error) {
	event := newEvent(actor, entities.AuditEventCatalog, action)
	event.EntityType = "book"
	if book != nil {
		if book.ID != 0 {
			event.EntityID = &book.ID
		}
		event.Description = truncate(fmt.Sprintf("%s %q (ISBN %s)", action, book.Title, book.ISBN), 500)
		withMetadata(event, map[string]any{"available": book.Available})
	}
	s.LogAsync(withError(event, err))
}

// LogRegistry records a borrower create or update.
func (s *Service) LogRegistry(actor Actor, action string, borrower *entities.Borrower, err error) {
	event := newEvent(actor, entities.AuditEventRegistry, action)
	event.EntityType = "borrower"
	if borrower != nil {
		if borrower.ID != 0 {
			event.EntityID = &borrower.ID
		}
		event.Description = truncate(fmt.Sprintf("%s %q", action, borrower.Name), 500)
		withMetadata(event, map[string]any{"user_id": borrower.UserID})
	}
	s.LogAsync(withError(event, err))
}

// LogDelete records a deletion event.
func (s *Service) LogDelete(actor Actor, entityType string, entityID uint, err error) {
	event := newEvent(actor, entities.AuditEventDelete, entityType+"_delete")
	event.EntityType = entityType
	event.EntityID = &entityID
	event.Description = fmt.Sprintf("Delete %s #%d", entityType, entityID)
	s.LogAsync(withError(event, err))
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(userID uint, action string, ipAddr, userAgent string, success bool) {
	event := newEvent(Actor{UserID: userID, IPAddress: ipAddr, UserAgent: userAgent}, entities.AuditEventAuth, action)
	if !success {
		event.Status = entities.AuditStatusFailed
	}
	s.LogAsync(event)
}

// LogMaintenance records an availability check or repair run.
func (s *Service) LogMaintenance(actor Actor, action string, drifted, repaired int, err error) {
	event := newEvent(actor, entities.AuditEventMaintenance, action)
	event.EntityType = "book"
	event.Description = fmt.Sprintf("%d book(s) out of sync, %d repaired", drifted, repaired)
	withMetadata(event, map[string]any{"drifted": drifted, "repaired": repaired})
	s.LogAsync(withError(event, err))
}

// GetEvents retrieves a filtered page of audit events.
func (s *Service) GetEvents(filter audit.EventFilter) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(filter)
}

// GetEvent retrieves one audit event.
func (s *Service) GetEvent(id uint) (*entities.AuditEvent, error) {
	return s.repo.GetEventByID(id)
}

// GetRequestTrail returns every event recorded for one request.
func (s *Service) GetRequestTrail(requestID string) ([]entities.AuditEvent, error) {
	return s.repo.GetEventsByRequestID(requestID)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
