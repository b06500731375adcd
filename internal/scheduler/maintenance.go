package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/librarian/internal/tasks"
)

// Enqueuer hands tasks to the background queue.
type Enqueuer interface {
	Enqueue(tasks ...backlite.Task) ([]string, error)
}

// MaintenanceScheduler periodically enqueues the availability check and the
// audit log cleanup.
type MaintenanceScheduler struct {
	queue         Enqueuer
	schedule      string
	retentionDays int
	repair        bool

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether schedule is a five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := cronParser.Parse(schedule)
	return err
}

// NewMaintenanceScheduler creates a scheduler. With repair set, the nightly
// availability check also rewrites drifted flags.
func NewMaintenanceScheduler(queue Enqueuer, schedule string, retentionDays int, repair bool) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		queue:         queue,
		schedule:      schedule,
		retentionDays: retentionDays,
		repair:        repair,
		cron:          cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the maintenance job and starts the cron loop. It stops
// on its own when ctx is cancelled.
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if err := ValidateSchedule(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.schedule, err)
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunNow(); err != nil {
			log.Printf("Maintenance scheduler: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Maintenance scheduler: started with schedule '%s'. Next run: %v", s.schedule, s.nextRunLocked())

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for a running job and stops the scheduler.
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	log.Printf("Maintenance scheduler: stopped")
}

// RunNow enqueues one round of maintenance and returns the task IDs.
func (s *MaintenanceScheduler) RunNow() ([]string, error) {
	ids, err := s.queue.Enqueue(
		tasks.CheckAvailabilityTask{Repair: s.repair},
		tasks.CleanupAuditEventsTask{RetentionDays: s.retentionDays},
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue maintenance: %w", err)
	}
	log.Printf("Maintenance scheduler: enqueued %d task(s)", len(ids))
	return ids, nil
}

func (s *MaintenanceScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next run will occur, or nil when stopped.
func (s *MaintenanceScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	next := s.nextRunLocked()
	if next.IsZero() {
		return nil
	}
	return &next
}

func (s *MaintenanceScheduler) nextRunLocked() time.Time {
	if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
		return next
	}
	// The cron loop fills Entry.Next asynchronously after Start.
	sched, err := cronParser.Parse(s.schedule)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now())
}
