package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/library"
)

type fakeChecker struct {
	drift       []library.AvailabilityDrift
	err         error
	checkCalls  int
	repairCalls int
}

func (f *fakeChecker) CheckAvailability(ctx context.Context) ([]library.AvailabilityDrift, error) {
	f.checkCalls++
	return f.drift, f.err
}

func (f *fakeChecker) RepairAvailability(ctx context.Context) ([]library.AvailabilityDrift, error) {
	f.repairCalls++
	return f.drift, f.err
}

type maintenanceEntry struct {
	action   string
	drifted  int
	repaired int
	err      error
}

type fakeMaintenanceLog struct {
	entries []maintenanceEntry
}

func (f *fakeMaintenanceLog) LogMaintenance(actor audit.Actor, action string, drifted, repaired int, err error) {
	f.entries = append(f.entries, maintenanceEntry{action, drifted, repaired, err})
}

type fakeCleaner struct {
	retention time.Duration
	err       error
}

func (f *fakeCleaner) DeleteOldEvents(retention time.Duration) (int64, error) {
	f.retention = retention
	return 4, f.err
}

var twoDrifted = []library.AvailabilityDrift{
	{BookID: 1, Title: "Dune", Flagged: true, Expected: false},
	{BookID: 2, Title: "Emma", Flagged: false, Expected: true},
}

func TestCheckAvailabilityTaskConfig(t *testing.T) {
	cfg := CheckAvailabilityTask{}.Config()

	assert.Equal(t, "check_availability", cfg.Name)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
	assert.NotNil(t, cfg.Retention)
}

func TestCleanupAuditEventsTaskConfig(t *testing.T) {
	cfg := CleanupAuditEventsTask{}.Config()

	assert.Equal(t, "cleanup_audit_events", cfg.Name)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	require.NotNil(t, cfg.Retention)
	assert.True(t, cfg.Retention.Data.OnlyFailed)
}

func TestCheckAvailabilityProcessor(t *testing.T) {
	t.Run("check only", func(t *testing.T) {
		checker := &fakeChecker{drift: twoDrifted}
		logs := &fakeMaintenanceLog{}

		err := CheckAvailabilityProcessor(checker, logs)(context.Background(), CheckAvailabilityTask{})
		require.NoError(t, err)

		assert.Equal(t, 1, checker.checkCalls)
		assert.Zero(t, checker.repairCalls)
		require.Len(t, logs.entries, 1)
		assert.Equal(t, maintenanceEntry{"availability_check", 2, 0, nil}, logs.entries[0])
	})

	t.Run("repair", func(t *testing.T) {
		checker := &fakeChecker{drift: twoDrifted}
		logs := &fakeMaintenanceLog{}

		err := CheckAvailabilityProcessor(checker, logs)(context.Background(), CheckAvailabilityTask{Repair: true})
		require.NoError(t, err)

		assert.Zero(t, checker.checkCalls)
		assert.Equal(t, 1, checker.repairCalls)
		require.Len(t, logs.entries, 1)
		assert.Equal(t, maintenanceEntry{"availability_repair", 2, 2, nil}, logs.entries[0])
	})

	t.Run("store failure is returned and logged", func(t *testing.T) {
		boom := errors.New("database is locked")
		checker := &fakeChecker{err: boom}
		logs := &fakeMaintenanceLog{}

		err := CheckAvailabilityProcessor(checker, logs)(context.Background(), CheckAvailabilityTask{Repair: true})
		assert.ErrorIs(t, err, boom)
		require.Len(t, logs.entries, 1)
		assert.Equal(t, 0, logs.entries[0].repaired)
		assert.ErrorIs(t, logs.entries[0].err, boom)
	})

	t.Run("nil audit log", func(t *testing.T) {
		err := CheckAvailabilityProcessor(&fakeChecker{}, nil)(context.Background(), CheckAvailabilityTask{})
		assert.NoError(t, err)
	})

	t.Run("nil checker", func(t *testing.T) {
		err := CheckAvailabilityProcessor(nil, nil)(context.Background(), CheckAvailabilityTask{})
		assert.Error(t, err)
	})
}

func TestCleanupAuditEventsProcessor(t *testing.T) {
	t.Run("uses task retention", func(t *testing.T) {
		cleaner := &fakeCleaner{}
		err := CleanupAuditEventsProcessor(cleaner)(context.Background(), CleanupAuditEventsTask{RetentionDays: 14})
		require.NoError(t, err)
		assert.Equal(t, 14*24*time.Hour, cleaner.retention)
	})

	t.Run("defaults to the configured retention", func(t *testing.T) {
		cleaner := &fakeCleaner{}
		err := CleanupAuditEventsProcessor(cleaner)(context.Background(), CleanupAuditEventsTask{})
		require.NoError(t, err)
		assert.Equal(t, DefaultAuditRetentionDays*24*time.Hour, cleaner.retention)
	})

	t.Run("nil cleaner", func(t *testing.T) {
		assert.Error(t, CleanupAuditEventsProcessor(nil)(context.Background(), CleanupAuditEventsTask{}))
	})

	t.Run("propagates errors", func(t *testing.T) {
		err := CleanupAuditEventsProcessor(&fakeCleaner{err: errors.New("boom")})(context.Background(), CleanupAuditEventsTask{RetentionDays: 1})
		assert.Error(t, err)
	})
}
