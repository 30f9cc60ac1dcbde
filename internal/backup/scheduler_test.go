package backup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticOracle is a ChangeOracle with a fixed answer
type staticOracle bool

func (so staticOracle) HasChangesSince(time.Time) bool { return bool(so) }

func newTestScheduler(t *testing.T, oracle ChangeOracle, config SchedulerConfig) (*Scheduler, *Archiver) {
	t.Helper()
	archiver, _, _, _ := newTestArchiver(t)

	scheduler, err := NewScheduler(archiver, oracle, nil, nil, config)
	require.NoError(t, err)
	return scheduler, archiver
}

func TestNewScheduler_Validation(t *testing.T) {
	archiver, _, _, _ := newTestArchiver(t)

	_, err := NewScheduler(nil, nil, nil, nil, SchedulerConfig{})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeConfiguration))

	_, err = NewScheduler(archiver, nil, nil, nil, SchedulerConfig{FrequencyHours: 7})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeValidation))

	// Zero frequency takes the default
	scheduler, err := NewScheduler(archiver, nil, nil, nil, SchedulerConfig{})
	require.NoError(t, err)
	assert.Equal(t, 24, scheduler.State().FrequencyHours)
}

func TestScheduler_SetFrequency(t *testing.T) {
	scheduler, _ := newTestScheduler(t, nil, SchedulerConfig{Enabled: true})

	for _, hours := range ValidFrequencies {
		require.NoError(t, scheduler.SetFrequency(hours))
		assert.Equal(t, hours, scheduler.State().FrequencyHours)
	}

	err := scheduler.SetFrequency(3)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrorTypeValidation))
	// Rejected frequency leaves the state alone
	assert.Equal(t, 24, scheduler.State().FrequencyHours)
}

func TestScheduler_SetFrequency_RecomputesNextDue(t *testing.T) {
	scheduler, _ := newTestScheduler(t, nil, SchedulerConfig{Enabled: true})

	last := time.Now().Add(-30 * time.Minute)
	scheduler.mu.Lock()
	scheduler.state.LastBackupTime = last
	scheduler.mu.Unlock()

	require.NoError(t, scheduler.SetFrequency(1))
	assert.WithinDuration(t, last.Add(time.Hour), scheduler.State().NextBackupTime, time.Second)
}

func TestScheduler_ShouldBackup(t *testing.T) {
	scheduler, _ := newTestScheduler(t, nil, SchedulerConfig{Enabled: true, FrequencyHours: 1})

	// Not due yet
	assert.False(t, scheduler.shouldBackup(time.Now()))

	// Due once the scheduled time passes
	assert.True(t, scheduler.shouldBackup(time.Now().Add(2*time.Hour)))

	scheduler.SetEnabled(false)
	assert.False(t, scheduler.shouldBackup(time.Now().Add(2*time.Hour)))
}

func TestScheduler_RunBackup_ProducesArchive(t *testing.T) {
	scheduler, archiver := newTestScheduler(t, staticOracle(true), SchedulerConfig{Enabled: true})

	require.NoError(t, scheduler.runBackup(context.Background(), false))

	records, err := archiver.ListBackups()
	require.NoError(t, err)
	assert.Len(t, records, 1)

	state := scheduler.State()
	assert.False(t, state.BackupInProgress)
	assert.False(t, state.LastBackupTime.IsZero())
	assert.True(t, state.NextBackupTime.After(state.LastBackupTime))
}

func TestScheduler_RunBackup_SkipsUnchangedDataset(t *testing.T) {
	scheduler, archiver := newTestScheduler(t, staticOracle(false), SchedulerConfig{Enabled: true, FrequencyHours: 1})

	// Prime a last backup so the oracle is consulted
	last := time.Now().Add(-2 * time.Hour)
	scheduler.mu.Lock()
	scheduler.state.LastBackupTime = last
	scheduler.mu.Unlock()
	before := scheduler.State().NextBackupTime

	require.NoError(t, scheduler.runBackup(context.Background(), false))

	// No archive produced, but the due time still advanced
	records, err := archiver.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.True(t, scheduler.State().NextBackupTime.After(before))
	assert.Equal(t, last.Unix(), scheduler.State().LastBackupTime.Unix())
}

func TestScheduler_RunBackup_EnforcesRetention(t *testing.T) {
	scheduler, archiver := newTestScheduler(t, nil, SchedulerConfig{Enabled: true, MaxBackups: 2})
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.Local)

	for i := 0; i < 3; i++ {
		writeFakeArchive(t, archiver.BackupDir(), base.Add(time.Duration(i)*time.Hour), false)
	}

	require.NoError(t, scheduler.runBackup(context.Background(), false))

	records, err := archiver.ListBackups()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestScheduler_BackupOnClose(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		scheduler, archiver := newTestScheduler(t, nil, SchedulerConfig{Enabled: false})
		require.NoError(t, scheduler.BackupOnClose(context.Background()))

		records, err := archiver.ListBackups()
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("recent backup suppresses it", func(t *testing.T) {
		scheduler, archiver := newTestScheduler(t, nil, SchedulerConfig{Enabled: true})
		scheduler.mu.Lock()
		scheduler.state.LastBackupTime = time.Now().Add(-5 * time.Minute)
		scheduler.mu.Unlock()

		require.NoError(t, scheduler.BackupOnClose(context.Background()))

		records, err := archiver.ListBackups()
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("stale last backup runs one", func(t *testing.T) {
		scheduler, archiver := newTestScheduler(t, staticOracle(true), SchedulerConfig{Enabled: true})
		scheduler.mu.Lock()
		scheduler.state.LastBackupTime = time.Now().Add(-2 * time.Hour)
		scheduler.mu.Unlock()

		require.NoError(t, scheduler.BackupOnClose(context.Background()))

		records, err := archiver.ListBackups()
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler, _ := newTestScheduler(t, nil, SchedulerConfig{Enabled: true})

	scheduler.Start()
	// Second start is a no-op
	scheduler.Start()

	scheduler.Stop()
	// Stop is idempotent
	scheduler.Stop()
	assert.False(t, scheduler.State().BackupInProgress)
}
