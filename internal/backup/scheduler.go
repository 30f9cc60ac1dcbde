package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"emr-backup-sync/internal/logging"
)

// closeBackupGrace suppresses the on-close backup when one completed recently
const closeBackupGrace = 30 * time.Minute

// schedulerTickInterval bounds how stale a due check can be
const schedulerTickInterval = time.Minute

// SchedulerConfig configures the local backup scheduler
type SchedulerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	FrequencyHours int    `yaml:"frequency_hours"`
	MaxBackups     int    `yaml:"max_backups"`
	Encrypt        bool   `yaml:"encrypt"`
	Password       string `yaml:"password"`
}

// setDefaults fills zero values with the standard policy
func (sc *SchedulerConfig) setDefaults() {
	if sc.FrequencyHours == 0 {
		sc.FrequencyHours = 24
	}
	if sc.MaxBackups == 0 {
		sc.MaxBackups = 10
	}
}

// Scheduler runs periodic local backups. It skips a due backup when the
// change oracle reports nothing new since the last one, still advancing the
// next due time, and performs a final synchronous backup on application
// close unless one ran recently.
type Scheduler struct {
	archiver *Archiver
	oracle   ChangeOracle
	logger   *logging.Logger
	metrics  *MetricsCollector
	config   SchedulerConfig

	mu    sync.Mutex
	state SchedulerState

	loopMu sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler creates a Scheduler
func NewScheduler(archiver *Archiver, oracle ChangeOracle, logger *logging.Logger, metrics *MetricsCollector, config SchedulerConfig) (*Scheduler, error) {
	if archiver == nil {
		return nil, NewConfigurationError("backup archiver is required", nil)
	}
	config.setDefaults()
	if !IsValidFrequency(config.FrequencyHours) {
		return nil, NewValidationError(fmt.Sprintf("unsupported backup frequency: %d hours", config.FrequencyHours), nil)
	}

	s := &Scheduler{
		archiver: archiver,
		oracle:   oracle,
		logger:   logger,
		metrics:  metrics,
		config:   config,
	}
	s.state.Enabled = config.Enabled
	s.state.FrequencyHours = config.FrequencyHours
	s.state.NextBackupTime = time.Now().Add(s.frequency())
	return s, nil
}

// State returns a copy of the current scheduler state
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetEnabled toggles scheduled backups without stopping the loop
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Enabled = enabled
}

// SetFrequency changes the backup cadence. Only the supported frequencies
// are accepted; the next due time is recomputed from the last backup.
func (s *Scheduler) SetFrequency(hours int) error {
	if !IsValidFrequency(hours) {
		return NewValidationError(fmt.Sprintf("unsupported backup frequency: %d hours", hours), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.FrequencyHours = hours
	base := s.state.LastBackupTime
	if base.IsZero() {
		base = time.Now()
	}
	s.state.NextBackupTime = base.Add(time.Duration(hours) * time.Hour)
	return nil
}

func (s *Scheduler) frequency() time.Duration {
	return time.Duration(s.state.FrequencyHours) * time.Hour
}

// shouldBackup reports whether a scheduled backup is due
func (s *Scheduler) shouldBackup(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Enabled && !s.state.BackupInProgress && !now.Before(s.state.NextBackupTime)
}

// TriggerBackup starts a manual backup on its own goroutine so callers are
// never blocked. A backup already in progress makes it a no-op.
func (s *Scheduler) TriggerBackup() {
	go func() {
		if err := s.runBackup(context.Background(), false); err != nil {
			if s.logger != nil {
				s.logger.Errorf("manual backup failed: %v", err)
			}
		}
	}()
}

// BackupOnClose performs a final synchronous backup during application
// shutdown. It is a no-op when the scheduler is disabled, a backup completed
// within the grace period, or nothing changed since the last backup.
func (s *Scheduler) BackupOnClose(ctx context.Context) error {
	s.mu.Lock()
	enabled := s.state.Enabled
	last := s.state.LastBackupTime
	s.mu.Unlock()

	if !enabled {
		return nil
	}
	if !last.IsZero() && time.Since(last) < closeBackupGrace {
		return nil
	}
	return s.runBackup(ctx, true)
}

// runBackup performs one backup cycle. With skipUnchanged consultation of
// the change oracle, an unchanged dataset advances the due time without
// producing an archive.
func (s *Scheduler) runBackup(ctx context.Context, onClose bool) error {
	s.mu.Lock()
	if s.state.BackupInProgress {
		s.mu.Unlock()
		return nil
	}
	s.state.BackupInProgress = true
	last := s.state.LastBackupTime
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.state.BackupInProgress = false
		s.mu.Unlock()
	}()

	if s.oracle != nil && !last.IsZero() && !s.oracle.HasChangesSince(last) {
		if s.logger != nil {
			s.logger.Debug("no changes since last backup, skipping")
		}
		s.advance(time.Now())
		return nil
	}

	start := time.Now()
	record, err := s.archiver.CreateBackup(ctx, s.config.Encrypt, s.config.Password)
	if s.metrics != nil {
		s.metrics.RecordBackup(time.Since(start), err == nil)
	}
	if err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	s.state.LastBackupTime = now
	s.mu.Unlock()
	s.advance(now)

	if !onClose {
		if _, err := s.archiver.CleanupOldBackups(s.config.MaxBackups); err != nil {
			if s.logger != nil {
				s.logger.Warnf("backup retention cleanup failed: %v", err)
			}
		}
	}

	if s.logger != nil {
		s.logger.Infof("scheduled backup complete: %s", record.Filename)
	}
	return nil
}

// advance moves the next due time one frequency past now
func (s *Scheduler) advance(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.NextBackupTime = now.Add(s.frequency())
}

// Start launches the scheduling loop. Calling while running is a no-op.
func (s *Scheduler) Start() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.stopCh != nil {
		return
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.runLoop(s.stopCh, s.doneCh)
}

// Stop signals the loop and waits for it to exit. It is idempotent.
func (s *Scheduler) Stop() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.stopCh == nil {
		return
	}

	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
	s.doneCh = nil
}

// runLoop checks for due backups once a minute
func (s *Scheduler) runLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(schedulerTickInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if s.shouldBackup(now) {
				if err := s.runBackup(context.Background(), false); err != nil {
					if s.logger != nil {
						s.logger.Errorf("scheduled backup failed: %v", err)
					}
					s.advance(time.Now())
				}
			}
		case <-stop:
			return
		}
	}
}
