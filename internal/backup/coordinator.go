package backup

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"emr-backup-sync/internal/logging"
)

// DefaultSameGenerationWindow is the divergence below which local and remote
// snapshots are treated as the same generation and the local side wins.
// Divergent devices inside this window silently prefer local; change the
// default only with product-owner sign-off.
const DefaultSameGenerationWindow = time.Hour

// DefaultErrorBackoff is the fixed delay after a failed background cycle.
const DefaultErrorBackoff = 60 * time.Second

// DefaultStopTimeout bounds the join when stopping the background loop.
const DefaultStopTimeout = 10 * time.Second

// CoordinatorConfig configures the cloud backup coordinator
type CoordinatorConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Password             string        `yaml:"password"`
	SameGenerationWindow time.Duration `yaml:"same_generation_window"`
	ErrorBackoff         time.Duration `yaml:"error_backoff"`
	StopTimeout          time.Duration `yaml:"stop_timeout"`
}

// setDefaults fills zero-valued durations
func (cc *CoordinatorConfig) setDefaults() {
	if cc.SameGenerationWindow <= 0 {
		cc.SameGenerationWindow = DefaultSameGenerationWindow
	}
	if cc.ErrorBackoff <= 0 {
		cc.ErrorBackoff = DefaultErrorBackoff
	}
	if cc.StopTimeout <= 0 {
		cc.StopTimeout = DefaultStopTimeout
	}
}

// Coordinator owns conflict detection and resolution, the background sync
// loop, and quota polling. SyncState is mutated only under its lock and
// rebuilt on every process start.
type Coordinator struct {
	orchestrator *Orchestrator
	archiver     *Archiver
	logger       *logging.Logger
	metrics      *MetricsCollector
	config       CoordinatorConfig
	resolver     ConflictResolver

	mu    sync.Mutex
	state SyncState

	loopMu sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCoordinator creates a Coordinator
func NewCoordinator(orchestrator *Orchestrator, archiver *Archiver, logger *logging.Logger, metrics *MetricsCollector, config CoordinatorConfig) (*Coordinator, error) {
	if orchestrator == nil {
		return nil, NewConfigurationError("sync orchestrator is required", nil)
	}
	if archiver == nil {
		return nil, NewConfigurationError("backup archiver is required", nil)
	}
	config.setDefaults()

	return &Coordinator{
		orchestrator: orchestrator,
		archiver:     archiver,
		logger:       logger,
		metrics:      metrics,
		config:       config,
	}, nil
}

// SetResolver registers the callback consulted when local and remote
// snapshots diverge by at least the same-generation window.
func (c *Coordinator) SetResolver(resolver ConflictResolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolver = resolver
}

// State returns a copy of the current sync state
func (c *Coordinator) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SyncNow performs one full sync cycle: resolve conflicts, transfer per the
// resolution, update state. It returns false without mutating state when a
// sync is already running, and an error when sync is disabled or the cycle
// fails. Syncing is never left true, on any path.
func (c *Coordinator) SyncNow(ctx context.Context, password string) (bool, error) {
	c.mu.Lock()
	if c.state.Syncing {
		c.mu.Unlock()
		return false, nil
	}
	if !c.config.Enabled {
		c.mu.Unlock()
		return false, NewConfigurationError("cloud sync is disabled or unconfigured", nil)
	}
	c.state.Syncing = true
	c.mu.Unlock()

	start := time.Now()
	resolution, err := c.runSync(ctx, password)

	c.mu.Lock()
	c.state.Syncing = false
	c.state.LastSyncTime = time.Now()
	c.state.LastSyncSuccess = err == nil
	if err != nil {
		c.state.LastError = err.Error()
	} else {
		c.state.LastError = ""
	}
	c.mu.Unlock()

	if err == nil {
		c.refreshQuota(ctx)
	}

	if c.logger != nil {
		c.logger.LogSyncCycle(string(resolution), time.Since(start), err)
	}
	if c.metrics != nil {
		c.metrics.RecordSync(time.Since(start), err == nil)
	}

	return err == nil, err
}

// runSync resolves the conflict and performs the chosen transfer
func (c *Coordinator) runSync(ctx context.Context, password string) (Resolution, error) {
	local, err := c.newestLocal()
	if err != nil {
		return ResolutionNone, err
	}
	remote, err := c.newestRemote(ctx)
	if err != nil {
		return ResolutionNone, err
	}

	resolution := c.resolveConflict(local, remote)

	switch resolution {
	case ResolutionLocal:
		return resolution, c.orchestrator.SyncToCloud(ctx, local.Location, password)

	case ResolutionCloud, ResolutionBoth:
		// "both" keeps the local copy and downloads the remote one
		// alongside it for manual review; nothing is merged.
		_, err := c.orchestrator.RestoreFromCloud(ctx, remote.Key, password)
		return resolution, err

	default:
		return resolution, nil
	}
}

// newestLocal returns the most recent local backup record, or nil
func (c *Coordinator) newestLocal() (*Record, error) {
	records, err := c.archiver.ListBackups()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// newestRemote returns the most recent remote archive, or nil
func (c *Coordinator) newestRemote(ctx context.Context) (*ObjectInfo, error) {
	objects, err := c.orchestrator.ListCloudBackups(ctx)
	if err != nil {
		return nil, err
	}

	var newest *ObjectInfo
	var newestTime time.Time
	for i := range objects {
		ts := remoteTimestamp(&objects[i])
		if newest == nil || ts.After(newestTime) {
			newest = &objects[i]
			newestTime = ts
		}
	}
	return newest, nil
}

// remoteTimestamp prefers the filename-embedded timestamp over the
// backend's modification time.
func remoteTimestamp(obj *ObjectInfo) time.Time {
	if ts, err := ParseArchiveTimestamp(path.Base(obj.Key)); err == nil {
		return ts
	}
	return obj.LastModified
}

// resolveConflict chooses a whole snapshot given the newest record on each
// side. Snapshots within the same-generation window are treated as one
// generation and local wins. Beyond the window a registered resolver
// decides; absent one, the newer side wins.
func (c *Coordinator) resolveConflict(local *Record, remote *ObjectInfo) Resolution {
	if remote == nil && local == nil {
		return ResolutionNone
	}
	if remote == nil {
		return ResolutionLocal
	}
	if local == nil {
		return ResolutionCloud
	}

	remoteTime := remoteTimestamp(remote)
	delta := remoteTime.Sub(local.CreatedAt)
	if delta < 0 {
		delta = -delta
	}

	if delta < c.config.SameGenerationWindow {
		return ResolutionLocal
	}

	c.mu.Lock()
	resolver := c.resolver
	c.mu.Unlock()

	if resolver != nil {
		return resolver(
			ConflictSummary{
				Filename:     local.Filename,
				CreatedAt:    local.CreatedAt,
				SizeBytes:    local.SizeBytes,
				RecordCounts: local.RecordCounts,
			},
			ConflictSummary{
				Filename:  path.Base(remote.Key),
				CreatedAt: remoteTime,
				SizeBytes: remote.SizeBytes,
			},
		)
	}

	if remoteTime.After(local.CreatedAt) {
		return ResolutionCloud
	}
	return ResolutionLocal
}

// refreshQuota polls account storage consumption when the backend reports it
func (c *Coordinator) refreshQuota(ctx context.Context) {
	reporter, ok := c.orchestrator.backend.(QuotaReporter)
	if !ok {
		return
	}

	account, err := reporter.AccountInfo(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Warnf("quota refresh failed: %v", err)
		}
		return
	}

	c.mu.Lock()
	c.state.StorageUsed = account.StorageUsed
	c.state.StorageQuota = account.StorageQuota
	c.mu.Unlock()
}

// StartBackgroundSync launches the periodic sync loop. Each cycle checks
// the enabled state, runs SyncNow, then waits interruptibly for the next
// interval. A failed cycle is logged and followed by a fixed backoff; the
// loop itself never dies. Calling while already running is a no-op.
func (c *Coordinator) StartBackgroundSync(intervalHours int) error {
	if intervalHours <= 0 {
		return NewValidationError(fmt.Sprintf("sync interval must be positive, got %d", intervalHours), nil)
	}

	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.stopCh != nil {
		return nil
	}

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.runLoop(time.Duration(intervalHours)*time.Hour, c.stopCh, c.doneCh)

	return nil
}

// StopBackgroundSync signals the loop and joins it with a bounded timeout.
// It is idempotent.
func (c *Coordinator) StopBackgroundSync() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.stopCh == nil {
		return
	}

	close(c.stopCh)
	select {
	case <-c.doneCh:
	case <-time.After(c.config.StopTimeout):
		if c.logger != nil {
			c.logger.Warn("background sync loop did not stop within timeout")
		}
	}

	c.stopCh = nil
	c.doneCh = nil
}

// runLoop is the background sync loop body
func (c *Coordinator) runLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		failed := c.runCycle()

		wait := interval
		if failed {
			wait = c.config.ErrorBackoff
		}

		c.mu.Lock()
		c.state.NextSyncTime = time.Now().Add(wait)
		c.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-stop:
			return
		}
	}
}

// runCycle runs one loop iteration, containing any panic or error so the
// loop survives. The only failure signal is the state's LastError.
func (c *Coordinator) runCycle() (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			failed = true
			if c.logger != nil {
				c.logger.Errorf("background sync cycle panicked: %v", r)
			}
			c.mu.Lock()
			c.state.Syncing = false
			c.state.LastSyncSuccess = false
			c.state.LastError = fmt.Sprintf("panic: %v", r)
			c.mu.Unlock()
		}
	}()

	if !c.config.Enabled {
		return false
	}

	if _, err := c.SyncNow(context.Background(), c.config.Password); err != nil {
		if c.logger != nil {
			c.logger.Errorf("background sync cycle failed: %v", err)
		}
		return true
	}
	return false
}
