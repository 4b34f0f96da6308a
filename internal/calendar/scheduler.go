package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/hostdesk/backend/internal/storage/models"
)

// PropertySyncer syncs properties. *SyncService implements it.
type PropertySyncer interface {
	SyncProperty(ctx context.Context, propertyID string, opts SyncOptions) (*models.SyncResult, error)
	SyncAll(ctx context.Context) ([]models.SyncResult, error)
}

// Scheduler runs SyncAll on a cron spec and serves manual triggers.
type Scheduler struct {
	cron    *cron.Cron
	syncer  PropertySyncer
	spec    string
	timeout time.Duration

	entryID cron.EntryID
	stopped bool
	mu      sync.RWMutex

	// in-flight manual triggers
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. An empty spec disables periodic syncs;
// manual triggers still work. timeout bounds a single run.
func NewScheduler(syncer PropertySyncer, spec string, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	logger := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		syncer:  syncer,
		spec:    spec,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start schedules the periodic job and starts the cron runner.
func (s *Scheduler) Start() error {
	if s.spec != "" {
		id, err := s.cron.AddFunc(s.spec, s.syncAll)
		if err != nil {
			return fmt.Errorf("scheduling sync %q: %w", s.spec, err)
		}
		s.mu.Lock()
		s.entryID = id
		s.mu.Unlock()
	}

	s.cron.Start()
	log.Info().Str("spec", s.spec).Msg("calendar sync scheduler started")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running syncs.
func (s *Scheduler) Stop() {
	log.Info().Msg("stopping calendar sync scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Info().Msg("calendar sync scheduler stopped")
}

// TriggerSync starts an immediate sync of one property in the background.
// It reports false once Stop has begun.
func (s *Scheduler) TriggerSync(propertyID string, force bool) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		log.Warn().Str("property_id", propertyID).Msg("scheduler stopping, sync trigger ignored")
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		if _, err := s.syncer.SyncProperty(ctx, propertyID, SyncOptions{Force: force}); err != nil &&
			!errors.Is(err, ErrNoActiveFeeds) {
			log.Error().Err(err).Str("property_id", propertyID).Msg("triggered sync failed")
		}
	}()
	return true
}

// NextRun returns the next scheduled run, or nil when periodic syncs are off.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entryID == 0 {
		return nil
	}
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() {
		return nil
	}
	return &entry.Next
}

func (s *Scheduler) syncAll() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	started := time.Now()
	results, err := s.syncer.SyncAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduled sync failed")
		return
	}

	failed := 0
	for _, r := range results {
		if r.Status == models.AuditStatusError {
			failed++
		}
	}
	log.Info().
		Int("properties", len(results)).
		Int("failed", failed).
		Dur("duration", time.Since(started)).
		Msg("scheduled sync finished")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
