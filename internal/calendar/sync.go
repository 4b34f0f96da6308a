package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hostdesk/backend/internal/storage"
	"github.com/hostdesk/backend/internal/storage/models"
)

// FeedFetcher downloads the body of a feed source.
type FeedFetcher interface {
	Fetch(ctx context.Context, source models.FeedSource) ([]byte, error)
}

// Notifier raises dashboard notifications.
type Notifier interface {
	Raise(ctx context.Context, kind, propertyID, title, message string) error
}

// SyncEvents receives live sync events.
type SyncEvents interface {
	BroadcastSyncCompleted(result *models.SyncResult)
	BroadcastSyncError(propertyID string, err error)
	BroadcastStagingCreated(propertyID string, records []models.StagingRecord)
}

// SyncOptions tunes a single property sync.
type SyncOptions struct {
	// Force reconciles even when the fingerprint is unchanged.
	Force bool
}

// SyncConfig bounds the concurrency of syncs.
type SyncConfig struct {
	MaxConcurrentFetches    int
	MaxConcurrentProperties int
}

// SyncService pulls every active feed of a property and stages the reservations.
type SyncService struct {
	db           *storage.DB
	feeds        *storage.FeedSourceRepository
	staging      *storage.StagingRepository
	fingerprints *storage.FingerprintRepository
	audits       *storage.AuditRepository
	fetcher      FeedFetcher
	parser       *Parser
	reconciler   *Reconciler
	locker       Locker
	notifier     Notifier
	events       SyncEvents
	cfg          SyncConfig
	now          func() time.Time
}

// NewSyncService creates a new calendar sync service.
func NewSyncService(
	db *storage.DB,
	fetcher FeedFetcher,
	parser *Parser,
	locker Locker,
	cfg SyncConfig,
) *SyncService {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 4
	}
	if cfg.MaxConcurrentProperties <= 0 {
		cfg.MaxConcurrentProperties = 2
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}

	return &SyncService{
		db:           db,
		feeds:        storage.NewFeedSourceRepository(db),
		staging:      storage.NewStagingRepository(db),
		fingerprints: storage.NewFingerprintRepository(db),
		audits:       storage.NewAuditRepository(db),
		fetcher:      fetcher,
		parser:       parser,
		reconciler:   NewReconciler(),
		locker:       locker,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier sets where new-booking and sync-error notifications go.
func (s *SyncService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetEvents sets the receiver of live sync events.
func (s *SyncService) SetEvents(e SyncEvents) {
	s.events = e
}

// feedOutcome is the fetch and parse result of one source.
type feedOutcome struct {
	source models.FeedSource
	parsed *ParseResult
	err    error
}

// SyncProperty runs one sync for a property. Syncs of the same property are
// serialized. A returned result is never nil unless the lock or the feed
// lookup failed.
func (s *SyncService) SyncProperty(ctx context.Context, propertyID string, opts SyncOptions) (*models.SyncResult, error) {
	unlock, err := s.locker.Lock(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("locking property %s: %w", propertyID, err)
	}
	defer unlock()

	started := time.Now()
	logger := log.With().Str("property_id", propertyID).Logger()

	sources, err := s.feeds.GetActiveFeedSources(ctx, propertyID)
	if err != nil {
		return nil, storeErr("loading feed sources", err)
	}
	if len(sources) == 0 {
		return nil, ErrNoActiveFeeds
	}

	result := &models.SyncResult{
		PropertyID: propertyID,
		SyncedAt:   s.now(),
	}

	outcomes := s.fetchAll(ctx, sources)

	var (
		events     []models.ParsedEvent
		incomplete = make(map[string]bool)
		failed     int
	)
	for _, o := range outcomes {
		fr := models.FeedResult{
			FeedID:   o.source.ID,
			Platform: o.source.Platform,
			URL:      redactURL(o.source.URL),
			Status:   models.SyncStatusSuccess,
		}

		if o.err != nil {
			failed++
			incomplete[o.source.Platform] = true
			fr.Status = models.SyncStatusError
			fr.Error = o.err.Error()

			logger.Warn().
				Err(o.err).
				Str("feed_id", o.source.ID).
				Str("platform", o.source.Platform).
				Str("url", fr.URL).
				Msg("feed fetch failed")

			msg := o.err.Error()
			if err := s.feeds.UpdateSyncStatus(ctx, o.source.ID, models.SyncStatusError, &msg, result.SyncedAt); err != nil {
				return s.fail(ctx, result, storeErr("updating feed status", err))
			}
		} else {
			reservations := len(o.parsed.Reservations())
			fr.EventsFound = len(o.parsed.Events)
			fr.ReservationsFound = reservations
			fr.Dropped = o.parsed.Dropped

			result.EventsFound += len(o.parsed.Events)
			result.ReservationsFound += reservations
			result.BlockedFound += o.parsed.Blocked
			result.Dropped += o.parsed.Dropped
			events = append(events, o.parsed.Events...)

			if err := s.feeds.UpdateSyncStatus(ctx, o.source.ID, models.SyncStatusSuccess, nil, result.SyncedAt); err != nil {
				return s.fail(ctx, result, storeErr("updating feed status", err))
			}
		}

		result.PerFeedResults = append(result.PerFeedResults, fr)
	}

	if failed == len(outcomes) {
		return s.fail(ctx, result, ErrAllFeedsFailed)
	}

	fingerprint := Fingerprint(events)
	result.Fingerprint = fingerprint

	changed, err := NewChangeDetector(s.fingerprints).HasChanged(ctx, propertyID, fingerprint)
	if err != nil {
		return s.fail(ctx, result, storeErr("reading fingerprint", err))
	}
	result.Changed = changed

	if !changed && !opts.Force {
		result.Status = models.AuditStatusNoChanges
		if err := s.appendAudit(ctx, result, "no changes"); err != nil {
			return s.fail(ctx, result, err)
		}
		logger.Info().Dur("duration", time.Since(started)).Msg("sync finished, no changes")
		if s.events != nil {
			s.events.BroadcastSyncCompleted(result)
		}
		return result, nil
	}

	var reconciled *ReconcileResult
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		reconciled, err = s.reconciler.Reconcile(ctx, s.staging.WithTx(tx), ReconcileInput{
			PropertyID: propertyID,
			Events:     events,
			Incomplete: incomplete,
			SeenAt:     result.SyncedAt,
		})
		if err != nil {
			return err
		}
		// Only a pull where every feed succeeded becomes the baseline.
		if failed > 0 {
			return nil
		}
		return NewChangeDetector(s.fingerprints.WithTx(tx)).Record(ctx, propertyID, fingerprint, len(events))
	})
	if err != nil {
		return s.fail(ctx, result, storeErr("reconciling staging records", err))
	}

	result.NewCount = reconciled.Created
	result.UpdatedCount = reconciled.Updated
	result.DisappearedCount = reconciled.Disappeared

	result.Status = models.AuditStatusChangesDetected
	if !changed && reconciled.Created+reconciled.Updated+reconciled.Disappeared == 0 {
		result.Status = models.AuditStatusNoChanges
	}

	message := fmt.Sprintf("%d new, %d updated, %d disappeared, %d unchanged, %d already decided",
		reconciled.Created, reconciled.Updated, reconciled.Disappeared, reconciled.Unchanged, reconciled.Terminal)
	if failed > 0 {
		message += fmt.Sprintf("; %d of %d feeds failed", failed, len(outcomes))
	}
	if err := s.appendAudit(ctx, result, message); err != nil {
		return s.fail(ctx, result, err)
	}

	logger.Info().
		Int("events", result.EventsFound).
		Int("reservations", result.ReservationsFound).
		Int("new", reconciled.Created).
		Int("updated", reconciled.Updated).
		Int("disappeared", reconciled.Disappeared).
		Int("duplicates", reconciled.Duplicates).
		Int("failed_feeds", failed).
		Dur("duration", time.Since(started)).
		Msg("sync finished")

	if len(reconciled.NewRecords) > 0 {
		s.notifyNewBookings(ctx, propertyID, reconciled.NewRecords)
		if s.events != nil {
			s.events.BroadcastStagingCreated(propertyID, reconciled.NewRecords)
		}
	}
	if s.events != nil {
		s.events.BroadcastSyncCompleted(result)
	}

	return result, nil
}

// fetchAll fetches and parses every source concurrently. Failures are
// recorded per source.
func (s *SyncService) fetchAll(ctx context.Context, sources []models.FeedSource) []feedOutcome {
	outcomes := make([]feedOutcome, len(sources))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrentFetches)
	for i, source := range sources {
		i, source := i, source
		g.Go(func() error {
			outcomes[i] = s.fetchOne(ctx, source)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (s *SyncService) fetchOne(ctx context.Context, source models.FeedSource) feedOutcome {
	body, err := s.fetcher.Fetch(ctx, source)
	if err != nil {
		return feedOutcome{source: source, err: err}
	}

	parsed, err := s.parser.Parse(bytes.NewReader(body), source)
	if err != nil {
		return feedOutcome{source: source, err: fmt.Errorf("parsing feed %s: %w", source.ID, err)}
	}

	return feedOutcome{source: source, parsed: parsed}
}

func (s *SyncService) appendAudit(ctx context.Context, result *models.SyncResult, message string) error {
	audit := &models.SyncAudit{
		PropertyID:     result.PropertyID,
		Timestamp:      result.SyncedAt,
		Status:         result.Status,
		Message:        message,
		PerFeedResults: result.PerFeedResults,
	}
	if err := s.audits.Append(ctx, audit); err != nil {
		return storeErr("writing sync audit", err)
	}
	return nil
}

// fail records a failed sync in the audit log and on live channels.
func (s *SyncService) fail(ctx context.Context, result *models.SyncResult, cause error) (*models.SyncResult, error) {
	result.Status = models.AuditStatusError

	log.Error().
		Err(cause).
		Str("property_id", result.PropertyID).
		Msg("sync failed")

	if err := s.appendAudit(ctx, result, cause.Error()); err != nil {
		log.Error().Err(err).Str("property_id", result.PropertyID).Msg("failed to write error audit")
	}

	if s.notifier != nil {
		if err := s.notifier.Raise(ctx, models.NotificationSyncError, result.PropertyID,
			"Calendar sync failed", cause.Error()); err != nil {
			log.Error().Err(err).Str("property_id", result.PropertyID).Msg("failed to raise sync error notification")
		}
	}
	if s.events != nil {
		s.events.BroadcastSyncError(result.PropertyID, cause)
	}

	return result, cause
}

func (s *SyncService) notifyNewBookings(ctx context.Context, propertyID string, records []models.StagingRecord) {
	if s.notifier == nil {
		return
	}

	first := records[0].CheckIn
	for _, rec := range records[1:] {
		if rec.CheckIn.Before(first) {
			first = rec.CheckIn
		}
	}

	message := fmt.Sprintf("1 new reservation awaiting review, checking in %s", first)
	if len(records) > 1 {
		message = fmt.Sprintf("%d new reservations awaiting review, earliest check-in %s", len(records), first)
	}

	if err := s.notifier.Raise(ctx, models.NotificationNewBooking, propertyID, "New booking", message); err != nil {
		log.Error().Err(err).Str("property_id", propertyID).Msg("failed to raise new booking notification")
	}
}

// SyncAll syncs every property with an active feed. A failing property does
// not stop the others; its result carries status error.
func (s *SyncService) SyncAll(ctx context.Context) ([]models.SyncResult, error) {
	propertyIDs, err := s.feeds.ListPropertiesWithActiveFeeds(ctx)
	if err != nil {
		return nil, storeErr("listing properties", err)
	}

	results := make([]models.SyncResult, len(propertyIDs))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrentProperties)
	for i, propertyID := range propertyIDs {
		i, propertyID := i, propertyID
		g.Go(func() error {
			result, err := s.SyncProperty(ctx, propertyID, SyncOptions{})
			if err != nil && !errors.Is(err, ErrNoActiveFeeds) {
				log.Error().Err(err).Str("property_id", propertyID).Msg("error syncing property")
			}
			if result == nil {
				result = &models.SyncResult{
					PropertyID: propertyID,
					Status:     models.AuditStatusError,
					SyncedAt:   s.now(),
				}
			}
			results[i] = *result
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}
