package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostdesk/backend/internal/storage"
	"github.com/hostdesk/backend/internal/storage/models"
	"github.com/hostdesk/backend/internal/storage/storagetest"
)

// feedServer serves mutable ICS bodies by path. A path mapped to "hang"
// never answers before the client gives up.
type feedServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies map[string]string
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{bodies: make(map[string]string)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		body, ok := fs.bodies[r.URL.Path]
		fs.mu.Unlock()

		switch {
		case !ok:
			http.NotFound(w, r)
		case body == "hang":
			<-r.Context().Done()
		default:
			w.Header().Set("Content-Type", "text/calendar")
			fmt.Fprint(w, body)
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) set(path, body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.bodies[path] = body
}

type icsEvent struct {
	uid, summary, start, end string
}

func icsFeed(events ...icsEvent) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n")
	for _, e := range events {
		fmt.Fprintf(&b, "BEGIN:VEVENT\r\nUID:%s\r\nDTSTART;VALUE=DATE:%s\r\nDTEND;VALUE=DATE:%s\r\nSUMMARY:%s\r\nEND:VEVENT\r\n",
			e.uid, e.start, e.end, e.summary)
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

type raised struct {
	kind, propertyID, title, message string
}

type recordingNotifier struct {
	mu     sync.Mutex
	raised []raised
}

func (n *recordingNotifier) Raise(_ context.Context, kind, propertyID, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.raised = append(n.raised, raised{kind, propertyID, title, message})
	return nil
}

func (n *recordingNotifier) all() []raised {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]raised(nil), n.raised...)
}

type recordingEvents struct {
	mu        sync.Mutex
	completed []string
	errored   []string
	created   int
}

func (e *recordingEvents) BroadcastSyncCompleted(r *models.SyncResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, r.Status)
}

func (e *recordingEvents) BroadcastSyncError(propertyID string, _ error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errored = append(e.errored, propertyID)
}

func (e *recordingEvents) BroadcastStagingCreated(_ string, records []models.StagingRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created += len(records)
}

type syncFixture struct {
	db       *storage.DB
	server   *feedServer
	service  *SyncService
	notifier *recordingNotifier
	events   *recordingEvents
	feeds    *storage.FeedSourceRepository
	staging  *storage.StagingRepository
	audits   *storage.AuditRepository
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	db := storagetest.NewDB(t)
	f := &syncFixture{
		db:       db,
		server:   newFeedServer(t),
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		feeds:    storage.NewFeedSourceRepository(db),
		staging:  storage.NewStagingRepository(db),
		audits:   storage.NewAuditRepository(db),
	}

	f.service = NewSyncService(db, NewFetcher(200*time.Millisecond, 1<<20), NewParser(nil), NewMemoryLocker(), SyncConfig{})
	f.service.SetNotifier(f.notifier)
	f.service.SetEvents(f.events)
	return f
}

func (f *syncFixture) addFeed(t *testing.T, propertyID, platform, path string) *models.FeedSource {
	t.Helper()
	feed := &models.FeedSource{
		PropertyID: propertyID,
		Platform:   platform,
		URL:        f.server.URL + path + "?token=secret",
		Active:     true,
	}
	require.NoError(t, f.feeds.Create(context.Background(), feed))
	return feed
}

func TestSyncProperty_NewBookingThenNoChanges(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	f.server.set("/airbnb.ics", icsFeed(
		icsEvent{"abc123", "Reserved - Jane (4821)", "20250601", "20250605"},
		icsEvent{"hold-1", "Airbnb (Not available)", "20250610", "20250612"},
	))
	feed := f.addFeed(t, "prop-1", models.PlatformAirbnb, "/airbnb.ics")

	result, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.AuditStatusChangesDetected, result.Status)
	assert.True(t, result.Changed)
	assert.Equal(t, 2, result.EventsFound)
	assert.Equal(t, 1, result.ReservationsFound)
	assert.Equal(t, 1, result.BlockedFound)
	assert.Equal(t, 1, result.NewCount)
	require.Len(t, result.PerFeedResults, 1)
	assert.Equal(t, models.SyncStatusSuccess, result.PerFeedResults[0].Status)
	assert.NotContains(t, result.PerFeedResults[0].URL, "secret")

	pending, err := f.staging.ListByProperty(ctx, "prop-1", models.StageStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "airbnb:abc123", pending[0].SyncUID)
	assert.Equal(t, "Jane", pending[0].GuestNameHint)
	assert.Equal(t, "4821", pending[0].PhoneLastFour)

	notes := f.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationNewBooking, notes[0].kind)
	assert.Equal(t, "New booking", notes[0].title)
	assert.Equal(t, "1 new reservation awaiting review, checking in 2025-06-01", notes[0].message)

	stored, err := f.feeds.GetByID(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, stored.LastSyncStatus)
	assert.NotNil(t, stored.LastSyncAt)

	// Identical feed: nothing to reconcile.
	again, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.AuditStatusNoChanges, again.Status)
	assert.False(t, again.Changed)
	assert.Zero(t, again.NewCount)
	assert.Equal(t, result.Fingerprint, again.Fingerprint)
	assert.Len(t, f.notifier.all(), 1)

	audits, err := f.audits.ListByProperty(ctx, "prop-1", 10)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, models.AuditStatusNoChanges, audits[0].Status)
	assert.Equal(t, models.AuditStatusChangesDetected, audits[1].Status)
	assert.Equal(t, "1 new, 0 updated, 0 disappeared, 0 unchanged, 0 already decided", audits[1].Message)

	assert.Equal(t, 1, f.events.created)
	assert.Equal(t, []string{models.AuditStatusChangesDetected, models.AuditStatusNoChanges}, f.events.completed)
}

func TestSyncProperty_ForceReconcilesUnchangedFeed(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	f.server.set("/airbnb.ics", icsFeed(icsEvent{"abc123", "Reserved - Jane", "20250601", "20250605"}))
	f.addFeed(t, "prop-1", models.PlatformAirbnb, "/airbnb.ics")

	_, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)

	before, err := f.staging.ListByProperty(ctx, "prop-1", "")
	require.NoError(t, err)

	forced, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{Force: true})
	require.NoError(t, err)
	assert.False(t, forced.Changed)
	assert.Equal(t, models.AuditStatusNoChanges, forced.Status)
	assert.Zero(t, forced.NewCount+forced.UpdatedCount+forced.DisappearedCount)

	after, err := f.staging.ListByProperty(ctx, "prop-1", "")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.False(t, after[0].LastSeenAt.Before(before[0].LastSeenAt))
}

func TestSyncProperty_UpdatesAndDisappearances(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	f.server.set("/vrbo.ics", icsFeed(
		icsEvent{"v-1", "Reserved - Lee", "20250601", "20250605"},
		icsEvent{"v-2", "Reserved - Kim", "20250701", "20250703"},
	))
	f.addFeed(t, "prop-1", models.PlatformVrbo, "/vrbo.ics")

	_, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)

	f.server.set("/vrbo.ics", icsFeed(icsEvent{"v-1", "Reserved - Lee", "20250601", "20250606"}))

	result, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.AuditStatusChangesDetected, result.Status)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Equal(t, 1, result.DisappearedCount)
	assert.Zero(t, result.NewCount)

	gone, err := f.staging.ListByProperty(ctx, "prop-1", models.StageStatusDisappeared)
	require.NoError(t, err)
	require.Len(t, gone, 1)
	assert.Equal(t, "vrbo:v-2", gone[0].SyncUID)
}

func TestSyncProperty_PartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	f.server.set("/airbnb.ics", icsFeed(icsEvent{"a-1", "Reserved - Jane", "20250601", "20250605"}))
	f.server.set("/vrbo.ics", icsFeed(icsEvent{"v-1", "Reserved - Lee", "20250701", "20250705"}))
	f.addFeed(t, "prop-1", models.PlatformAirbnb, "/airbnb.ics")
	vrbo := f.addFeed(t, "prop-1", models.PlatformVrbo, "/vrbo.ics")

	first, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, first.NewCount)

	f.server.set("/vrbo.ics", "hang")

	result, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)
	assert.True(t, result.Degraded())
	assert.Equal(t, models.AuditStatusChangesDetected, result.Status)
	assert.Zero(t, result.DisappearedCount, "records of a failed platform are kept")

	var failed *models.FeedResult
	for i := range result.PerFeedResults {
		if result.PerFeedResults[i].FeedID == vrbo.ID {
			failed = &result.PerFeedResults[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, models.SyncStatusError, failed.Status)
	assert.Contains(t, failed.Error, "timed out")
	assert.NotContains(t, failed.Error, "secret")

	pending, err := f.staging.ListByProperty(ctx, "prop-1", models.StageStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	stored, err := f.feeds.GetByID(ctx, vrbo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, stored.LastSyncStatus)
	require.NotNil(t, stored.LastSyncError)

	audits, err := f.audits.ListByProperty(ctx, "prop-1", 1)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Contains(t, audits[0].Message, "1 of 2 feeds failed")
}

func TestSyncProperty_RecoveredFeedFlagsDisappearance(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	f.server.set("/airbnb.ics", icsFeed(icsEvent{"a-1", "Reserved - Jane", "20250601", "20250605"}))
	f.server.set("/vrbo.ics", icsFeed(icsEvent{"v-1", "Reserved - Lee", "20250701", "20250705"}))
	f.addFeed(t, "prop-1", models.PlatformAirbnb, "/airbnb.ics")
	f.addFeed(t, "prop-1", models.PlatformVrbo, "/vrbo.ics")

	healthy, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, healthy.NewCount)

	f.server.set("/vrbo.ics", "hang")
	partial, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)
	require.True(t, partial.Degraded())
	assert.Zero(t, partial.DisappearedCount)

	fp, err := storage.NewFingerprintRepository(f.db).Get(ctx, "prop-1")
	require.NoError(t, err)
	require.NotNil(t, fp)
	assert.Equal(t, healthy.Fingerprint, fp.Checksum, "a degraded pull keeps the last complete baseline")

	// The vrbo booking was cancelled while its feed was down.
	f.server.set("/vrbo.ics", icsFeed())
	recovered, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.AuditStatusChangesDetected, recovered.Status)
	assert.Equal(t, 1, recovered.DisappearedCount)

	gone, err := f.staging.ListByProperty(ctx, "prop-1", models.StageStatusDisappeared)
	require.NoError(t, err)
	require.Len(t, gone, 1)
	assert.Equal(t, "vrbo:v-1", gone[0].SyncUID)
}

func TestSyncProperty_DescriptionOnlyChangeUpdatesHints(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	feedWith := func(description string) string {
		return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
			"BEGIN:VEVENT\r\nUID:abc123\r\nDTSTART;VALUE=DATE:20250601\r\nDTEND;VALUE=DATE:20250605\r\n" +
			"SUMMARY:Reserved\r\nDESCRIPTION:" + description + "\r\nEND:VEVENT\r\n" +
			"END:VCALENDAR\r\n"
	}

	f.server.set("/airbnb.ics", feedWith("Reservation URL: https://www.airbnb.com/hosting/reservations"))
	f.addFeed(t, "prop-1", models.PlatformAirbnb, "/airbnb.ics")

	_, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)

	f.server.set("/airbnb.ics", feedWith("Phone Number (Last 4 Digits): 4821"))
	result, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, models.AuditStatusChangesDetected, result.Status)
	assert.Equal(t, 1, result.UpdatedCount)

	pending, err := f.staging.ListByProperty(ctx, "prop-1", models.StageStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "4821", pending[0].PhoneLastFour)
}

func TestSyncProperty_AllFeedsFailed(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	f.addFeed(t, "prop-1", models.PlatformAirbnb, "/missing.ics")

	result, err := f.service.SyncProperty(ctx, "prop-1", SyncOptions{})
	require.ErrorIs(t, err, ErrAllFeedsFailed)
	require.NotNil(t, result)
	assert.Equal(t, models.AuditStatusError, result.Status)

	audits, err := f.audits.ListByProperty(ctx, "prop-1", 10)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, models.AuditStatusError, audits[0].Status)
	require.Len(t, audits[0].PerFeedResults, 1)
	assert.Contains(t, audits[0].PerFeedResults[0].Error, "404")

	notes := f.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationSyncError, notes[0].kind)
	assert.Equal(t, []string{"prop-1"}, f.events.errored)

	// Nothing was fingerprinted, so the next good pull is a change.
	fp, err := storage.NewFingerprintRepository(f.db).Get(ctx, "prop-1")
	require.NoError(t, err)
	assert.Nil(t, fp)
}

func TestSyncProperty_NoActiveFeeds(t *testing.T) {
	f := newSyncFixture(t)

	result, err := f.service.SyncProperty(context.Background(), "prop-empty", SyncOptions{})
	assert.True(t, errors.Is(err, ErrNoActiveFeeds))
	assert.Nil(t, result)
}

func TestSyncAll_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	f.server.set("/good.ics", icsFeed(icsEvent{"g-1", "Reserved - Ana", "20250601", "20250603"}))
	f.addFeed(t, "prop-good", models.PlatformGeneric, "/good.ics")
	f.addFeed(t, "prop-bad", models.PlatformGeneric, "/missing.ics")

	results, err := f.service.SyncAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byProperty := map[string]string{}
	for _, r := range results {
		byProperty[r.PropertyID] = r.Status
	}
	assert.Equal(t, models.AuditStatusChangesDetected, byProperty["prop-good"])
	assert.Equal(t, models.AuditStatusError, byProperty["prop-bad"])
}
