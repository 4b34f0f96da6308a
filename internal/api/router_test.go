package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostdesk/backend/internal/api"
	"github.com/hostdesk/backend/internal/api/middleware"
	"github.com/hostdesk/backend/internal/calendar"
	"github.com/hostdesk/backend/internal/staging"
	"github.com/hostdesk/backend/internal/storage"
	"github.com/hostdesk/backend/internal/storage/models"
	"github.com/hostdesk/backend/internal/storage/storagetest"
	"github.com/hostdesk/backend/internal/validation"
	"github.com/hostdesk/backend/internal/websocket"
)

type stubSyncer struct {
	result *models.SyncResult
	err    error
	calls  []calendar.SyncOptions
}

func (s *stubSyncer) SyncProperty(_ context.Context, propertyID string, opts calendar.SyncOptions) (*models.SyncResult, error) {
	s.calls = append(s.calls, opts)
	if s.result != nil {
		s.result.PropertyID = propertyID
	}
	return s.result, s.err
}

func (s *stubSyncer) SyncAll(context.Context) ([]models.SyncResult, error) {
	return nil, nil
}

type testServer struct {
	db     *storage.DB
	syncer *stubSyncer
	srv    *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := storagetest.NewDB(t)
	v := validation.New()
	syncer := &stubSyncer{}

	router := api.NewRouter(api.Services{
		DB:        db,
		Hub:       websocket.NewHub(),
		Syncer:    syncer,
		Workflow:  staging.NewWorkflow(db, v, nil),
		Review:    staging.NewReview(db),
		Validator: v,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{db: db, syncer: syncer, srv: srv}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode[map[string]any](t, resp)["status"])
}

func TestFeedSources_CRUD(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/properties/prop-1/feeds",
		`{"platform":" Airbnb ","name":"Main listing","url":"https://www.airbnb.com/calendar/ical/1.ics"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.FeedSource](t, resp)
	assert.Equal(t, "airbnb", created.Platform)
	assert.True(t, created.Active)
	require.NotEmpty(t, created.ID)

	resp = ts.do(t, http.MethodGet, "/api/properties/prop-1/feeds", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.FeedSource](t, resp), 1)

	resp = ts.do(t, http.MethodPut, "/api/feeds/"+created.ID,
		`{"platform":"airbnb","name":"Renamed","url":"https://www.airbnb.com/calendar/ical/1.ics","active":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[models.FeedSource](t, resp)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, updated.Active)

	resp = ts.do(t, http.MethodDelete, "/api/feeds/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/feeds/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeedSources_Validation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/properties/prop-1/feeds", `{"platform":"air bnb","url":"not a url"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decode[middleware.ErrorResponse](t, resp)
	assert.Equal(t, middleware.ErrValidation, body.Error)
	details, ok := body.Details.([]any)
	require.True(t, ok)
	assert.Len(t, details, 2)

	resp = ts.do(t, http.MethodPost, "/api/properties/prop-1/feeds", `{"platform":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTriggerSync(t *testing.T) {
	tests := []struct {
		name     string
		result   *models.SyncResult
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "ok",
			result:   &models.SyncResult{Status: models.AuditStatusNoChanges},
			wantCode: http.StatusOK,
		},
		{
			name:     "no active feeds",
			err:      calendar.ErrNoActiveFeeds,
			wantCode: http.StatusNotFound,
			wantErr:  middleware.ErrNotFound,
		},
		{
			name:     "all feeds failed",
			result:   &models.SyncResult{Status: models.AuditStatusError},
			err:      fmt.Errorf("prop-1: %w", calendar.ErrAllFeedsFailed),
			wantCode: http.StatusBadGateway,
			wantErr:  middleware.ErrSyncFailed,
		},
		{
			name:     "store failure",
			err:      &calendar.StoreError{Op: "reconciling", Err: fmt.Errorf("database is locked")},
			wantCode: http.StatusInternalServerError,
			wantErr:  middleware.ErrInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.syncer.result = tt.result
			ts.syncer.err = tt.err

			resp := ts.do(t, http.MethodPost, "/api/properties/prop-1/sync?force=true", "")
			require.Equal(t, tt.wantCode, resp.StatusCode)
			require.Len(t, ts.syncer.calls, 1)
			assert.True(t, ts.syncer.calls[0].Force)

			if tt.wantErr == "" {
				assert.Equal(t, "prop-1", decode[models.SyncResult](t, resp).PropertyID)
				return
			}
			assert.Equal(t, tt.wantErr, decode[middleware.ErrorResponse](t, resp).Error)
		})
	}
}

func TestStaging_ListAndDecide(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)

	rec := &models.StagingRecord{
		PropertyID:    "prop-1",
		Platform:      models.PlatformAirbnb,
		FeedID:        "feed-1",
		SyncUID:       models.SyncUID(models.PlatformAirbnb, "abc"),
		CheckIn:       models.NewDate(2025, 6, 1),
		CheckOut:      models.NewDate(2025, 6, 5),
		GuestNameHint: "Jane Doe",
	}
	require.NoError(t, storage.NewStagingRepository(ts.db).Insert(ctx, rec))

	resp := ts.do(t, http.MethodGet, "/api/properties/prop-1/staging", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]models.StagingWithConflicts](t, resp)
	require.Len(t, listed, 1)
	assert.Equal(t, rec.ID, listed[0].ID)

	resp = ts.do(t, http.MethodGet, "/api/properties/prop-1/staging?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/staging/"+rec.ID+"/decision", `{"action":"archive"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/staging/"+rec.ID+"/decision", `{"action":"confirm","guest_count":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/staging/"+rec.ID+"/decision", `{"action":"confirm","price":320,"guest_count":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[staging.DecisionResult](t, resp)
	require.NotNil(t, result.Reservation)
	assert.Equal(t, 2, result.Reservation.GuestCount)
	assert.Equal(t, models.StageStatusConfirmed, result.Staging.StageStatus)

	resp = ts.do(t, http.MethodPost, "/api/staging/"+rec.ID+"/decision", `{"action":"reject"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/staging/missing/decision", `{"action":"reject"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/properties/prop-1/staging", "")
	assert.Empty(t, decode[[]models.StagingWithConflicts](t, resp))

	resp = ts.do(t, http.MethodGet, "/api/properties/prop-1/staging?status=all", "")
	assert.Len(t, decode[[]models.StagingWithConflicts](t, resp), 1)
}

func TestTriggerSync_Async(t *testing.T) {
	db := storagetest.NewDB(t)
	syncer := &stubSyncer{result: &models.SyncResult{Status: models.AuditStatusNoChanges}}
	scheduler := calendar.NewScheduler(syncer, "", 0)
	require.NoError(t, scheduler.Start())

	srv := httptest.NewServer(api.NewRouter(api.Services{
		DB:        db,
		Hub:       websocket.NewHub(),
		Syncer:    syncer,
		Scheduler: scheduler,
		Workflow:  staging.NewWorkflow(db, validation.New(), nil),
		Review:    staging.NewReview(db),
		Validator: validation.New(),
	}))
	t.Cleanup(srv.Close)

	post := func() *http.Response {
		resp, err := http.Post(srv.URL+"/api/properties/prop-1/sync?async=true", "application/json", nil)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusAccepted, post().StatusCode)

	scheduler.Stop()
	resp := post()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, middleware.ErrUnavailable, decode[middleware.ErrorResponse](t, resp).Error)
}
