package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostdesk/backend/internal/storage"
	"github.com/hostdesk/backend/internal/storage/models"
	"github.com/hostdesk/backend/internal/storage/storagetest"
)

func TestFingerprintRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewFingerprintRepository(storagetest.NewDB(t))

	got, err := repo.Get(ctx, "prop-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Upsert(ctx, &models.SyncFingerprint{PropertyID: "prop-1", Checksum: "aaa", EventCount: 2}))
	require.NoError(t, repo.Upsert(ctx, &models.SyncFingerprint{PropertyID: "prop-1", Checksum: "bbb", EventCount: 3}))

	got, err = repo.Get(ctx, "prop-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bbb", got.Checksum)
	assert.Equal(t, 3, got.EventCount)
}

func TestAuditRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewAuditRepository(storagetest.NewDB(t))

	now := time.Now().UTC()
	for i, status := range []string{models.AuditStatusChangesDetected, models.AuditStatusNoChanges, models.AuditStatusError} {
		audit := &models.SyncAudit{
			PropertyID: "prop-1",
			Timestamp:  now.Add(time.Duration(i) * time.Minute),
			Status:     status,
			Message:    status,
			PerFeedResults: models.FeedResults{
				{FeedID: "feed-1", Platform: "airbnb", URL: "https://www.airbnb.com", Status: models.SyncStatusSuccess, EventsFound: i},
			},
		}
		require.NoError(t, repo.Append(ctx, audit))
		assert.NotZero(t, audit.ID)
	}

	audits, err := repo.ListByProperty(ctx, "prop-1", 2)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, models.AuditStatusError, audits[0].Status)
	assert.Equal(t, models.AuditStatusNoChanges, audits[1].Status)
	require.Len(t, audits[0].PerFeedResults, 1)
	assert.Equal(t, 2, audits[0].PerFeedResults[0].EventsFound)

	other, err := repo.ListByProperty(ctx, "prop-2", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestNotificationRepository_ListByProperty(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewNotificationRepository(storagetest.NewDB(t))

	require.NoError(t, repo.Create(ctx, &models.Notification{
		Kind: models.NotificationNewBooking, PropertyID: "prop-1", Title: "New booking", Message: "1 new reservation",
	}))
	require.NoError(t, repo.Create(ctx, &models.Notification{
		Kind: models.NotificationSyncError, PropertyID: "prop-2", Title: "Calendar sync failed", Message: "boom",
	}))

	got, err := repo.ListByProperty(ctx, "prop-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.NotificationNewBooking, got[0].Kind)
	assert.NotEmpty(t, got[0].ID)
}
