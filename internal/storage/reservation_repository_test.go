package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostdesk/backend/internal/storage"
	"github.com/hostdesk/backend/internal/storage/models"
	"github.com/hostdesk/backend/internal/storage/storagetest"
)

func TestReservationRepository_FindOverlapping(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewReservationRepository(storagetest.NewDB(t))

	existing := &models.ConfirmedReservation{
		PropertyID: "prop-1",
		CheckIn:    models.NewDate(2025, 6, 5),
		CheckOut:   models.NewDate(2025, 6, 10),
		GuestCount: 2,
	}
	require.NoError(t, repo.Create(ctx, existing))

	cancelled := &models.ConfirmedReservation{
		PropertyID: "prop-1",
		CheckIn:    models.NewDate(2025, 6, 1),
		CheckOut:   models.NewDate(2025, 6, 20),
		Status:     models.ReservationStatusCancelled,
		GuestCount: 1,
	}
	require.NoError(t, repo.Create(ctx, cancelled))

	tests := []struct {
		name     string
		in, out  models.Date
		property string
		want     int
	}{
		{"ends on check-in day", models.NewDate(2025, 6, 1), models.NewDate(2025, 6, 5), "prop-1", 0},
		{"starts on check-out day", models.NewDate(2025, 6, 10), models.NewDate(2025, 6, 12), "prop-1", 0},
		{"one shared night", models.NewDate(2025, 6, 4), models.NewDate(2025, 6, 6), "prop-1", 1},
		{"contained", models.NewDate(2025, 6, 6), models.NewDate(2025, 6, 8), "prop-1", 1},
		{"other property", models.NewDate(2025, 6, 6), models.NewDate(2025, 6, 8), "prop-2", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindOverlapping(ctx, tt.property, tt.in, tt.out)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			for _, r := range got {
				assert.NotEqual(t, models.ReservationStatusCancelled, r.Status)
			}
		})
	}
}

func TestGuestRepository_CreateIfAbsentIgnoresCase(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewGuestRepository(storagetest.NewDB(t))

	first, err := repo.CreateIfAbsent(ctx, "Jane Doe")
	require.NoError(t, err)

	second, err := repo.CreateIfAbsent(ctx, "  jane doe ")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := repo.CreateIfAbsent(ctx, "John Doe")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	guest, err := repo.GetByID(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, guest)
	assert.Equal(t, "Jane Doe", guest.Name)

	_, err = repo.CreateIfAbsent(ctx, "   ")
	assert.Error(t, err)
}
