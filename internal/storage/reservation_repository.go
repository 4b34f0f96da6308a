package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/hostdesk/backend/internal/storage/models"
)

const reservationColumns = `
	id, property_id, guest_id, check_in, check_out, status, price, guest_count,
	notes, source_platform, staging_id, created_at, updated_at`

// ReservationRepository provides data access for confirmed reservations.
type ReservationRepository struct {
	BaseRepository
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(db *DB) *ReservationRepository {
	return &ReservationRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a repository whose statements run inside tx.
func (r *ReservationRepository) WithTx(tx *sqlx.Tx) *ReservationRepository {
	return &ReservationRepository{BaseRepository: r.withTx(tx)}
}

// Create inserts a new reservation.
func (r *ReservationRepository) Create(ctx context.Context, res *models.ConfirmedReservation) error {
	res.ID = GenerateID()
	res.CreatedAt = r.Now()
	res.UpdatedAt = res.CreatedAt
	if res.Status == "" {
		res.Status = models.ReservationStatusConfirmed
	}

	_, err := r.Q().NamedExecContext(ctx, `
		INSERT INTO reservations (
			id, property_id, guest_id, check_in, check_out, status, price, guest_count,
			notes, source_platform, staging_id, created_at, updated_at
		) VALUES (
			:id, :property_id, :guest_id, :check_in, :check_out, :status, :price, :guest_count,
			:notes, :source_platform, :staging_id, :created_at, :updated_at
		)
	`, res)
	if err != nil {
		return fmt.Errorf("inserting reservation: %w", err)
	}

	return nil
}

// GetByID retrieves a reservation by its ID. It returns nil when none exists.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.ConfirmedReservation, error) {
	res := &models.ConfirmedReservation{}

	err := r.Q().GetContext(ctx, res, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying reservation: %w", err)
	}

	return res, nil
}

// FindOverlapping returns the non-cancelled reservations of a property whose
// half-open stay [check_in, check_out) intersects [checkIn, checkOut).
func (r *ReservationRepository) FindOverlapping(ctx context.Context, propertyID string, checkIn, checkOut models.Date) ([]models.ConfirmedReservation, error) {
	reservations := []models.ConfirmedReservation{}
	err := r.Q().SelectContext(ctx, &reservations, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE property_id = ?
		  AND status != ?
		  AND check_in < ?
		  AND check_out > ?
		ORDER BY check_in
	`, propertyID, models.ReservationStatusCancelled, checkOut, checkIn)
	if err != nil {
		return nil, fmt.Errorf("querying overlapping reservations: %w", err)
	}

	return reservations, nil
}

// ListByProperty returns every reservation of a property ordered by check-in.
func (r *ReservationRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.ConfirmedReservation, error) {
	reservations := []models.ConfirmedReservation{}
	err := r.Q().SelectContext(ctx, &reservations, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE property_id = ?
		ORDER BY check_in
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying reservations: %w", err)
	}

	return reservations, nil
}

// GuestRepository provides data access for guests.
type GuestRepository struct {
	BaseRepository
}

// NewGuestRepository creates a new guest repository.
func NewGuestRepository(db *DB) *GuestRepository {
	return &GuestRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a repository whose statements run inside tx.
func (r *GuestRepository) WithTx(tx *sqlx.Tx) *GuestRepository {
	return &GuestRepository{BaseRepository: r.withTx(tx)}
}

// CreateIfAbsent returns the ID of the guest with the given name, matched
// case-insensitively, creating the guest first when needed.
func (r *GuestRepository) CreateIfAbsent(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("guest name is empty")
	}

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO guests (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, GenerateID(), name, r.Now())
	if err != nil {
		return "", fmt.Errorf("inserting guest: %w", err)
	}

	var id string
	err = r.Q().GetContext(ctx, &id, `SELECT id FROM guests WHERE name = ? COLLATE NOCASE`, name)
	if err != nil {
		return "", fmt.Errorf("querying guest: %w", err)
	}

	return id, nil
}

// GetByID retrieves a guest by its ID. It returns nil when none exists.
func (r *GuestRepository) GetByID(ctx context.Context, id string) (*models.Guest, error) {
	guest := &models.Guest{}

	err := r.Q().GetContext(ctx, guest, `SELECT id, name, created_at FROM guests WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying guest: %w", err)
	}

	return guest, nil
}
