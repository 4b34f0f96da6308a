package models

import (
	"time"
)

// ConfirmedReservation is an authoritative booking for a property.
type ConfirmedReservation struct {
	ID             string    `db:"id" json:"id"`
	PropertyID     string    `db:"property_id" json:"property_id"`
	GuestID        *string   `db:"guest_id" json:"guest_id,omitempty"`
	CheckIn        Date      `db:"check_in" json:"check_in"`
	CheckOut       Date      `db:"check_out" json:"check_out"`
	Status         string    `db:"status" json:"status"`
	Price          float64   `db:"price" json:"price"`
	GuestCount     int       `db:"guest_count" json:"guest_count"`
	Notes          string    `db:"notes" json:"notes,omitempty"`
	SourcePlatform string    `db:"source_platform" json:"source_platform,omitempty"`
	StagingID      *string   `db:"staging_id" json:"staging_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Reservation status constants
const (
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusCancelled = "cancelled"
)

// CommercialFields are the values a human supplies when confirming a staged booking.
// They are never known from the feed.
type CommercialFields struct {
	Price      float64 `json:"price" validate:"gte=0"`
	GuestCount int     `json:"guest_count" validate:"required,gte=1,lte=50"`
	GuestName  string  `json:"guest_name" validate:"omitempty,max=200"`
	Notes      string  `json:"notes" validate:"omitempty,max=2000"`
}

// Guest is a person who stays at a property.
type Guest struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Notification is a persisted dashboard alert.
type Notification struct {
	ID         string    `db:"id" json:"id"`
	Kind       string    `db:"kind" json:"kind"`
	PropertyID string    `db:"property_id" json:"property_id"`
	Title      string    `db:"title" json:"title"`
	Message    string    `db:"message" json:"message"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Notification kinds
const (
	NotificationNewBooking = "new_booking"
	NotificationSyncError  = "sync_error"
)
