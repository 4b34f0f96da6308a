// Package models contains the domain models for the application.
package models

import (
	"time"
)

// FeedSource is one external booking calendar configured for a property and platform.
type FeedSource struct {
	ID             string     `db:"id" json:"id"`
	PropertyID     string     `db:"property_id" json:"property_id"`
	Platform       string     `db:"platform" json:"platform"`
	Name           string     `db:"name" json:"name"`
	URL            string     `db:"url" json:"url"`
	Active         bool       `db:"active" json:"active"`
	LastSyncAt     *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	LastSyncStatus string     `db:"last_sync_status" json:"last_sync_status"`
	LastSyncError  *string    `db:"last_sync_error" json:"last_sync_error,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// SyncStatus constants
const (
	SyncStatusPending = "pending"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// Known platforms. Any other platform string falls back to generic extraction.
const (
	PlatformAirbnb  = "airbnb"
	PlatformVrbo    = "vrbo"
	PlatformBooking = "booking"
	PlatformGeneric = "generic"
)

// ParsedEvent is a single VEVENT after parsing and platform extraction.
// It only lives for the duration of one sync run.
type ParsedEvent struct {
	UID           string `json:"uid"`
	Platform      string `json:"platform"`
	FeedID        string `json:"feed_id,omitempty"`
	CheckIn       Date   `json:"check_in"`
	CheckOut      Date   `json:"check_out"`
	Summary       string `json:"summary"`
	GuestNameHint string `json:"guest_name_hint,omitempty"`
	PhoneLastFour string `json:"phone_last_four,omitempty"`
	IsReservation bool   `json:"is_reservation"`
	SourceURL     string `json:"source_url,omitempty"`
}

// SyncUID returns the platform-stable key used to match the event to a staging record.
func (e ParsedEvent) SyncUID() string {
	return SyncUID(e.Platform, e.UID)
}

// SyncUID joins a platform and a feed UID into a staging key.
func SyncUID(platform, uid string) string {
	return platform + ":" + uid
}
