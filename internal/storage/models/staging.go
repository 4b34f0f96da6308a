package models

import (
	"time"
)

// StagingRecord is a candidate reservation pulled from a feed, awaiting a human decision.
type StagingRecord struct {
	ID            string     `db:"id" json:"id"`
	PropertyID    string     `db:"property_id" json:"property_id"`
	Platform      string     `db:"platform" json:"platform"`
	FeedID        string     `db:"feed_id" json:"feed_id"`
	SyncUID       string     `db:"sync_uid" json:"sync_uid"`
	CheckIn       Date       `db:"check_in" json:"check_in"`
	CheckOut      Date       `db:"check_out" json:"check_out"`
	GuestNameHint string     `db:"guest_name_hint" json:"guest_name_hint"`
	StatusText    string     `db:"status_text" json:"status_text"`
	PhoneLastFour string     `db:"phone_last_four" json:"phone_last_four"`
	StageStatus   string     `db:"stage_status" json:"stage_status"`
	ReservationID *string    `db:"reservation_id" json:"reservation_id,omitempty"`
	LastSeenAt    time.Time  `db:"last_seen_at" json:"last_seen_at"`
	DisappearedAt *time.Time `db:"disappeared_at" json:"disappeared_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Stage status constants
const (
	StageStatusPending     = "pending"
	StageStatusConfirmed   = "confirmed"
	StageStatusRejected    = "rejected"
	StageStatusDisappeared = "disappeared"
)

// IsTerminal reports whether a human decision has been recorded. Terminal
// records are immutable ledger entries.
func (s *StagingRecord) IsTerminal() bool {
	return s.StageStatus == StageStatusConfirmed || s.StageStatus == StageStatusRejected
}

// IsPending reports whether the record still awaits a decision.
func (s *StagingRecord) IsPending() bool {
	return s.StageStatus == StageStatusPending
}

// DiffersFrom reports whether the event carries different mutable fields
// than the staged record.
func (s *StagingRecord) DiffersFrom(e ParsedEvent) bool {
	return !s.CheckIn.Equal(e.CheckIn) ||
		!s.CheckOut.Equal(e.CheckOut) ||
		s.GuestNameHint != e.GuestNameHint ||
		s.StatusText != e.Summary ||
		s.PhoneLastFour != e.PhoneLastFour ||
		s.FeedID != e.FeedID
}

// ApplyEvent copies the mutable fields of a parsed event onto the record.
func (s *StagingRecord) ApplyEvent(e ParsedEvent) {
	s.CheckIn = e.CheckIn
	s.CheckOut = e.CheckOut
	s.GuestNameHint = e.GuestNameHint
	s.StatusText = e.Summary
	s.PhoneLastFour = e.PhoneLastFour
	s.FeedID = e.FeedID
}

// Conflict annotates a staging record with a confirmed reservation it overlaps.
type Conflict struct {
	ReservationID string `json:"reservation_id"`
	CheckIn       Date   `json:"check_in"`
	CheckOut      Date   `json:"check_out"`
	Status        string `json:"status"`
	OverlapStart  Date   `json:"overlap_start"`
	OverlapEnd    Date   `json:"overlap_end"`
}

// StagingWithConflicts is a staging record as presented for human review.
type StagingWithConflicts struct {
	StagingRecord
	Conflicts []Conflict `json:"conflicts"`
}
