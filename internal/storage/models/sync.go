package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SyncFingerprint is the checksum of the last reconciled event set for a property.
type SyncFingerprint struct {
	PropertyID string    `db:"property_id" json:"property_id"`
	Checksum   string    `db:"checksum" json:"checksum"`
	ComputedAt time.Time `db:"computed_at" json:"computed_at"`
	EventCount int       `db:"event_count" json:"event_count"`
}

// Audit status constants
const (
	AuditStatusNoChanges       = "no_changes"
	AuditStatusChangesDetected = "changes_detected"
	AuditStatusError           = "error"
)

// SyncAudit is one append-only row describing a property sync run.
type SyncAudit struct {
	ID             int64       `db:"id" json:"id"`
	PropertyID     string      `db:"property_id" json:"property_id"`
	Timestamp      time.Time   `db:"created_at" json:"timestamp"`
	Status         string      `db:"status" json:"status"`
	Message        string      `db:"message" json:"message"`
	PerFeedResults FeedResults `db:"per_feed_results" json:"per_feed_results"`
}

// FeedResult is the outcome of fetching and parsing a single feed source.
type FeedResult struct {
	FeedID            string `json:"feed_id"`
	Platform          string `json:"platform"`
	URL               string `json:"url"`
	Status            string `json:"status"`
	EventsFound       int    `json:"events_found"`
	ReservationsFound int    `json:"reservations_found"`
	Dropped           int    `json:"dropped"`
	Error             string `json:"error,omitempty"`
}

// FeedResults is stored as a JSON column.
type FeedResults []FeedResult

// Value implements driver.Valuer.
func (r FeedResults) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (r *FeedResults) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*r = FeedResults{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into FeedResults", src)
	}
	return json.Unmarshal(data, r)
}

// SyncResult is the outcome of one property sync.
type SyncResult struct {
	PropertyID        string      `json:"property_id"`
	Status            string      `json:"status"`
	Changed           bool        `json:"changed"`
	Fingerprint       string      `json:"fingerprint"`
	EventsFound       int         `json:"events_found"`
	ReservationsFound int         `json:"reservations_found"`
	BlockedFound      int         `json:"blocked_found"`
	Dropped           int         `json:"dropped"`
	NewCount          int         `json:"new_count"`
	UpdatedCount      int         `json:"updated_count"`
	DisappearedCount  int         `json:"disappeared_count"`
	PerFeedResults    FeedResults `json:"per_feed_results"`
	SyncedAt          time.Time   `json:"synced_at"`
}

// Degraded reports whether at least one feed failed while others succeeded.
func (r *SyncResult) Degraded() bool {
	failed := 0
	for _, f := range r.PerFeedResults {
		if f.Status == SyncStatusError {
			failed++
		}
	}
	return failed > 0 && failed < len(r.PerFeedResults)
}
