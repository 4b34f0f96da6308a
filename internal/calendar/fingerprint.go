package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/hostdesk/backend/internal/storage/models"
)

// Fingerprint returns a digest of an event set that does not depend on the
// order of events.
func Fingerprint(events []models.ParsedEvent) string {
	sorted := make([]models.ParsedEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.UID != b.UID {
			return a.UID < b.UID
		}
		if !a.CheckIn.Equal(b.CheckIn) {
			return a.CheckIn.Before(b.CheckIn)
		}
		if !a.CheckOut.Equal(b.CheckOut) {
			return a.CheckOut.Before(b.CheckOut)
		}
		if a.Summary != b.Summary {
			return a.Summary < b.Summary
		}
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		return fingerprintLine(a) < fingerprintLine(b)
	})

	h := sha256.New()
	for _, e := range sorted {
		h.Write([]byte(fingerprintLine(e)))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// fingerprintLine serializes every field the reconciler copies onto a
// staging record, so a change to any of them is a change to the digest.
func fingerprintLine(e models.ParsedEvent) string {
	var line strings.Builder
	for i, field := range []string{
		e.UID,
		e.Platform,
		e.CheckIn.String(),
		e.CheckOut.String(),
		e.Summary,
		strconv.FormatBool(e.IsReservation),
		e.FeedID,
		e.GuestNameHint,
		e.PhoneLastFour,
	} {
		if i > 0 {
			line.WriteByte('|')
		}
		line.WriteString(field)
	}
	line.WriteByte('\n')
	return line.String()
}

// FingerprintStore persists the last fingerprint per property.
type FingerprintStore interface {
	Get(ctx context.Context, propertyID string) (*models.SyncFingerprint, error)
	Upsert(ctx context.Context, fp *models.SyncFingerprint) error
}

// ChangeDetector compares fingerprints with the one stored by the previous sync.
type ChangeDetector struct {
	store FingerprintStore
}

// NewChangeDetector creates a change detector backed by store.
func NewChangeDetector(store FingerprintStore) *ChangeDetector {
	return &ChangeDetector{store: store}
}

// HasChanged reports whether fingerprint differs from the stored one.
// A property without a stored fingerprint has always changed.
func (d *ChangeDetector) HasChanged(ctx context.Context, propertyID, fingerprint string) (bool, error) {
	stored, err := d.store.Get(ctx, propertyID)
	if err != nil {
		return false, err
	}
	if stored == nil {
		return true, nil
	}
	return stored.Checksum != fingerprint, nil
}

// Record stores fingerprint as the latest for the property.
func (d *ChangeDetector) Record(ctx context.Context, propertyID, fingerprint string, eventCount int) error {
	return d.store.Upsert(ctx, &models.SyncFingerprint{
		PropertyID: propertyID,
		Checksum:   fingerprint,
		EventCount: eventCount,
	})
}
