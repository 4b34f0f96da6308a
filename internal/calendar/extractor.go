package calendar

import (
	"regexp"
	"strings"

	"github.com/hostdesk/backend/internal/storage/models"
)

// PlatformExtractor pulls platform-specific hints out of a raw event.
// Implementations must not assume any field is present.
type PlatformExtractor interface {
	// IsBlocked reports whether the event is a platform hold rather than a stay.
	IsBlocked(ev *RawEvent) bool
	// GuestName returns a guest name fragment, or "".
	GuestName(ev *RawEvent) string
	// PhoneLastFour returns the last four phone digits, or "".
	PhoneLastFour(ev *RawEvent) string
}

// Rules configures a rule-based extractor.
type Rules struct {
	// BlockedMarkers are case-insensitive summary fragments marking a hold.
	BlockedMarkers []string
	// NamePrefixes are stripped from the summary before it is read as a name.
	NamePrefixes []string
	// NameFromAttendee reads the guest name from the ATTENDEE or ORGANIZER CN parameter.
	NameFromAttendee bool
}

// Built-in rules per platform.
var builtinRules = map[string]Rules{
	models.PlatformAirbnb: {
		BlockedMarkers: []string{"Airbnb (Not available)", "Not available"},
		NamePrefixes:   []string{"Reserved -", "Reserved:", "Reserved"},
	},
	models.PlatformVrbo: {
		BlockedMarkers: []string{"Blocked", "Unavailable"},
		NamePrefixes:   []string{"Reserved -", "Reserved:", "Reserved"},
	},
	models.PlatformBooking: {
		BlockedMarkers:   []string{"CLOSED - Not available", "Not available"},
		NamePrefixes:     []string{"CLOSED -", "Booked -", "Booked"},
		NameFromAttendee: true,
	},
	models.PlatformGeneric: {
		BlockedMarkers: []string{"Blocked", "Not available", "Unavailable"},
		NamePrefixes:   []string{"Reserved -", "Reserved:", "Reserved", "Booked -", "Booked:", "Booked", "Reservation -", "Reservation"},
	},
}

// Summaries that carry no name once the prefixes are gone.
var placeholderNames = map[string]bool{
	"reserved":    true,
	"reservation": true,
	"booked":      true,
	"booking":     true,
	"guest":       true,
}

var (
	// Four digits in parentheses, e.g. "Jane D. (4821)".
	summaryPhonePattern = regexp.MustCompile(`\((\d{4})\)`)
	// Patterns like "(Last 4 Digits): XXXX" or "Last 4 Digits: XXXX".
	descriptionPhonePattern = regexp.MustCompile(`(?i)last 4 digits\)?:\s*(\d{4})`)
	// Platform confirmation codes such as "(HMABC12345)".
	confirmationCodePattern = regexp.MustCompile(`\([A-Z0-9]{6,}\)`)
)

// ruleExtractor is the PlatformExtractor behind every built-in platform.
type ruleExtractor struct {
	rules Rules
}

// NewRuleExtractor returns an extractor driven by rules.
func NewRuleExtractor(rules Rules) PlatformExtractor {
	return &ruleExtractor{rules: rules}
}

func (x *ruleExtractor) IsBlocked(ev *RawEvent) bool {
	summary := strings.ToLower(ev.Summary)
	for _, marker := range x.rules.BlockedMarkers {
		if marker != "" && strings.Contains(summary, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func (x *ruleExtractor) GuestName(ev *RawEvent) string {
	if x.rules.NameFromAttendee {
		for _, name := range []string{"ATTENDEE", "ORGANIZER"} {
			if prop, ok := ev.Prop(name); ok {
				if cn := strings.TrimSpace(prop.Param("CN")); cn != "" {
					return cn
				}
			}
		}
	}

	name := summaryPhonePattern.ReplaceAllString(ev.Summary, "")
	name = confirmationCodePattern.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	for _, prefix := range x.rules.NamePrefixes {
		if len(name) >= len(prefix) && strings.EqualFold(name[:len(prefix)], prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}
	name = strings.Trim(name, " -:")

	if placeholderNames[strings.ToLower(name)] {
		return ""
	}
	return name
}

func (x *ruleExtractor) PhoneLastFour(ev *RawEvent) string {
	if m := summaryPhonePattern.FindStringSubmatch(ev.Summary); len(m) > 1 {
		return m[1]
	}
	if m := descriptionPhonePattern.FindStringSubmatch(ev.Description); len(m) > 1 {
		return m[1]
	}
	return ""
}

// Extractors selects a PlatformExtractor by platform tag.
type Extractors struct {
	byPlatform map[string]PlatformExtractor
	fallback   PlatformExtractor
}

// NewExtractors returns the built-in extractors. Entries in overrides replace
// the built-in rules of a platform or add a new platform.
func NewExtractors(overrides map[string]Rules) *Extractors {
	x := &Extractors{byPlatform: make(map[string]PlatformExtractor)}
	for platform, rules := range builtinRules {
		x.byPlatform[platform] = NewRuleExtractor(rules)
	}
	for platform, rules := range overrides {
		x.byPlatform[strings.ToLower(platform)] = NewRuleExtractor(rules)
	}
	x.fallback = x.byPlatform[models.PlatformGeneric]
	return x
}

// Register adds or replaces the extractor for a platform.
func (x *Extractors) Register(platform string, e PlatformExtractor) {
	platform = strings.ToLower(platform)
	x.byPlatform[platform] = e
	if platform == models.PlatformGeneric {
		x.fallback = e
	}
}

// For returns the extractor of a platform. Unknown platforms get the generic one.
func (x *Extractors) For(platform string) PlatformExtractor {
	if e, ok := x.byPlatform[strings.ToLower(platform)]; ok {
		return e
	}
	return x.fallback
}
