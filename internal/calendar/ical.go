// Package calendar provides iCal parsing and calendar sync functionality.
package calendar

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hostdesk/backend/internal/storage/models"
)

// maxLineBytes bounds a single physical feed line.
const maxLineBytes = 1 << 20

// Property is one content line of a VEVENT after unfolding.
type Property struct {
	Name   string
	Params map[string]string
	Value  string
}

// Param returns a parameter value, matching the name case-insensitively.
func (p Property) Param(name string) string {
	return p.Params[strings.ToUpper(name)]
}

// RawEvent is an unparsed VEVENT block.
type RawEvent struct {
	UID         string
	Summary     string
	Description string
	Start       string
	End         string
	// Props holds every top-level property of the block by upper-cased name.
	Props map[string][]Property
	// Raw is the unfolded source block, kept for debugging.
	Raw string
}

// Prop returns the first property with the given name.
func (e *RawEvent) Prop(name string) (Property, bool) {
	props := e.Props[strings.ToUpper(name)]
	if len(props) == 0 {
		return Property{}, false
	}
	return props[0], true
}

// ParseResult is the outcome of parsing one feed.
type ParseResult struct {
	Events []models.ParsedEvent
	// Dropped counts malformed blocks that were skipped.
	Dropped int
	// Blocked counts events classified as platform holds.
	Blocked int
}

// Reservations returns the events that represent bookable stays.
func (r *ParseResult) Reservations() []models.ParsedEvent {
	var out []models.ParsedEvent
	for _, e := range r.Events {
		if e.IsReservation {
			out = append(out, e)
		}
	}
	return out
}

// Parser parses iCal/ICS calendar feeds.
type Parser struct {
	extractors *Extractors
}

// NewParser creates a new iCal parser using the given platform extractors.
// A nil registry uses the built-in extractors.
func NewParser(extractors *Extractors) *Parser {
	if extractors == nil {
		extractors = NewExtractors(nil)
	}
	return &Parser{extractors: extractors}
}

// Parse reads a feed belonging to source and returns its events. Malformed
// blocks are counted and skipped. Only read errors are returned.
func (p *Parser) Parse(r io.Reader, source models.FeedSource) (*ParseResult, error) {
	raws, dropped, err := ReadRawEvents(r)
	if err != nil {
		return nil, err
	}

	platform := source.Platform
	if platform == "" {
		platform = models.PlatformGeneric
	}
	extractor := p.extractors.For(platform)

	result := &ParseResult{Dropped: dropped}
	for i := range raws {
		raw := &raws[i]

		event, err := buildEvent(raw)
		if err != nil {
			result.Dropped++
			log.Debug().
				Err(err).
				Str("feed_id", source.ID).
				Str("uid", raw.UID).
				Msg("dropping malformed event")
			continue
		}

		event.Platform = platform
		event.FeedID = source.ID
		event.SourceURL = source.URL
		event.IsReservation = !extractor.IsBlocked(raw)
		if event.IsReservation {
			event.GuestNameHint = extractor.GuestName(raw)
			event.PhoneLastFour = extractor.PhoneLastFour(raw)
		} else {
			result.Blocked++
		}

		result.Events = append(result.Events, event)
	}

	return result, nil
}

// buildEvent validates a raw block and converts its dates.
func buildEvent(raw *RawEvent) (models.ParsedEvent, error) {
	if raw.UID == "" {
		return models.ParsedEvent{}, fmt.Errorf("missing UID")
	}
	if raw.Start == "" || raw.End == "" {
		return models.ParsedEvent{}, fmt.Errorf("missing DTSTART or DTEND")
	}

	checkIn, err := parseDateValue(raw.Start)
	if err != nil {
		return models.ParsedEvent{}, fmt.Errorf("DTSTART: %w", err)
	}
	checkOut, err := parseDateValue(raw.End)
	if err != nil {
		return models.ParsedEvent{}, fmt.Errorf("DTEND: %w", err)
	}
	if !checkOut.After(checkIn) {
		return models.ParsedEvent{}, fmt.Errorf("DTEND %s not after DTSTART %s", checkOut, checkIn)
	}

	return models.ParsedEvent{
		UID:      raw.UID,
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Summary:  raw.Summary,
	}, nil
}

// parseDateValue reads the calendar day of a DATE or DATE-TIME value.
// Time parts and zone designators are ignored so that a stay never shifts
// across midnight.
func parseDateValue(value string) (models.Date, error) {
	value = strings.TrimSpace(value)
	if len(value) < 8 {
		return models.Date{}, fmt.Errorf("invalid date %q", value)
	}
	for _, c := range value[:8] {
		if c < '0' || c > '9' {
			return models.Date{}, fmt.Errorf("invalid date %q", value)
		}
	}
	if len(value) > 8 && value[8] != 'T' {
		return models.Date{}, fmt.Errorf("invalid date %q", value)
	}
	return models.ParseDate(value[:8])
}

// ReadRawEvents splits a feed into VEVENT blocks. Folded lines are joined
// before any key/value split. It also returns the number of blocks that were
// opened but never terminated.
func ReadRawEvents(r io.Reader) ([]RawEvent, int, error) {
	var (
		events  []RawEvent
		current *RawEvent
		raw     strings.Builder
		depth   int // nested components (VALARM) inside the current VEVENT
		dropped int
	)

	handle := func(line string) {
		prop, ok := parseContentLine(line)
		if !ok {
			return
		}

		switch {
		case prop.Name == "BEGIN" && strings.EqualFold(prop.Value, "VEVENT") && (current == nil || depth == 0):
			if current != nil {
				// Previous block was never closed.
				dropped++
			}
			current = &RawEvent{Props: make(map[string][]Property)}
			raw.Reset()
			depth = 0
			raw.WriteString(line)
			return
		case current == nil:
			return
		}

		raw.WriteString("\n")
		raw.WriteString(line)

		switch prop.Name {
		case "BEGIN":
			depth++
			return
		case "END":
			if strings.EqualFold(prop.Value, "VEVENT") && depth == 0 {
				current.Raw = raw.String()
				events = append(events, *current)
				current = nil
				return
			}
			if depth > 0 {
				depth--
			}
			return
		}
		if depth > 0 {
			return
		}

		current.Props[prop.Name] = append(current.Props[prop.Name], prop)
		switch prop.Name {
		case "UID":
			current.UID = strings.TrimSpace(prop.Value)
		case "SUMMARY":
			current.Summary = strings.TrimSpace(unescapeText(prop.Value))
		case "DESCRIPTION":
			current.Description = unescapeText(prop.Value)
		case "DTSTART":
			current.Start = prop.Value
		case "DTEND":
			current.End = prop.Value
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var logical strings.Builder
	pending := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		// Handle line continuation (lines starting with space or tab)
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			if pending {
				logical.WriteString(line[1:])
			}
			continue
		}

		if pending {
			handle(logical.String())
			logical.Reset()
		}
		logical.WriteString(line)
		pending = line != ""
	}
	if pending {
		handle(logical.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading calendar: %w", err)
	}

	if current != nil {
		dropped++
	}

	return events, dropped, nil
}

// parseContentLine splits "NAME;PARAM=X;P2="a:b":VALUE". Colons and
// semicolons inside quoted parameter values do not split.
func parseContentLine(line string) (Property, bool) {
	inQuote := false
	valueAt := -1
	var segments []string
	start := 0

	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				segments = append(segments, line[start:i])
				start = i + 1
			}
		case ':':
			if !inQuote {
				valueAt = i
			}
		}
		if valueAt >= 0 {
			break
		}
	}
	if valueAt < 0 {
		return Property{}, false
	}
	segments = append(segments, line[start:valueAt])

	prop := Property{
		Name:  strings.ToUpper(strings.TrimSpace(segments[0])),
		Value: line[valueAt+1:],
	}
	if prop.Name == "" {
		return Property{}, false
	}

	for _, seg := range segments[1:] {
		key, val, found := strings.Cut(seg, "=")
		if !found {
			continue
		}
		if prop.Params == nil {
			prop.Params = make(map[string]string)
		}
		prop.Params[strings.ToUpper(strings.TrimSpace(key))] = strings.Trim(val, `"`)
	}

	return prop, true
}

var textUnescaper = strings.NewReplacer(
	`\n`, "\n",
	`\N`, "\n",
	`\,`, ",",
	`\;`, ";",
	`\\`, `\`,
)

// unescapeText decodes iCal TEXT escapes.
func unescapeText(value string) string {
	return textUnescaper.Replace(value)
}
