package edt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"uvsqcal/internal/models"
)

const (
	// TimestampLayout is the local timestamp format used by the endpoint.
	TimestampLayout = "2006-01-02T15:04:05"

	eventDateLayout = "02-01-2006"
	eventTimeLayout = "15:04:05"

	// segmentSeparator stands in for <br /> while splitting a description.
	// U+2063 never shows up in the upstream text.
	segmentSeparator = "\u2063"

	// descriptionSegments is how many leading segments a description must have.
	descriptionSegments = 3
)

// Description holds the positional fields of an event description.
type Description struct {
	SessionType string
	Location    string
}

// ParseDescription decodes an HTML-escaped, <br />-delimited description.
// The first segment is the session type and the second the location; the
// third is required but unused. Segments past the third are ignored.
func ParseDescription(raw string) (Description, error) {
	s := html.UnescapeString(raw)
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "<br />", segmentSeparator)

	parts := strings.Split(Transliterate(s), segmentSeparator)
	if len(parts) < descriptionSegments {
		return Description{}, fmt.Errorf("%w: want at least %d segments, got %d in %q",
			ErrMalformedDescription, descriptionSegments, len(parts), raw)
	}
	return Description{SessionType: parts[0], Location: parts[1]}, nil
}

// Normalize converts raw records into events and sorts them by formatted
// date then time. Timestamps are read in loc; a nil loc means time.Local.
func Normalize(raws []RawEvent, loc *time.Location) ([]models.Event, error) {
	if loc == nil {
		loc = time.Local
	}

	events := make([]models.Event, 0, len(raws))
	for i, raw := range raws {
		ev, err := normalizeOne(raw, loc)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, ev)
	}

	models.SortEvents(events)
	return events, nil
}

func normalizeOne(raw RawEvent, loc *time.Location) (models.Event, error) {
	// Wall-clock values: Date, Time and Duration ignore DST transitions.
	start, err := time.Parse(TimestampLayout, raw.Start)
	if err != nil {
		return models.Event{}, fmt.Errorf("%w: start: %v", ErrMalformedEvent, err)
	}
	end, err := time.Parse(TimestampLayout, raw.End)
	if err != nil {
		return models.Event{}, fmt.Errorf("%w: end: %v", ErrMalformedEvent, err)
	}
	if len(raw.Modules) == 0 {
		return models.Event{}, fmt.Errorf("%w: no module", ErrMalformedEvent)
	}

	desc, err := ParseDescription(raw.Description)
	if err != nil {
		return models.Event{}, err
	}

	return models.Event{
		Subject:  Transliterate(html.UnescapeString(raw.Modules[0])),
		Type:     desc.SessionType,
		Date:     start.Format(eventDateLayout),
		Time:     start.Format(eventTimeLayout),
		Duration: FormatDuration(end.Sub(start)),
		Location: desc.Location,
		Start:    inLocation(start, loc),
		End:      inLocation(end, loc),
	}, nil
}

// inLocation reads the wall clock of t as a time in loc.
func inLocation(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// FormatDuration renders d as H:MM:SS with no padding on the hour. Spans of a
// day or more get a "N day(s), " prefix and negative spans borrow whole days,
// so -1h renders as "-1 day, 23:00:00".
func FormatDuration(d time.Duration) string {
	micros := int64(d / time.Microsecond)
	const microsPerDay = int64(24 * time.Hour / time.Microsecond)

	days := micros / microsPerDay
	rem := micros % microsPerDay
	if rem < 0 {
		days--
		rem += microsPerDay
	}

	secs := rem / 1e6
	frac := rem % 1e6
	s := fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	if frac != 0 {
		s += fmt.Sprintf(".%06d", frac)
	}
	if days != 0 {
		unit := "days"
		if days == 1 || days == -1 {
			unit = "day"
		}
		s = fmt.Sprintf("%d %s, %s", days, unit, s)
	}
	return s
}

// FetchEvents fetches req and normalizes the result.
func (c *Client) FetchEvents(ctx context.Context, req Request) ([]models.Event, error) {
	raws, err := c.FetchRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	return Normalize(raws, c.location)
}
