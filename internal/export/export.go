// Package export renders normalized timetable events for humans and other
// calendar software.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/emersion/go-ical"
	"gopkg.in/yaml.v3"

	"uvsqcal/internal/models"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatICS  Format = "ics"
)

// ProductID identifies this tool in generated calendars.
const ProductID = "-//uvsqcal//EN"

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatYAML, FormatICS}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats() {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// Options tunes the output.
type Options struct {
	// Group is mixed into calendar UIDs so one event keeps the same UID
	// across exports.
	Group string
	// Now stamps DTSTAMP in ics output. Zero means time.Now.
	Now time.Time
}

// Write renders events to w in the given format.
func Write(w io.Writer, format Format, events []models.Event, opts Options) error {
	switch format {
	case FormatText:
		return writeText(w, events)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(events); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatICS:
		return writeICS(w, events, opts)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeText(w io.Writer, events []models.Event) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tHEURE\tDUREE\tTYPE\tMATIERE\tLIEU")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", ev.Date, ev.Time, ev.Duration, ev.Type, ev.Subject, ev.Location)
	}
	return tw.Flush()
}

func writeICS(w io.Writer, events []models.Event, opts Options) error {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := NewCalendar()
	for _, ev := range events {
		cal.Children = append(cal.Children, EventComponent(ev, UID(ev, opts.Group), now))
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	return nil
}

// NewCalendar returns an empty VCALENDAR carrying the required properties.
func NewCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	return cal
}

// UID returns the iCalendar UID used for ev in group.
func UID(ev models.Event, group string) string {
	return ev.Key(group) + "@edt.uvsq.fr"
}

// EventComponent converts an event into a VEVENT.
func EventComponent(ev models.Event, uid string, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, Summary(ev))
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, ev.Start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.End)

	if ev.Type != "" {
		ve.Props.SetText(ical.PropDescription, ev.Type)
		ve.Props.SetText(ical.PropCategories, ev.Type)
	}
	if ev.Location != "" {
		ve.Props.SetText(ical.PropLocation, ev.Location)
	}
	return ve
}

// Summary is the title shown in calendar clients, e.g. "TD - Algorithmique".
func Summary(ev models.Event) string {
	if ev.Type == "" {
		return ev.Subject
	}
	return ev.Type + " - " + ev.Subject
}
