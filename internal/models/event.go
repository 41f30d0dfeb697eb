package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// eventNamespace scopes the name-based UUIDs derived by Event.Key.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://edt.uvsq.fr/"))

// Event is a normalized class-schedule entry.
// Text fields are accent-free and Date/Time are pre-formatted strings; the
// serialized keys follow the ones consumers of the agenda already rely on.
type Event struct {
	Subject  string `json:"matiere" yaml:"matiere"` // Module name
	Type     string `json:"type" yaml:"type"`       // Session type (CM, TD, TP, ...)
	Date     string `json:"date" yaml:"date"`       // DD-MM-YYYY
	Time     string `json:"heure" yaml:"heure"`     // HH:MM:SS
	Duration string `json:"duree" yaml:"duree"`     // H:MM:SS
	Location string `json:"lieu" yaml:"lieu"`       // Room / building

	// Start and End keep the parsed instants for calendar sinks.
	Start time.Time `json:"-" yaml:"-"`
	End   time.Time `json:"-" yaml:"-"`
}

// Key returns a stable identifier for the event within a group's schedule.
// Two fetches of the same session yield the same key.
func (e Event) Key(group string) string {
	name := group + "|" + e.Date + "|" + e.Time + "|" + e.Subject + "|" + e.Type
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

// SortEvents orders events by their formatted date, then time, comparing the
// strings as-is. Equal keys keep their input order.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		return events[i].Time < events[j].Time
	})
}
