package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"uvsqcal/internal/edt"
	"uvsqcal/internal/export"
	"uvsqcal/internal/models"
)

// DefaultStateFile is where synced event keys are remembered.
const DefaultStateFile = "sync-state.json"

// SyncState keeps track of which events have been synced.
// The key is the event key (models.Event.Key) and the value is the calendar UID.
type SyncState map[string]string

// EventSource yields normalized events for a request.
type EventSource interface {
	FetchEvents(ctx context.Context, req edt.Request) ([]models.Event, error)
}

// Sink is a calendar that accepts events.
type Sink interface {
	Name() string
	SyncEvent(ctx context.Context, event models.Event, uid string) error
}

// Options configures a Syncer.
type Options struct {
	Groups    []edt.Group
	Days      int // window length, today included; <= 0 means 7
	DryRun    bool
	TimeZone  *time.Location
	StateFile string
	Now       func() time.Time
}

// Syncer copies timetable events into calendar sinks.
type Syncer struct {
	logger    *slog.Logger
	source    EventSource
	sinks     []Sink
	groups    []edt.Group
	days      int
	dryRun    bool
	tz        *time.Location
	stateFile string
	now       func() time.Time
	state     SyncState
}

// NewSyncer creates a new Syncer, loading any existing state.
func NewSyncer(logger *slog.Logger, source EventSource, sinks []Sink, opts Options) (*Syncer, error) {
	if len(opts.Groups) == 0 {
		opts.Groups = []edt.Group{edt.DefaultGroup}
	}
	if opts.Days <= 0 {
		opts.Days = 7
	}
	if opts.TimeZone == nil {
		opts.TimeZone = time.Local
	}
	if opts.StateFile == "" {
		opts.StateFile = DefaultStateFile
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	state, err := loadState(opts.StateFile)
	if err != nil {
		// If the file doesn't exist, we can start with an empty state.
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("No sync state file found, starting fresh.", "file", opts.StateFile)
			state = make(SyncState)
		} else {
			return nil, fmt.Errorf("failed to load sync state: %w", err)
		}
	}

	return &Syncer{
		logger:    logger,
		source:    source,
		sinks:     sinks,
		groups:    opts.Groups,
		days:      opts.Days,
		dryRun:    opts.DryRun,
		tz:        opts.TimeZone,
		stateFile: opts.StateFile,
		now:       opts.Now,
		state:     state,
	}, nil
}

// Window returns the request bounds for the next sync, in DD/MM/YYYY.
func (s *Syncer) Window() (string, string) {
	today := s.now().In(s.tz)
	return today.Format(edt.DateLayout), today.AddDate(0, 0, s.days-1).Format(edt.DateLayout)
}

// Sync performs a full synchronization cycle. Groups are fetched one after
// the other; a group that fails to fetch is logged and skipped.
func (s *Syncer) Sync(ctx context.Context) error {
	s.logger.Info("Starting sync cycle.")
	start, end := s.Window()

	var fetchErrs []error
	for _, group := range s.groups {
		events, err := s.source.FetchEvents(ctx, edt.Request{Start: start, End: end, Group: group})
		if err != nil {
			s.logger.Error("Could not fetch timetable for a group", "group", group, "error", err)
			fetchErrs = append(fetchErrs, fmt.Errorf("group %s: %w", group, err))
			continue
		}
		s.logger.Info("Fetched timetable events.", "group", group, "count", len(events))

		for _, event := range events {
			if err := s.syncEvent(ctx, group, event); err != nil {
				s.logger.Error("Failed to sync event", "subject", event.Subject, "date", event.Date, "error", err)
				// Continue with the next event even if one fails.
			}
		}
	}

	if !s.dryRun {
		if err := s.saveState(); err != nil {
			s.logger.Error("Failed to save sync state", "error", err)
		}
	}

	s.logger.Info("Sync cycle finished.")
	if len(fetchErrs) == len(s.groups) {
		return fmt.Errorf("failed to fetch timetable events: %w", errors.Join(fetchErrs...))
	}
	return nil
}

// syncEvent handles the logic for syncing a single event.
func (s *Syncer) syncEvent(ctx context.Context, group edt.Group, event models.Event) error {
	key := event.Key(group.String())
	if _, exists := s.state[key]; exists {
		s.logger.Debug("Event already synced, skipping.", "subject", event.Subject, "key", key)
		return nil
	}

	uid := export.UID(event, group.String())
	s.logger.Info("New event found, syncing.", "subject", event.Subject, "date", event.Date, "time", event.Time)

	// Adjust times to the primary timezone
	event.Start = event.Start.In(s.tz)
	event.End = event.End.In(s.tz)

	if s.dryRun {
		s.logger.Info("[DRY RUN] Would create event", "subject", event.Subject, "startTime", event.Start, "sinks", len(s.sinks))
		return nil
	}

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.SyncEvent(ctx, event, uid); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	// If successful, update the state.
	s.state[key] = uid
	return nil
}

// loadState loads the sync state from the JSON file.
func loadState(path string) (SyncState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state == nil {
		state = make(SyncState)
	}
	return state, nil
}

// saveState saves the current sync state to the JSON file.
func (s *Syncer) saveState() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync state: %w", err)
	}
	return os.WriteFile(s.stateFile, data, 0o644)
}
