package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uvsqcal/internal/edt"
	"uvsqcal/internal/models"
)

type sourceStub struct {
	events   map[edt.Group][]models.Event
	err      error
	requests []edt.Request
}

func (s *sourceStub) FetchEvents(ctx context.Context, req edt.Request) ([]models.Event, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.events[req.Group], nil
}

type sinkStub struct {
	err    error
	events []models.Event
	uids   []string
}

func (s *sinkStub) Name() string { return "stub" }

func (s *sinkStub) SyncEvent(ctx context.Context, event models.Event, uid string) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	s.uids = append(s.uids, uid)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(t *testing.T) Options {
	t.Helper()
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return Options{
		Groups:    []edt.Group{edt.GroupS6InfoTD01},
		Days:      7,
		TimeZone:  paris,
		StateFile: filepath.Join(t.TempDir(), "state.json"),
		Now:       func() time.Time { return time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC) },
	}
}

func twoEvents() []models.Event {
	return []models.Event{
		{Subject: "Algo", Type: "TD", Date: "04-03-2024", Time: "10:00:00",
			Start: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)},
		{Subject: "Reseaux", Type: "CM", Date: "05-03-2024", Time: "08:00:00",
			Start: time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)},
	}
}

func TestWindow(t *testing.T) {
	s, err := NewSyncer(discardLogger(), &sourceStub{}, nil, testOptions(t))
	require.NoError(t, err)

	start, end := s.Window()
	assert.Equal(t, "04/03/2024", start)
	assert.Equal(t, "10/03/2024", end)
}

func TestSyncPushesNewEventsAndRemembersThem(t *testing.T) {
	opts := testOptions(t)
	source := &sourceStub{events: map[edt.Group][]models.Event{edt.GroupS6InfoTD01: twoEvents()}}
	sink := &sinkStub{}

	s, err := NewSyncer(discardLogger(), source, []Sink{sink}, opts)
	require.NoError(t, err)
	require.NoError(t, s.Sync(context.Background()))

	require.Len(t, source.requests, 1)
	assert.Equal(t, edt.Request{Start: "04/03/2024", End: "10/03/2024", Group: edt.GroupS6InfoTD01}, source.requests[0])
	require.Len(t, sink.events, 2)
	assert.Equal(t, "Europe/Paris", sink.events[0].Start.Location().String())
	assert.Equal(t, 10, sink.events[0].Start.Hour())
	assert.Contains(t, sink.uids[0], "@edt.uvsq.fr")

	_, err = os.Stat(opts.StateFile)
	require.NoError(t, err)

	// A fresh syncer reading the same state skips everything.
	again := &sinkStub{}
	s2, err := NewSyncer(discardLogger(), source, []Sink{again}, opts)
	require.NoError(t, err)
	require.NoError(t, s2.Sync(context.Background()))
	assert.Empty(t, again.events)
}

func TestSyncDryRunTouchesNothing(t *testing.T) {
	opts := testOptions(t)
	opts.DryRun = true
	source := &sourceStub{events: map[edt.Group][]models.Event{edt.GroupS6InfoTD01: twoEvents()}}
	sink := &sinkStub{}

	s, err := NewSyncer(discardLogger(), source, []Sink{sink}, opts)
	require.NoError(t, err)
	require.NoError(t, s.Sync(context.Background()))

	assert.Empty(t, sink.events)
	_, err = os.Stat(opts.StateFile)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSyncSinkFailureIsRetriedNextCycle(t *testing.T) {
	opts := testOptions(t)
	source := &sourceStub{events: map[edt.Group][]models.Event{edt.GroupS6InfoTD01: twoEvents()}}
	failing := &sinkStub{err: errors.New("boom")}

	s, err := NewSyncer(discardLogger(), source, []Sink{failing}, opts)
	require.NoError(t, err)
	require.NoError(t, s.Sync(context.Background()))
	assert.Empty(t, s.state)

	working := &sinkStub{}
	s.sinks = []Sink{working}
	require.NoError(t, s.Sync(context.Background()))
	assert.Len(t, working.events, 2)
}

func TestSyncFetchFailure(t *testing.T) {
	opts := testOptions(t)
	opts.Groups = []edt.Group{edt.GroupS6InfoTD01, edt.GroupS6InfoTD02}

	s, err := NewSyncer(discardLogger(), &sourceStub{err: edt.ErrUnknownGroup}, nil, opts)
	require.NoError(t, err)
	err = s.Sync(context.Background())
	assert.ErrorIs(t, err, edt.ErrUnknownGroup)
}

func TestSyncPartialFetchFailureIsNotFatal(t *testing.T) {
	opts := testOptions(t)
	opts.Groups = []edt.Group{edt.GroupS6InfoTD01, edt.GroupS6InfoTD02}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("federationIds[]") == string(edt.GroupS6InfoTD02) {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"start":"2024-03-04T10:00:00","end":"2024-03-04T12:00:00","modules":["Algo"],"description":"TD<br />Bat A<br />"}]`))
	}))
	defer srv.Close()

	client := edt.New(edt.WithEndpoint(srv.URL), edt.WithLocation(opts.TimeZone), edt.WithClock(opts.Now))
	sink := &sinkStub{}
	s, err := NewSyncer(discardLogger(), client, []Sink{sink}, opts)
	require.NoError(t, err)
	require.NoError(t, s.Sync(context.Background()))

	require.Len(t, sink.events, 1)
	assert.Equal(t, "Algo", sink.events[0].Subject)
	assert.Equal(t, "Bat A", sink.events[0].Location)
}

func TestNewSyncerRejectsCorruptState(t *testing.T) {
	opts := testOptions(t)
	require.NoError(t, os.WriteFile(opts.StateFile, []byte("{not json"), 0o644))

	_, err := NewSyncer(discardLogger(), &sourceStub{}, nil, opts)
	assert.Error(t, err)
}
