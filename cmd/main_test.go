package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uvsqcal/internal/edt"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"uvsqcal"}, args...))
	return out.String(), err
}

func timetableServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "S6 INFO TD02", r.FormValue("federationIds[]"))
		_, _ = w.Write([]byte(`[{"start":"2024-03-04T10:00:00","end":"2024-03-04T12:00:00","modules":["Algo&egrave;re"],"description":"TD<br />Bat A<br />Extra"}]`))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("EDT_ENDPOINT", srv.URL)
	t.Setenv("EDT_TIMEZONE", "")
	t.Setenv("PRIMARY_TIMEZONE", "UTC")
	t.Setenv("LOG_LEVEL", "error")
	return srv
}

func TestGroupsCommand(t *testing.T) {
	out, err := runApp(t, "groups")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(edt.Groups()))
	assert.Equal(t, "S6 INFO", lines[0])
}

func TestAgendaCommandJSON(t *testing.T) {
	timetableServer(t)

	out, err := runApp(t, "agenda", "--start", "04/03/2024", "--end", "05/03/2024", "--group", "S6 INFO TD02", "--format", "json")
	require.NoError(t, err)

	var events []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	assert.Equal(t, []map[string]string{{
		"matiere": "Algoere",
		"type":    "TD",
		"date":    "04-03-2024",
		"heure":   "10:00:00",
		"duree":   "2:00:00",
		"lieu":    "Bat A",
	}}, events)
}

func TestAgendaCommandRejectsBadInput(t *testing.T) {
	timetableServer(t)

	_, err := runApp(t, "agenda", "--group", "L3 MATHS")
	assert.ErrorIs(t, err, edt.ErrUnknownGroup)

	_, err = runApp(t, "agenda", "--group", "S6 INFO TD02", "--format", "csv")
	assert.Error(t, err)

	_, err = runApp(t, "agenda", "--group", "S6 INFO TD02", "--start", "05/03/2024", "--end", "04/03/2024")
	assert.ErrorIs(t, err, edt.ErrInvalidRange)
}

func TestExportCommandWritesICS(t *testing.T) {
	timetableServer(t)
	out := filepath.Join(t.TempDir(), "edt.ics")

	_, err := runApp(t, "export", "--group", "S6 INFO TD02", "--start", "04/03/2024", "--end", "04/03/2024", "--out", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "BEGIN:VEVENT")
	assert.Contains(t, string(data), "SUMMARY:TD - Algoere")
	// 10:00 in Paris, written in the UTC display zone.
	assert.Contains(t, string(data), "DTSTART:20240304T090000Z")
}

func TestExportCommandKeepsSourceZoneApartFromDisplayZone(t *testing.T) {
	timetableServer(t)
	t.Setenv("PRIMARY_TIMEZONE", "America/New_York")
	out := filepath.Join(t.TempDir(), "edt.ics")

	_, err := runApp(t, "export", "--group", "S6 INFO TD02", "--start", "04/03/2024", "--end", "04/03/2024", "--out", out)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	cal, err := ical.NewDecoder(f).Decode()
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 1)
	start, err := events[0].DateTimeStart(nil)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", start.Location().String())
	assert.Equal(t, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), start.UTC())
}

func TestSyncCommandRejectsNonPositiveWatch(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	for _, arg := range []string{"--watch=0", "--watch=-5"} {
		_, err := runApp(t, "sync", arg)
		require.Error(t, err, arg)
		assert.Contains(t, err.Error(), "--watch must be a positive number of seconds")
	}
}

func TestParseGroups(t *testing.T) {
	groups, err := parseGroups("")
	require.NoError(t, err)
	assert.Equal(t, []edt.Group{edt.DefaultGroup}, groups)

	groups, err = parseGroups("S6 INFO TD01, M1 SECRETS gr 3")
	require.NoError(t, err)
	assert.Equal(t, []edt.Group{edt.GroupS6InfoTD01, edt.GroupM1SecretsGr3}, groups)

	_, err = parseGroups("S6 INFO TD01,nope")
	assert.ErrorIs(t, err, edt.ErrUnknownGroup)
}

func TestPrimaryTimeZone(t *testing.T) {
	t.Setenv("PRIMARY_TIMEZONE", "")
	loc, err := primaryTimeZone()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", loc.String())

	t.Setenv("PRIMARY_TIMEZONE", "Mars/Olympus")
	_, err = primaryTimeZone()
	assert.Error(t, err)
}
