package icloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-webdav/caldav"

	"uvsqcal/internal/export"
	"uvsqcal/internal/models"
)

const (
	// DefaultEndpoint is the iCloud CalDAV root. Any CalDAV server works.
	DefaultEndpoint = "https://caldav.icloud.com/"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "uvsqcal/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient pushes timetable events into one CalDAV calendar.
type CalDAVClient struct {
	caldavClient *caldav.Client
	logger       *slog.Logger
	calendarPath string
	now          func() time.Time
}

// Config holds what is needed to reach a calendar.
type Config struct {
	Endpoint     string // defaults to DefaultEndpoint
	Username     string
	Password     string
	CalendarName string
	Transport    http.RoundTripper // defaults to http.DefaultTransport
}

// NewClient connects to the server and resolves the calendar by display name.
func NewClient(ctx context.Context, logger *slog.Logger, cfg Config) (*CalDAVClient, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	httpClient := &http.Client{Transport: &customTransport{
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	}}

	caldavClient, err := caldav.NewClient(httpClient, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	c := &CalDAVClient{
		caldavClient: caldavClient,
		logger:       logger,
		now:          time.Now,
	}

	logger.Info("Finding CalDAV calendar", "calendarName", cfg.CalendarName)
	calendarPath, err := c.findCalendar(ctx, cfg.CalendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", cfg.CalendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return c, nil
}

// Name identifies the sink in logs.
func (c *CalDAVClient) Name() string { return "caldav" }

// SyncEvent creates or replaces the calendar object for uid.
func (c *CalDAVClient) SyncEvent(ctx context.Context, event models.Event, uid string) error {
	c.logger.Debug("Syncing event to CalDAV", "subject", event.Subject, "uid", uid)

	cal := export.NewCalendar()
	cal.Children = append(cal.Children, export.EventComponent(event, uid, c.now()))

	eventPath := path.Join(c.calendarPath, objectName(uid))
	if _, err := c.caldavClient.PutCalendarObject(ctx, eventPath, cal); err != nil {
		return fmt.Errorf("failed to put event on CalDAV server: %w", err)
	}

	c.logger.Info("Successfully synced event to CalDAV", "subject", event.Subject, "date", event.Date, "time", event.Time)
	return nil
}

// objectName turns a UID into a file name safe for a URL path.
func objectName(uid string) string {
	name := strings.NewReplacer("@", "_", "/", "_").Replace(uid)
	return name + ".ics"
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
