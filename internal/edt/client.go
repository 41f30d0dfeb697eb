package edt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultEndpoint is the calendar data endpoint of the UVSQ timetable site.
	DefaultEndpoint = "https://edt.uvsq.fr/Home/GetCalendarData"

	// DateLayout is the DD/MM/YYYY format expected for request bounds.
	DateLayout = "02/01/2006"

	// SourceTimeZone is the zone of the endpoint's local timestamps.
	SourceTimeZone = "Europe/Paris"

	resourceType = "103"
	calendarView = "agendaDay"
)

// RawEvent is a timetable entry as returned by the endpoint.
type RawEvent struct {
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Modules     []string `json:"modules"`
	Description string   `json:"description"`
}

// Request selects a date range and a group. Both dates empty means today;
// an empty group means DefaultGroup.
type Request struct {
	Start string `validate:"required,datetime=02/01/2006"`
	End   string `validate:"required,datetime=02/01/2006"`
	Group Group  `validate:"required,group"`
}

// Client fetches and normalizes timetable data.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	location   *time.Location
	now        func() time.Time
	validate   *validator.Validate

	// today is resolved once in New and used for both bounds when a request
	// omits them.
	today string
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the calendar data URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient sets the HTTP client used for the request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger that receives transport diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock sets the clock used to resolve "today".
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLocation sets the zone the endpoint's local timestamps are read in.
// It defaults to SourceTimeZone.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.location = loc }
}

// New creates a Client. The current date is captured here and reused for
// every request that leaves the range empty.
func New(opts ...Option) *Client {
	c := &Client{
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		location:   sourceLocation(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.validate = validator.New()
	c.validate.RegisterValidation("group", func(fl validator.FieldLevel) bool {
		return Group(fl.Field().String()).Valid()
	})
	c.today = c.now().In(c.location).Format(DateLayout)
	return c
}

func sourceLocation() *time.Location {
	loc, err := time.LoadLocation(SourceTimeZone)
	if err != nil {
		// No tzdata on this host.
		return time.Local
	}
	return loc
}

// Today returns the date captured when the client was built.
func (c *Client) Today() string {
	return c.today
}

// FetchRaw validates req and posts it to the endpoint, returning the decoded
// records untouched. Validation failures never reach the network.
func (c *Client) FetchRaw(ctx context.Context, req Request) ([]RawEvent, error) {
	req, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("start", req.Start)
	form.Set("end", req.End)
	form.Set("resType", resourceType)
	form.Set("calView", calendarView)
	form.Set("federationIds[]", req.Group.String())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, c.fail(&TransportError{Kind: KindRequest, Err: err})
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug("Fetching timetable", "group", req.Group, "start", req.Start, "end", req.End)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.fail(classify(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(&TransportError{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Err:        errors.New(resp.Status),
		})
	}

	var raws []RawEvent
	if err := json.NewDecoder(resp.Body).Decode(&raws); err != nil {
		return nil, c.fail(&TransportError{Kind: KindRequest, Err: fmt.Errorf("decode response: %w", err)})
	}

	c.logger.Info("Fetched timetable", "group", req.Group, "count", len(raws))
	return raws, nil
}

// resolve applies defaults and checks the request. Date errors are reported
// before range errors, which are reported before group errors.
func (c *Client) resolve(req Request) (Request, error) {
	switch {
	case req.Start == "" && req.End == "":
		req.Start, req.End = c.today, c.today
	case req.Start == "" || req.End == "":
		return req, fmt.Errorf("%w: both bounds must be given together", ErrInvalidRange)
	}
	if req.Group == "" {
		req.Group = DefaultGroup
	}

	var badDate, badGroup bool
	if err := c.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return req, err
		}
		for _, fe := range verrs {
			switch fe.Field() {
			case "Start", "End":
				badDate = true
			case "Group":
				badGroup = true
			}
		}
	}
	if badDate {
		return req, fmt.Errorf("%w: start=%q end=%q", ErrInvalidDate, req.Start, req.End)
	}

	start, _ := time.Parse(DateLayout, req.Start)
	end, _ := time.Parse(DateLayout, req.End)
	if start.After(end) {
		return req, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, req.Start, req.End)
	}
	if badGroup {
		return req, fmt.Errorf("%w: %q", ErrUnknownGroup, req.Group)
	}
	return req, nil
}

func (c *Client) fail(err *TransportError) error {
	c.logger.Error("Timetable request failed", "kind", err.Kind, "error", err.Err)
	return err
}

func classify(err error) *TransportError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TransportError{Kind: KindTimeout, Err: err}
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return &TransportError{Kind: KindConnection, Err: err}
	}
	return &TransportError{Kind: KindRequest, Err: err}
}
