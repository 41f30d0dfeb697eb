package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"uvsqcal/internal/edt"
	"uvsqcal/internal/export"
	"uvsqcal/internal/google"
	"uvsqcal/internal/icloud"
	"uvsqcal/internal/syncer"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "uvsqcal",
		Usage: "Fetch the UVSQ timetable and push it to your calendars.",
		Commands: []*cli.Command{
			agendaCommand(),
			exportCommand(),
			groupsCommand(),
			authCommand(),
			syncCommand(),
		},
	}
}

func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "start", Usage: "First day, DD/MM/YYYY (default today)"},
		&cli.StringFlag{Name: "end", Usage: "Last day, DD/MM/YYYY (default today)"},
		&cli.StringFlag{Name: "group", Value: string(edt.DefaultGroup), Usage: "Group to fetch"},
	}
}

func agendaCommand() *cli.Command {
	return &cli.Command{
		Name:  "agenda",
		Usage: "Print the normalized timetable.",
		Flags: append(rangeFlags(),
			&cli.StringFlag{Name: "format", Value: string(export.FormatText), Usage: "text, json, yaml or ics"},
		),
		Action: func(c *cli.Context) error {
			format, err := export.ParseFormat(c.String("format"))
			if err != nil {
				return err
			}
			return writeAgenda(c, c.App.Writer, format)
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the timetable to an .ics file.",
		Flags: append(rangeFlags(),
			&cli.StringFlag{Name: "out", Value: "edt.ics", Usage: "Output file"},
		),
		Action: func(c *cli.Context) error {
			f, err := os.Create(c.String("out"))
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			if err := writeAgenda(c, f, export.FormatICS); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
}

func writeAgenda(c *cli.Context, w io.Writer, format export.Format) error {
	logger := setupLogger(os.Getenv("LOG_LEVEL"))
	loc, err := primaryTimeZone()
	if err != nil {
		return err
	}

	group, err := edt.ParseGroup(c.String("group"))
	if err != nil {
		return err
	}

	client, err := newEDTClient(logger)
	if err != nil {
		return err
	}
	events, err := client.FetchEvents(c.Context, edt.Request{
		Start: c.String("start"),
		End:   c.String("end"),
		Group: group,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch timetable: %w", err)
	}
	for i := range events {
		events[i].Start = events[i].Start.In(loc)
		events[i].End = events[i].End.In(loc)
	}

	return export.Write(w, format, events, export.Options{Group: group.String()})
}

func groupsCommand() *cli.Command {
	return &cli.Command{
		Name:  "groups",
		Usage: "List the groups whose timetable can be fetched.",
		Action: func(c *cli.Context) error {
			for _, g := range edt.Groups() {
				fmt.Fprintln(c.App.Writer, g)
			}
			return nil
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			config, err := google.GetOAuthConfigForAuthFlow(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, config, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'personal', 'university'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			tokenFile := google.TokenPath(".", accountName)

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)

			gClient, err := google.NewClient(c.Context, logger, os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"), ".", accountName, "")
			if err != nil {
				return err
			}
			calendars, err := gClient.DiscoverCalendars(c.Context)
			if err != nil {
				logger.Warn("Could not list calendars", "error", err)
				return nil
			}
			fmt.Println("Writable calendars (set GOOGLE_CALENDAR_ID to one of these):")
			for id, summary := range calendars {
				fmt.Printf("  %s\t%s\n", id, summary)
			}
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Push the timetable to Google Calendar and/or a CalDAV calendar.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run the sync cycle once and exit."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be synced without making changes."},
			&cli.IntFlag{Name: "watch", Value: 3600, Usage: "Run sync every N seconds. Overrides --once."},
			&cli.IntFlag{Name: "days", Value: 14, Usage: "Number of days to sync, starting today."},
			&cli.StringFlag{Name: "state", Value: syncer.DefaultStateFile, Usage: "Sync state file."},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("watch") && c.Int("watch") <= 0 {
				return fmt.Errorf("--watch must be a positive number of seconds, got %d", c.Int("watch"))
			}

			logLevel := os.Getenv("LOG_LEVEL")
			if logLevel == "" {
				logLevel = "info"
			}
			logger := setupLogger(logLevel)

			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			loc, err := primaryTimeZone()
			if err != nil {
				return err
			}

			groups, err := parseGroups(os.Getenv("EDT_GROUPS"))
			if err != nil {
				return err
			}

			sinks, err := buildSinks(c.Context, logger)
			if err != nil {
				return err
			}
			if len(sinks) == 0 && !c.Bool("dry-run") {
				return fmt.Errorf("no calendar configured: run 'auth' for Google or set ICLOUD_USERNAME")
			}
			logger.Info("Initialized calendar sinks.", "count", len(sinks))

			client, err := newEDTClient(logger)
			if err != nil {
				return err
			}

			s, err := syncer.NewSyncer(logger, client, sinks, syncer.Options{
				Groups:    groups,
				Days:      c.Int("days"),
				DryRun:    c.Bool("dry-run"),
				TimeZone:  loc,
				StateFile: c.String("state"),
			})
			if err != nil {
				return fmt.Errorf("failed to create syncer: %w", err)
			}

			// --watch flag takes precedence
			if c.IsSet("watch") {
				interval := time.Duration(c.Int("watch")) * time.Second
				logger.Info("Starting watcher.", "interval", interval)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if err := s.Sync(c.Context); err != nil {
						logger.Error("Sync cycle failed", "error", err)
					}
					select {
					case <-c.Context.Done():
						return nil
					case <-ticker.C:
					}
				}
			}

			// --once is the default behavior if --watch is not set
			logger.Info("Running a single sync cycle.")
			if err := s.Sync(c.Context); err != nil {
				return fmt.Errorf("single sync cycle failed: %w", err)
			}
			return nil
		},
	}
}

func buildSinks(ctx context.Context, logger *slog.Logger) ([]syncer.Sink, error) {
	var sinks []syncer.Sink

	accounts, err := google.GetTokenAccounts(".")
	if err != nil {
		return nil, fmt.Errorf("could not look for google accounts: %w", err)
	}
	for _, acc := range accounts {
		gClient, err := google.NewClient(ctx, logger, os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"), ".", acc, os.Getenv("GOOGLE_CALENDAR_ID"))
		if err != nil {
			return nil, fmt.Errorf("failed to create google client for account %s: %w", acc, err)
		}
		sinks = append(sinks, gClient)
	}

	if username := os.Getenv("ICLOUD_USERNAME"); username != "" {
		iClient, err := icloud.NewClient(ctx, logger, icloud.Config{
			Endpoint:     os.Getenv("CALDAV_ENDPOINT"),
			Username:     username,
			Password:     os.Getenv("ICLOUD_APP_SPECIFIC_PASSWORD"),
			CalendarName: os.Getenv("ICLOUD_CALENDAR_NAME"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav client: %w", err)
		}
		sinks = append(sinks, iClient)
	}
	return sinks, nil
}

// newEDTClient reads the endpoint's timestamps in EDT_TIMEZONE, which is
// unrelated to the zone events are displayed in.
func newEDTClient(logger *slog.Logger) (*edt.Client, error) {
	loc, err := loadTimeZone(os.Getenv("EDT_TIMEZONE"), edt.SourceTimeZone)
	if err != nil {
		return nil, err
	}
	opts := []edt.Option{edt.WithLogger(logger), edt.WithLocation(loc)}
	if endpoint := os.Getenv("EDT_ENDPOINT"); endpoint != "" {
		opts = append(opts, edt.WithEndpoint(endpoint))
	}
	return edt.New(opts...), nil
}

func parseGroups(s string) ([]edt.Group, error) {
	if strings.TrimSpace(s) == "" {
		return []edt.Group{edt.DefaultGroup}, nil
	}
	var groups []edt.Group
	for _, name := range strings.Split(s, ",") {
		g, err := edt.ParseGroup(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func primaryTimeZone() (*time.Location, error) {
	return loadTimeZone(os.Getenv("PRIMARY_TIMEZONE"), "Europe/Paris")
}

func loadTimeZone(tzStr, fallback string) (*time.Location, error) {
	if tzStr == "" {
		tzStr = fallback
	}
	loc, err := time.LoadLocation(tzStr)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", tzStr, err)
	}
	return loc, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
