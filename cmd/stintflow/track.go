package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"goa.design/clue/health"
	"goa.design/clue/log"

	"github.com/stintworks/stintflow/internal/logging"
	"github.com/stintworks/stintflow/internal/settings"
	"github.com/stintworks/stintflow/internal/store"
	"github.com/stintworks/stintflow/internal/telemetry"
	"github.com/stintworks/stintflow/internal/tires"
	"github.com/stintworks/stintflow/internal/tracker"
)

// defaultRaceLength backs the practice baseline when no race definition is
// reachable (fresh sessions, --dry-run).
const defaultRaceLength = "24:00:00"

func runTrack(args []string) {
	var sessionID string
	var drivers []string
	var practice bool
	var agentName string
	var dryRun bool
	var replayPath string
	var settingsPath string
	var debug bool

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--practice":
			practice = true
		case "--dry-run":
			dryRun = true
		case "--debug":
			debug = true
		case "--session-id":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--session-id requires a value")
				os.Exit(1)
			}
			sessionID = args[i]
		case "--drivers":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--drivers requires a value")
				os.Exit(1)
			}
			drivers = append(drivers, args[i])
		case "--agent-name":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--agent-name requires a value")
				os.Exit(1)
			}
			agentName = args[i]
		case "--replay":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--replay requires a value")
				os.Exit(1)
			}
			replayPath = args[i]
		case "--settings":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--settings requires a value")
				os.Exit(1)
			}
			settingsPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}

	if sessionID == "" {
		usage()
		os.Exit(1)
	}

	cfg, err := loadSettings(settingsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if agentName == "" {
		agentName = cfg.Agent.Name
	}

	sessionLog, err := openSessionLog(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer sessionLog.Close()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	opts := []log.LogOption{
		log.WithOutput(io.MultiWriter(os.Stderr, sessionLog)),
		log.WithFormat(format),
	}
	if debug {
		opts = append(opts, log.WithDebug())
	}
	ctx := log.Context(context.Background(), opts...)
	ctx = log.With(ctx, log.KV{K: "agent", V: agentName}, log.KV{K: "session", V: sessionID})

	var st tracker.Store
	raceLength := defaultRaceLength
	if dryRun {
		st = tracker.DryRunStore{}
		log.Printf(ctx, "dry-run: no documents will be written")
	} else {
		client, err := store.Connect(ctx, cfg.MongoDB)
		if err != nil {
			log.Errorf(ctx, err, "document store connection failed")
			os.Exit(1)
		}
		defer client.Close(context.Background())
		reportHealth(ctx, client)
		raceLength = resolveRaceLength(ctx, client, sessionID)
		st = client
	}

	var reader telemetry.Reader
	if replayPath != "" {
		reader = &telemetry.FileReader{Path: replayPath}
		log.Printf(ctx, "replaying telemetry from %s", replayPath)
	} else {
		reader = telemetry.NewSharedMemoryReader()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	tr := tracker.New(tracker.Options{
		SessionID:  sessionID,
		Drivers:    drivers,
		Practice:   practice,
		AgentName:  agentName,
		RaceLength: raceLength,
		Reader:     reader,
		Compounds:  tires.NewExtractor(),
		Store:      st,
		Events:     os.Stdout,
	})
	if err := tr.Run(ctx); err != nil {
		log.Errorf(ctx, err, "tracker stopped")
		os.Exit(1)
	}
}

func loadSettings(path string) (*settings.Settings, error) {
	if path == "" {
		p, err := settings.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return settings.Load(path)
}

func openSessionLog(cfg *settings.Settings) (*logging.SessionLog, error) {
	dir, err := logging.DefaultDir()
	if err != nil {
		return nil, err
	}
	return logging.Open(dir, cfg.Logging.RetentionDays, time.Now())
}

func reportHealth(ctx context.Context, client *store.Client) {
	checker := health.NewChecker(client)
	h, healthy := checker.Check(ctx)
	if !healthy {
		log.Printf(ctx, "store health degraded: %v", h.Status)
		return
	}
	log.Debugf(ctx, "store healthy")
}

// resolveRaceLength walks session -> race to find the configured length.
// Practice baselines fall back to a day-long race when the catalog has no
// entry yet.
func resolveRaceLength(ctx context.Context, client *store.Client, sessionID string) string {
	sess, err := client.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Errorf(ctx, err, "loading session %s", sessionID)
		}
		return defaultRaceLength
	}
	race, err := client.GetRace(ctx, sess.RaceID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Errorf(ctx, err, "loading race %s", sess.RaceID)
		}
		return defaultRaceLength
	}
	if race.Length == "" {
		return defaultRaceLength
	}
	return race.Length
}
