// deskflow is the terminal support client: a guided ticket-intake chat
// plus a live dashboard over the deskflow backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/deskflow-io/deskflow/internal/apiclient"
	"github.com/deskflow-io/deskflow/internal/channel"
	"github.com/deskflow-io/deskflow/internal/config"
	"github.com/deskflow-io/deskflow/internal/conversation"
	"github.com/deskflow-io/deskflow/internal/jobs"
	"github.com/deskflow-io/deskflow/internal/localstate"
	"github.com/deskflow-io/deskflow/internal/notify"
	"github.com/deskflow-io/deskflow/internal/ticketview"
	"github.com/deskflow-io/deskflow/internal/tui"
	"github.com/deskflow-io/deskflow/pkg/protocol"
)

// draftMaxAge is how long an untouched message draft survives before
// the prune job removes it.
const draftMaxAge = 7 * 24 * time.Hour

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// The TUI owns stdout, so logs go to a file under the data dir. The
	// notify tee surfaces warnings and errors in the status bar.
	if err := os.MkdirAll(cfg.Local.Dir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "data dir:", err)
		os.Exit(1)
	}
	logPath := filepath.Join(cfg.Local.Dir, "deskflow.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintln(os.Stderr, "log file:", err)
		os.Exit(1)
	}
	defer logFile.Close()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	notices := notify.New(200)
	jsonHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(notify.NewHandler(jsonHandler, notices))
	slog.SetDefault(logger)

	logger.Info("deskflow starting", "api", cfg.API.BaseURL, "channel", cfg.Channel.URL)

	store, err := localstate.Open(cfg.Local.Dir, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer store.Close()

	api := apiclient.New(cfg.API.BaseURL,
		apiclient.WithTimeout(time.Duration(cfg.API.TimeoutSec)*time.Second),
		apiclient.WithRetries(cfg.API.Retries),
		apiclient.WithRetryDelay(time.Duration(cfg.API.RetryDelay)),
		apiclient.WithLogger(logger),
	)

	ch := channel.New(channel.Config{
		URL: cfg.Channel.URL,
		Join: protocol.JoinPayload{
			Type:   cfg.Channel.Room,
			UserID: cfg.Channel.UserID,
		},
		Heartbeat:         time.Duration(cfg.Channel.HeartbeatSec) * time.Second,
		ReconnectAttempts: cfg.Channel.ReconnectAttempts,
		ReconnectDelay:    time.Duration(cfg.Channel.ReconnectDelaySec) * time.Second,
	}, logger)
	defer ch.Close()

	session := conversation.NewSession(api, store, ch, logger)

	// The UI and the view-model reference each other: the debounced
	// search needs to wake the UI when its fetch lands.
	var ui *tui.Model
	tickets := ticketview.New(api,
		ticketview.WithLogger(logger),
		ticketview.WithOnChange(func() {
			if ui != nil {
				ui.PostSearchReload()
			}
		}),
	)

	ui = tui.New(tui.Deps{
		Session: session,
		Tickets: tickets,
		Channel: ch,
		Notices: notices,
		Logger:  logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ch.Connect(ctx)

	runner := jobs.New(logger)
	if err := runner.Add("stats-refresh", cfg.Jobs.StatsRefresh, func(ctx context.Context) {
		if err := tickets.RefreshStats(ctx); err != nil {
			logger.Debug("stats refresh failed", "error", err)
			return
		}
		ui.PostSearchReload()
	}); err != nil {
		logger.Error("job setup failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Add("draft-prune", cfg.Jobs.DraftPrune, func(context.Context) {
		n, err := store.PruneDrafts(time.Now().Add(-draftMaxAge))
		if err != nil {
			logger.Warn("draft prune failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("stale drafts pruned", "count", n)
		}
	}); err != nil {
		logger.Error("job setup failed", "error", err)
		os.Exit(1)
	}
	go safeGo(logger, "jobs", func() { runner.Start(ctx) })

	prog := tea.NewProgram(ui, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		prog.Quit()
	}()

	if _, err := prog.Run(); err != nil {
		logger.Error("ui exited", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Info("deskflow stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
