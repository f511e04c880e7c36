package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/T1murKa41/pixilgnang/internal/conversation"
	"github.com/T1murKa41/pixilgnang/internal/delivery"
	"github.com/T1murKa41/pixilgnang/internal/gateway"
	"github.com/T1murKa41/pixilgnang/internal/httpapi"
	"github.com/T1murKa41/pixilgnang/internal/moderation"
	"github.com/T1murKa41/pixilgnang/internal/publish"
	"github.com/T1murKa41/pixilgnang/internal/scheduler"
	"github.com/T1murKa41/pixilgnang/internal/state"
	"github.com/T1murKa41/pixilgnang/internal/telegram"
)

// sweepSchedule is how often idle conversation sessions are expired.
const sweepSchedule = "@every 5m"

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	db, err := state.Open(ctx, dbPath(cfg))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	submissions := state.NewSubmissionStore(db)
	cooldowns := state.NewCooldownStore(db)
	posts := state.NewPostStore(db)
	users := state.NewUserStore(db)

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	adapter, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.SendRate)
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}
	notifier := delivery.NewNotifier(adapter, cfg.Telegram.LogChatID, nil)

	var mark *publish.Watermarker
	if cfg.WatermarkPath != "" {
		mark, err = publish.LoadWatermarker(cfg.WatermarkPath)
		if err != nil {
			return err
		}
	} else {
		slog.Warn("watermark disabled (no watermark_path)")
	}

	dispatcher := moderation.NewDispatcher(moderation.Deps{
		Submissions: submissions,
		Posts:       posts,
		Users:       users,
		Registry:    registry,
		Limiter:     moderation.NewLimiter(cooldowns, cfg.Cooldown()),
		Publisher:   publish.NewPipeline(adapter, mark),
		Messenger:   adapter,
		Notifier:    notifier,
	})

	machine := conversation.New(conversation.Config{
		Keywords:        cfg.ConversationKeywords(),
		ModeratorChatID: cfg.Telegram.ModeratorChatID,
	}, conversation.Deps{
		Store:     submissions,
		Messenger: adapter,
		Registry:  registry,
		Notifier:  notifier,
	})

	// Gateway
	gw := gateway.New(users, machine, dispatcher, adapter, registry, int64(cfg.MaxConcurrent))
	gw.SetRelay(gateway.NewRelay(users, adapter, cfg.Telegram.ModeratorChatID))
	gw.Start(ctx)
	defer gw.Stop()

	go adapter.Start(ctx, gw)

	// Scheduler
	sweep := sweepSchedule
	if cfg.SessionTTL() <= 0 {
		sweep = ""
	}
	sched := scheduler.New(
		scheduler.DigestJob(cfg.Digest.Schedule, submissions, notifier, cfg.Telegram.ModeratorChatID, cfg.DigestMinAge()),
		scheduler.SweepJob(sweep, machine, cfg.SessionTTL()),
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// Ops HTTP server
	if cfg.HTTP.Enabled {
		api := httpapi.NewServer(httpapi.Deps{
			DB:          db,
			Submissions: submissions,
			Cooldowns:   cooldowns,
			Sessions:    machine,
			Window:      cfg.Cooldown(),
		})
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           api,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	slog.Info("pixilgnang started",
		"bot", adapter.Username(),
		"data_dir", cfg.DataDir,
		"destinations", len(cfg.Destinations),
		"cooldown", cfg.Cooldown(),
		"max_concurrent", cfg.MaxConcurrent,
		"pid_file", pidPath,
	)
	if err := notifier.Log(ctx, "🟢 Bot started"); err != nil {
		slog.Warn("startup notice failed", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Release the database and the PID file before re-exec.
			cancel()
			gw.Stop()
			db.Close()
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				return fmt.Errorf("re-exec: %w", err)
			}
		}
		slog.Info("shutting down", "signal", sig)
		cancel()
		return nil
	}
}
