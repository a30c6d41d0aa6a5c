package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tutu-network/focus/internal/api"
	"github.com/tutu-network/focus/internal/app/account"
	"github.com/tutu-network/focus/internal/app/engagement"
	"github.com/tutu-network/focus/internal/app/session"
	"github.com/tutu-network/focus/internal/app/tasks"
	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/health"
	"github.com/tutu-network/focus/internal/infra/scheduler"
	"github.com/tutu-network/focus/internal/infra/sqlite"
)

// Version is reported by /api/version. Set by the CLI at startup.
var Version = "dev"

// Daemon is the focus runtime. It wires together all services.
type Daemon struct {
	Config   Config
	DB       *sqlite.DB
	Location *time.Location
	Server   *api.Server

	Accounts *account.Service
	Tasks    *tasks.Ledger
	Sessions *session.Service
	Levels   *engagement.LevelService
	Rewards  *engagement.RewardService
	Sweep    *scheduler.Sweep
	Health   *health.Checker

	logFile io.Closer
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("calendar zone: %w", err)
	}

	logFile, err := setupLogging(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	// Open SQLite
	db, err := sqlite.Open(focusHome())
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("open database: %w", err)
	}

	clock := domain.SystemClock{}
	d := &Daemon{
		Config:   cfg,
		DB:       db,
		Location: loc,
		Accounts: account.NewService(db, clock),
		Tasks:    tasks.NewLedger(db, clock, loc, cfg.Tasks.DailyLimit),
		Sessions: session.NewService(db, clock, loc),
		Levels:   engagement.NewLevelService(db),
		Rewards:  engagement.NewRewardService(db, clock, loc),
		logFile:  logFile,
	}

	d.Sweep, err = scheduler.NewSweep(db, d.Rewards, clock, cfg.SweepSettings(loc))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("sweep: %w", err)
	}

	// Health checker
	d.Health = health.NewChecker(db, focusHome(), d.Sweep)

	// Initialize API server
	d.Server = api.NewServer(api.Services{
		Accounts: d.Accounts,
		Tasks:    d.Tasks,
		Sessions: d.Sessions,
		Levels:   d.Levels,
		Rewards:  d.Rewards,
		Sweep:    d.Sweep,
		Health:   d.Health,
		Clock:    clock,
		Location: loc,
	}, api.Options{
		CORSOrigins:    cfg.API.CORSOrigins,
		RequestTimeout: parseDuration(cfg.API.RequestTimeout, 30*time.Second),
		AdminToken:     cfg.API.AdminToken,
		Version:        Version,
	})

	// Enable Prometheus /metrics if configured
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	return d, nil
}

// setupLogging points the standard logger at stderr and, if configured, a
// log file. Debug level adds file:line to every entry.
func setupLogging(cfg LoggingConfig) (io.Closer, error) {
	flags := log.LstdFlags
	if cfg.Level == "debug" {
		flags |= log.Lshortfile
	}
	log.SetFlags(flags)

	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Health checker (always runs)
	go d.Health.Run(ctx)

	if d.Config.Sweep.Enabled {
		go func() {
			if err := d.Sweep.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[daemon] sweep loop stopped: %v", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // manual sweeps run inside a request
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			log.Printf("[daemon] shutting down")
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("[daemon] serving on http://%s (zone %s)", addr, d.Location)
	if d.Config.Sweep.Enabled {
		log.Printf("[daemon] reward sweep at %s, next %s", d.Config.Sweep.At,
			d.Sweep.NextRun(time.Now()).Format(time.RFC3339))
	}
	if d.Config.Telemetry.Prometheus {
		log.Printf("[daemon] metrics on http://%s/metrics", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.logFile != nil {
		_ = d.logFile.Close()
	}
}
