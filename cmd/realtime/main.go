package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/stayspot-realtime/internal/auth"
	"github.com/rickgao/stayspot-realtime/internal/config"
	"github.com/rickgao/stayspot-realtime/internal/connection"
	"github.com/rickgao/stayspot-realtime/internal/database"
	"github.com/rickgao/stayspot-realtime/internal/gateway"
	"github.com/rickgao/stayspot-realtime/internal/inbox"
	"github.com/rickgao/stayspot-realtime/internal/version"
	"github.com/rickgao/stayspot-realtime/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults only when empty)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	// Stdout carries the event tail; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting realtime client",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = logger.With("instance_id", cfg.Instance.ID)
	logger.Info("configuration loaded",
		"server_url", cfg.Server.URL,
		"namespace", cfg.Server.Namespace,
	)

	creds, err := auth.LoadCredentials(auth.Source{
		Token:     cfg.Auth.Token,
		TokenEnv:  cfg.Auth.TokenEnv,
		TokenFile: cfg.Auth.TokenFile,
		UserID:    cfg.Auth.UserID,
		CompanyID: cfg.Auth.CompanyID,
	})
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}
	if claims, err := auth.ParseClaims(creds.Token); err == nil && claims.Expired(time.Now()) {
		logger.Warn("token already expired, server will reject it", "expired_at", claims.ExpiresAt)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)
		pool, err = database.Open(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("database connected")
	}

	mgr := connection.NewManager(cfg.ManagerConfig(), connection.NewWebSocketTransport, logger)
	gw := gateway.New(mgr, logger)

	var journal *writer.Journal
	if pool != nil {
		records := inbox.New[writer.Record](cfg.Journal.BufferSize)
		mgr.Subscribe(func(s connection.Status) {
			records.Send(writer.Record{Status: s, RecordedAt: time.Now()})
		})
		journal = writer.NewJournal(writer.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, records, pool, cfg.Instance.ID, logger)
		if err := journal.Start(ctx); err != nil {
			logger.Error("failed to start status journal", "error", err)
			os.Exit(1)
		}
	}

	mgr.Subscribe(func(s connection.Status) {
		logger.Info("connection status",
			"state", s.State,
			"attempts", s.ReconnectAttempts,
			"error", s.Error,
		)
	})

	t := newTail(cfg.Events.Tail, cfg.Events.BufferSize, os.Stdout, logger)
	t.bind(gw)

	gw.Track(cfg.Rooms.Join...)
	for _, id := range cfg.Rooms.Properties {
		gw.Track(gateway.PropertyRoom(id))
	}
	if cfg.Rooms.Team {
		if creds.CompanyID == "" {
			logger.Warn("rooms.team set but credentials carry no company id")
		} else {
			gw.Track(gateway.CompanyRoom(creds.CompanyID))
		}
	}

	if err := mgr.Connect(creds); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	statusServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Status.Port),
		Handler: createHealthHandler(serverDeps{
			instance: cfg.Instance.ID,
			conn:     mgr,
			rooms:    gw.Rooms,
			tail:     t.queue,
			db:       poolPinger(pool),
			journal:  journal,
			logger:   logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting status server", "port", cfg.Status.Port)
		if err := statusServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})

	g.Go(t.run)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		t.close()
		gw.Close()
		if err := mgr.Close(); err != nil {
			logger.Warn("connection close error", "error", err)
		}
		if journal != nil {
			journal.Stop(shutdownCtx)
		}
		return statusServer.Shutdown(shutdownCtx)
	})

	logger.Info("realtime client running",
		"status_url", fmt.Sprintf("http://localhost:%d/status", cfg.Status.Port),
	)

	if err := g.Wait(); err != nil {
		logger.Error("realtime client stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("realtime client stopped")
}

func loadConfig(path string) (*config.ClientConfig, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.LoadAndValidate(path)
}

// poolPinger avoids storing a typed nil pool in the pinger interface.
func poolPinger(pool *pgxpool.Pool) pinger {
	if pool == nil {
		return nil
	}
	return pool
}
