package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"salvadanaio/internal/backend"
	"salvadanaio/internal/cache"
	"salvadanaio/internal/cli"
	"salvadanaio/internal/config"
	"salvadanaio/internal/core"
	apphttp "salvadanaio/internal/http"
	applog "salvadanaio/internal/log"
	"salvadanaio/internal/services"
	"salvadanaio/internal/store"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize remote backend", applog.FieldError, err, "remote", cfg.RemoteBackend)
		os.Exit(1)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := be.Cleanup(cleanupCtx); err != nil {
			logger.Warn("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	svc := services.NewLedgerService(
		store.New(core.NewProfile(cfg.ProfileID)),
		sqliteRepo, sqliteRepo, be.Store, be.Pusher,
		serviceConfig(cfg),
		services.WithLogger(logger.WithComponent(applog.ComponentLedger)),
	)
	loaded, err := svc.Load(ctx)
	if err != nil {
		logger.Error("Failed to load cached profile", applog.FieldError, err, applog.FieldProfileID, cfg.ProfileID)
		os.Exit(1)
	}
	logger.Info("Profile loaded",
		applog.FieldProfileID, loaded.ID,
		applog.FieldRevision, loaded.Revision)

	// Failed pushes are retried through the service so they go out the
	// same way commands do, over the broker in queue mode.
	processor := services.NewSyncProcessor(sqliteRepo, svc, cli.ProcessorConfig(cfg))

	srv := apphttp.NewServer(":"+cfg.Port, svc, processor,
		apphttp.WithLogger(logger.WithComponent(applog.ComponentHTTP)),
		apphttp.WithPinger(sqliteRepo),
		apphttp.WithCurrency(cfg.Currency),
	)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	caches := cache.NewManager()
	caches.Register(svc.StatusCache())
	caches.Register(srv.OverviewCache())
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting salvadanaio server",
			"port", cfg.Port,
			"remote", cfg.RemoteBackend,
			"sync_mode", cfg.SyncMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		// Commands keep working offline when the remote cannot be reached.
		if err := svc.Subscribe(gctx); err != nil {
			logger.Warn("Remote subscription ended, continuing offline", applog.FieldError, err)
		}
		return nil
	})

	g.Go(func() error {
		return processor.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := svc.Close(shutdownCtx); err != nil {
			logger.Warn("In-flight pushes did not finish before shutdown", applog.FieldError, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func serviceConfig(cfg *config.Config) services.Config {
	sc := services.DefaultConfig(cfg.ProfileID)
	sc.ConflictPolicy = services.ConflictPolicy(cfg.ConflictPolicy)
	sc.PushTimeout = cfg.PushTimeout
	sc.PushStatusTTL = cfg.PushStatusTTL
	return sc
}
