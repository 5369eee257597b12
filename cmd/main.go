package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mirrorkit/lsky-mirror/internal/batch"
	"github.com/mirrorkit/lsky-mirror/internal/config"
	"github.com/mirrorkit/lsky-mirror/internal/httpapi"
	"github.com/mirrorkit/lsky-mirror/internal/lsky"
	"github.com/mirrorkit/lsky-mirror/internal/policy"
	"github.com/mirrorkit/lsky-mirror/internal/service"
	"github.com/mirrorkit/lsky-mirror/internal/store"
	"github.com/mirrorkit/lsky-mirror/pkg/log"
	"github.com/robfig/cron/v3"
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	// Persisted runtime settings override the environment when present.
	var cfgOpts []config.Option
	if settings, err := config.LoadRuntimeSettingsFile(config.RuntimeSettingsFilePath()); err == nil {
		cfgOpts = append(cfgOpts, config.WithRuntimeSettings(settings))
	}

	cfg, err := config.New(cfgOpts...)
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))

	st, err := store.New(cfg.System.DBPath)
	if err != nil {
		log.Fatal("Failed to open store: %v", err)
	}
	defer st.Close()

	client := lsky.NewClient(cfg.Lsky.APIURL, cfg.Lsky.Token, time.Duration(cfg.Lsky.Timeout)*time.Second)
	downloader := batch.NewDownloader(time.Duration(cfg.Batch.DownloadTimeout)*time.Second, cfg.Batch.MaxDownloadBytes)

	attachmentEngine := batch.NewAttachmentEngine(st, client, policy.New(cfg.Policy), cfg.Batch.Size)
	postEngine := batch.NewPostEngine(st, client, downloader, cfg.Batch.Size)
	resetController := batch.NewResetController(st)

	serverOpts := []httpapi.Option{
		httpapi.WithAdminToken(cfg.HTTP.AdminToken),
		httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			client.SetCredentials(next.LskyAPIURL, next.LskyToken)
			attachmentEngine.SetBatchSize(next.BatchSize)
			postEngine.SetBatchSize(next.BatchSize)
			return nil
		}),
	}
	if settingsStore, err := config.NewRuntimeSettingsStore(config.RuntimeSettingsFilePath(), cfg.RuntimeSettings()); err == nil {
		serverOpts = append(serverOpts, httpapi.WithRuntimeSettingsStore(settingsStore))
	} else {
		log.Warn("Runtime settings API disabled: %v", err)
	}

	srv := httpapi.NewServer(st, attachmentEngine, postEngine, resetController, serverOpts...)

	cronSvc := cron.New()
	runner := service.NewMirrorRunner(cfg.Batch.CronExpr, cronSvc, attachmentEngine, postEngine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runWithComponents(ctx, cfg, runner, cronSvc, srv); err != nil {
		log.Fatal("Server exited: %v", err)
	}
}

// runWithComponents wires the scheduler, cron engine and HTTP server
// together and blocks until the context is cancelled or the server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, cronEng cronEngine, httpSrv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	cronEng.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		cronEng.Stop()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown: %v", err)
		}
		cronEng.Stop()
		return <-errCh
	}
}
