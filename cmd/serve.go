package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/newscat/internal/api"
	"github.com/sells-group/newscat/internal/classifier"
	"github.com/sells-group/newscat/internal/predict"
	"github.com/sells-group/newscat/internal/training"
	"github.com/sells-group/newscat/pkg/trainer"
)

var servePort int

// counterFlushInterval controls how often the in-memory prediction counter
// is persisted.
const counterFlushInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prediction and feedback API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer store.Close()

		pcache, err := openCache(ctx, cfg.Cache)
		if err != nil {
			return eris.Wrap(err, "open cache")
		}
		defer pcache.Close()

		artifacts := classifier.NewArtifactStore(cfg.Classifier.ArtifactRoot)
		models := classifier.NewHandle(artifacts)

		if cfg.Cache.InvalidateOnReload {
			models.OnReload(func(old, new string) {
				if old == new {
					return
				}
				if err := pcache.Flush(context.Background()); err != nil {
					zap.L().Warn("cache flush after reload failed", zap.Error(err))
				}
			})
		}

		// A missing model is not fatal: the server comes up degraded and
		// loads the first artifact the watcher sees.
		if err := models.Load(cfg.Classifier.Version); err != nil {
			zap.L().Warn("no model loaded at startup", zap.Error(err))
		}

		if cfg.Classifier.Watch {
			go func() {
				if err := classifier.Watch(ctx, models); err != nil {
					zap.L().Error("artifact watcher stopped", zap.Error(err))
				}
			}()
		}

		counter := predict.NewCounter(store)
		go counter.Run(ctx, counterFlushInterval)

		svc := predict.NewService(models, pcache, counter, predict.Options{
			CacheTTL:         cfg.Cache.TTL(),
			Timeout:          cfg.Predict.Timeout(),
			BatchConcurrency: cfg.Predict.BatchConcurrency,
		})

		var orch *training.Orchestrator
		if cfg.Trainer.BaseURL != "" {
			orch = training.NewOrchestrator(
				trainer.NewClient(cfg.Trainer.BaseURL),
				store, models, artifacts,
				training.Options{
					PollInterval: cfg.Trainer.PollInterval(),
					AutoDeploy:   cfg.Trainer.ReloadOnDone,
				},
			)
			go orch.Run(ctx)
		} else {
			// Keep the training endpoints wired even without a backend;
			// submissions will fail with a clear connection error.
			orch = training.NewOrchestrator(
				trainer.NewClient("http://localhost:8090"),
				store, models, artifacts,
				training.Options{},
			)
		}

		server := api.NewServer(svc, store, orch, models, cfg.Server)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.Server.ShutdownSecs)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("store_driver", cfg.Store.Driver),
			zap.String("cache_driver", cfg.Cache.Driver),
			zap.String("model_version", models.Version()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
