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
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/ratecon-intake/internal/app"
	"github.com/joseph-ayodele/ratecon-intake/internal/async"
	"github.com/joseph-ayodele/ratecon-intake/internal/common"
	"github.com/joseph-ayodele/ratecon-intake/internal/pipeline"
	"github.com/joseph-ayodele/ratecon-intake/internal/repository"
	"github.com/joseph-ayodele/ratecon-intake/internal/server"
)

func main() {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "ratecond",
		Short:         "Rate Confirmation intake daemon (HTTP API)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgFile)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is search in ., $HOME/.config/ratecon, /etc/ratecon)")
	cmd.Flags().String("addr", "", "listen address (overrides server.http_addr)")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("server.http_addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ratecond:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgFile string) error {
	cfg, err := common.NewLoader(nil).Load(cfgFile)
	if err != nil {
		return err
	}
	logger := common.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	db, err := app.OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close(logger)

	if err := repository.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}

	st, err := app.BuildStack(cfg, logger)
	if err != nil {
		return err
	}
	accounts := app.NewAccounts(db, cfg, st, logger)

	uploads := server.NewUploadStore()
	jobs := server.NewJobTracker(time.Hour)
	orch := pipeline.NewOrchestrator(st.Processor, uploads, jobs, accounts, pipeline.Config{
		PulseEvery: cfg.Pipeline.PulseInterval,
	}, logger)
	registry := async.NewRegistry(
		async.WithHandler(orch),
		async.WithLogger(logger),
		async.WithJobTimeout(cfg.Pipeline.JobTimeout),
		async.WithObserver(pipeline.SetActiveWorkers),
	)

	api := server.NewServer(server.Deps{
		Accounts:  accounts,
		Processor: st.Processor,
		Queue:     registry,
		Uploads:   uploads,
		Jobs:      jobs,
		Health: func(ctx context.Context) error {
			return repository.HealthCheck(ctx, db, 2*time.Second, logger)
		},
	}, server.Config{
		MaxUploadBytes:   cfg.Server.MaxUploadBytes,
		ThrottleInterval: cfg.Server.ThrottleInterval,
	}, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ratecond listening", "addr", cfg.Server.HTTPAddr, "ai", st.LLM != nil, "layers", st.Extractor.Layers())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		registry.Shutdown(sctx)
		return nil
	})
	return g.Wait()
}
