package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kacperjurak/goedxcore/internal/processing"
	"github.com/kacperjurak/goedxcore/pkg/server"
)

var (
	port       string
	workers    int
	webhookURL string
	profile    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the refinement HTTP service",
	Long: `Serves POST /refine for single spectra and POST /refine/batch for series that are
refined by the worker pool, with every result posted to the configured webhook.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&port, "port", "", "HTTP port (default: from config, 8080)")
	serveCmd.Flags().IntVar(&workers, "workers", 0, "number of refinement workers")
	serveCmd.Flags().StringVar(&webhookURL, "webhook", "", "URL receiving batch results")
	serveCmd.Flags().BoolVar(&profile, "profile", false, "enable pprof on the profiling port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		printError("config", err)
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("workers") {
		cfg.Server.WorkerCount = workers
	}
	if flags.Changed("webhook") {
		cfg.Server.WebhookURL = webhookURL
	}
	if flags.Changed("profile") {
		cfg.Server.EnableProfiling = profile
	}
	if err := cfg.Validate(); err != nil {
		printError("config", err)
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		printError("logger", err)
		return err
	}
	defer func() { _ = log.Sync() }()

	processor := processing.NewProcessor(cfg.Refinement, log.Named("processing"))
	srv := server.New(server.Options{
		Config:    cfg,
		Processor: processor.ProcessorFunc(),
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if err != nil {
			log.Error("server failed", zap.Error(err))
		}
		return err
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		return err
	}
	return nil
}
