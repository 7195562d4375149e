package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flthibaud/rapidimg/internal/codec"
	"github.com/flthibaud/rapidimg/internal/config"
	"github.com/flthibaud/rapidimg/internal/id"
	"github.com/flthibaud/rapidimg/internal/metrics"
	"github.com/flthibaud/rapidimg/internal/pipeline"
	"github.com/flthibaud/rapidimg/internal/report"
	"github.com/flthibaud/rapidimg/internal/storage"
	"github.com/flthibaud/rapidimg/internal/telemetry"
	"github.com/flthibaud/rapidimg/internal/webhook"
)

const (
	exitOK          = 0
	exitFatal       = 1
	exitItemsFailed = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// stdout carries one line per item; diagnostics go to stderr.
	logger := log.New(stderr, "[rapidimg] ", log.LstdFlags|log.Lmsgprefix)

	cfg := config.Load()
	flags, err := config.Parse(args, &cfg, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		logger.Printf("invalid arguments: %v", err)
		return exitFatal
	}
	if flags.ShowVersion {
		fmt.Fprintln(stdout, "rapidimg v"+config.Version)
		return exitOK
	}
	for _, w := range cfg.Warnings {
		logger.Printf("warning: %s", w)
	}
	if err := cfg.Validate(); err != nil {
		logger.Printf("invalid configuration: %v", err)
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:    cfg.Trace.ServiceName,
		ServiceVersion: config.Version,
		Exporter:       cfg.Trace.Exporter,
		OTLPEndpoint:   cfg.Trace.OTLPEndpoint,
		OTLPInsecure:   cfg.Trace.OTLPInsecure,
		Writer:         stderr,
	}, logger)
	if err != nil {
		logger.Printf("tracing setup failed: %v", err)
		return exitFatal
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	c, err := codec.New()
	if err != nil {
		logger.Printf("codec init failed: %v", err)
		return exitFatal
	}
	defer codec.Shutdown()

	runID := id.NewRun(time.Now())
	console := report.NewConsole(stdout, stderr)
	tally := report.NewTally()
	recorder := metrics.New()

	var opts []pipeline.Option
	if cfg.Run.Upload {
		publisher, err := newPublisher(ctx, cfg.Storage, runID)
		if err != nil {
			logger.Printf("object store unavailable: %v", err)
			return exitFatal
		}
		logger.Printf("mirroring outputs to bucket=%s prefix=%s", cfg.Storage.Bucket, cfg.Storage.Prefix)
		opts = append(opts, pipeline.WithPublisher(publisher))
	}

	logger.Printf("run %s starting input=%s", runID, cfg.Run.Input)
	runner := pipeline.NewRunner(logger, c, report.NewMulti(console, tally, recorder), opts...)
	runErr := runner.Run(ctx, cfg.Request())

	summary := tally.Summary()
	summary.RunID = runID
	if runErr == nil || summary.Items > 0 {
		console.PrintSummary(summary)
	}

	if cfg.Run.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.Run.MetricsFile); err != nil {
			logger.Printf("metrics export failed: %v", err)
		}
	}
	if cfg.Notify.URL != "" {
		notifyRun(cfg.Notify, summary, logger)
	}

	switch {
	case runErr != nil:
		logger.Printf("run %s failed: %v", runID, runErr)
		return exitFatal
	case summary.Failed > 0:
		return exitItemsFailed
	default:
		return exitOK
	}
}

func newPublisher(ctx context.Context, cfg config.StorageConfig, runID string) (pipeline.ObjectStorePublisher, error) {
	client, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return pipeline.ObjectStorePublisher{}, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return pipeline.ObjectStorePublisher{}, err
	}
	return pipeline.NewObjectStorePublisher(client, cfg.Prefix, runID), nil
}

// notifyRun uses its own deadline so an interrupted run still reports.
func notifyRun(cfg config.NotifyConfig, summary report.Summary, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout*time.Duration(max(1, cfg.MaxAttempts))+5*time.Second)
	defer cancel()

	client := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Secret,
		Timeout:       cfg.Timeout,
		MaxAttempts:   cfg.MaxAttempts,
	})
	if err := client.NotifyRun(ctx, cfg.URL, summary); err != nil {
		logger.Printf("run notification failed: %v", err)
		return
	}
	logger.Printf("run notification delivered to %s", cfg.URL)
}
