package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-runtimes/executor/config"
	"github.com/open-runtimes/executor/httpapi"
	"github.com/open-runtimes/executor/invoke"
	"github.com/open-runtimes/executor/kube"
	"github.com/open-runtimes/executor/logstream"
	"github.com/open-runtimes/executor/orchestrator"
	"github.com/open-runtimes/executor/reaper"
	"github.com/open-runtimes/executor/s3store"
	"github.com/open-runtimes/executor/utils/logger"
)

func main() {
	// Initialize env and configs
	cfg, err := config.Init()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init()

	logger.Infof("starting open-runtimes executor")
	logger.Infof("namespace: %s", cfg.Namespace)

	ctx := context.Background()

	k, err := kube.NewInCluster(cfg.Namespace)
	if err != nil {
		logger.Fatalf("failed to create kubernetes client: %s", err)
	}

	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:        cfg.S3Endpoint,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Region:          cfg.S3Region,
	})
	if err != nil {
		logger.Fatalf("failed to create s3 client: %s", err)
	}

	orch := orchestrator.New(k, store, cfg.S3Bucket)
	inv := invoke.New(k, orch)
	stream := logstream.New(k)

	identity := fmt.Sprintf("%s-%d", cfg.Hostname, os.Getpid())
	r := reaper.New(k, cfg.MaintenanceInterval, cfg.InactiveThreshold, identity)
	go r.Run(ctx)
	logger.Infof("reaper started, identity=%s", identity)

	server := httpapi.New(cfg.Port, cfg.ExecutorSecret, orch, inv, stream)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server failed: %s", err)
		}
	}()

	// setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	sig := <-signalChan
	logger.Infof("received signal %v, shutting down executor.", sig)

	r.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http server shutdown did not complete cleanly: %s", err)
	}

	logger.Info("executor stopped!")
}
