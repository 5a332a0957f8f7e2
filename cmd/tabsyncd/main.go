// Command tabsyncd runs the tabsync daemon: the durable order queue, the
// sync worker, the change notifier, and the HTTP/websocket API.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"tabsync/internal/config"
	"tabsync/internal/daemon"
	"tabsync/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/tabsync/config.toml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("tabsyncd shutting down")
}
