// Command wesense-ingester subscribes to the Meshtastic MQTT regions named
// in its config, correlates environmental telemetry against node
// positions, resolves the reporting country and subdivision, and writes
// the result to a columnar store.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/rabarar/wesense-ingester/internal/config"
	"github.com/rabarar/wesense-ingester/internal/supervisor"
)

func main() {
	var regionsPath, envPath string
	flag.StringVar(&regionsPath, "regions", "regions.yaml", "path to the regions YAML config")
	flag.StringVar(&envPath, "env", "", "path to a .env file (optional; falls back to the process environment)")
	flag.Parse()

	cfg, err := config.Load(regionsPath, envPath)
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}

	sup, err := supervisor.New(cfg)
	if err != nil {
		log.Fatal("failed to construct supervisor", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				log.Info("SIGHUP received, snapshotting state")
				sup.SnapshotNow()
			}
		}
	}()

	log.Info("wesense-ingester starting", "ingestion_node_id", cfg.IngestionNodeID, "regions", len(cfg.Regions))
	if err := sup.Run(ctx); err != nil {
		log.Fatal("wesense-ingester exited with error", "err", err)
	}
	log.Info("wesense-ingester stopped")
}
