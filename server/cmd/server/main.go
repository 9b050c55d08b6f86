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
	"sync"
	"syscall"
	"time"

	"github.com/sensorhub/sensorhub/server/internal/alerts"
	"github.com/sensorhub/sensorhub/server/internal/api"
	"github.com/sensorhub/sensorhub/server/internal/bus"
	"github.com/sensorhub/sensorhub/server/internal/config"
	"github.com/sensorhub/sensorhub/server/internal/metrics"
	"github.com/sensorhub/sensorhub/server/internal/mqttin"
	"github.com/sensorhub/sensorhub/server/internal/snapshot"
	"github.com/sensorhub/sensorhub/server/internal/store"
	"github.com/sensorhub/sensorhub/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("sensorhub-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"max_logs_per_group", cfg.Store.MaxLogsPerGroup,
		"alert_threshold", cfg.Store.AlertThreshold,
		"snapshot_path", cfg.Store.SnapshotPath,
		"kafka", cfg.Kafka.Enabled(),
		"mqtt", cfg.MQTT.Enabled(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Background tasks that must finish before exit (snapshot flush, Kafka flush).
	var wg sync.WaitGroup
	// Ingest sources that must stop before the flush starts.
	var ingestWg sync.WaitGroup
	bg, stopBg := context.WithCancel(context.Background())
	defer stopBg()

	// Snapshot writer and the store it persists. The snapshot is loaded
	// synchronously before anything can serve traffic.
	writer := snapshot.New(cfg.Store.SnapshotPath)
	st := store.New(cfg.Store.MaxLogsPerGroup,
		store.WithPersister(writer),
		store.WithAlertThreshold(cfg.Store.AlertThreshold),
	)
	st.Restore(writer.Load())

	reg := metrics.New(st)
	writer.OnWrite(reg.SnapshotWrite)
	wg.Add(1)
	go func() {
		defer wg.Done()
		writer.Run(bg)
	}()

	// Alerts engine: evaluates notification rules on every ingested reading.
	alertEngine := alerts.New(cfg.Alerts)
	st.Observe(alertEngine)

	// WebSocket hub: live readings plus a periodic group summary.
	hub := ws.New(st, cfg.Stream.Interval)
	st.Observe(hub)
	reg.SetStreamClients(hub.Count)
	go hub.Run(ctx)

	if cfg.Kafka.Enabled() {
		pub := bus.New(cfg.Kafka)
		pub.OnPublish(reg.KafkaPublish)
		st.Observe(pub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(bg)
		}()
		slog.Info("kafka publisher enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	if cfg.MQTT.Enabled() {
		sub, err := mqttin.New(cfg.MQTT, st)
		if err != nil {
			slog.Error("failed to create mqtt subscriber", "err", err)
			os.Exit(1)
		}
		sub.OnMessage(reg.MQTTMessage)
		ingestWg.Add(1)
		go func() {
			defer ingestWg.Done()
			if err := sub.Run(ctx); err != nil {
				slog.Error("mqtt subscriber stopped", "err", err)
			}
		}()
	}

	// Hot reload: threshold and alert rules apply live, the rest is logged.
	if _, err := os.Stat(*configPath); err == nil {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				st.SetAlertThreshold(next.Store.AlertThreshold)
				alertEngine.Reload(next.Alerts)
				if changed := config.RestartRequired(cfg, next); len(changed) > 0 {
					slog.Warn("config changes require a restart", "settings", changed)
				}
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	handler := api.New(st, alertEngine)
	handler.Mount("/metrics", reg)
	handler.Mount("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           api.Wrap(handler, cfg.Server, os.Stdout),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("sensorhub-server shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck

	// Flush the last snapshot and any buffered Kafka messages once nothing
	// can ingest any more.
	drain(&ingestWg, &wg, stopBg)
	alertEngine.Wait()
	slog.Info("sensorhub-server stopped")
}

// drain waits for the ingest sources to stop, then cancels the background
// writers and waits for their final flush.
func drain(ingest, writers *sync.WaitGroup, stopWriters context.CancelFunc) {
	ingest.Wait()
	stopWriters()
	writers.Wait()
}
