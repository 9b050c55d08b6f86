package config

import (
	"context"
	"log/slog"
	"slices"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path for changes and calls onChange with the newly loaded
// Config each time the file is written. It runs until ctx is cancelled.
//
// If a reload fails (e.g. invalid YAML), the error is logged and onChange is
// not called; the previous config stays in effect.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts as a write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}

			slog.Info("config: reloaded", "path", path)
			onChange(cfg)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// RestartRequired lists the settings that differ between old and next but
// are only read at startup.
func RestartRequired(old, next *Config) []string {
	var out []string
	if old.Server.HTTPPort != next.Server.HTTPPort {
		out = append(out, "server.http_port")
	}
	if old.Store.MaxLogsPerGroup != next.Store.MaxLogsPerGroup {
		out = append(out, "store.max_logs_per_group")
	}
	if old.Store.SnapshotPath != next.Store.SnapshotPath {
		out = append(out, "store.snapshot_path")
	}
	if old.MQTT.Broker != next.MQTT.Broker || old.MQTT.Topic != next.MQTT.Topic {
		out = append(out, "mqtt")
	}
	if !slices.Equal(old.Kafka.Brokers, next.Kafka.Brokers) || old.Kafka.Topic != next.Kafka.Topic {
		out = append(out, "kafka")
	}
	return out
}
