package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/observability"
)

// WatchLogLevel re-reads the config file whenever it changes and applies its log level to
// logger. The environment still takes precedence. It blocks until ctx is done.
func WatchLogLevel(ctx context.Context, path string, logger *logrus.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and config-map mounts replace the file instead of
	// writing it in place
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := reloadLogLevel(target, logger); err != nil {
				logger.WithError(err).Warn("Ignoring config change")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Config watcher error")
		}
	}
}

// reloadLogLevel applies the level the file sets explicitly. A file caught mid-write, or one
// without observability.log_level, leaves the logger alone.
func reloadLogLevel(path string, logger *logrus.Logger) error {
	var cfg Config
	if err := cfg.loadFile(path); err != nil {
		return err
	}
	level := getEnv("ATRIUM_LOG_LEVEL", cfg.Observability.LogLevel)
	if level == "" {
		return nil
	}

	previous := logger.GetLevel()
	if err := observability.SetLevel(logger, level); err != nil {
		return err
	}
	if logger.GetLevel() != previous {
		logger.WithFields(logrus.Fields{
			"from": previous.String(),
			"to":   logger.GetLevel().String(),
		}).Info("Log level changed")
	}
	return nil
}
