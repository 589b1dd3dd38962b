// Package probes maintains the files Kubernetes exec probes check for worker processes without an HTTP listener.
package probes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/abgdnv/shopassist/pkg/config"
)

// MarkReady creates the readiness file.
func MarkReady(cfg config.ProbesConfig) error {
	return touch(cfg.ReadinessFileName)
}

// Run refreshes the liveness file every LivenessInterval until ctx is done, then removes both files.
func Run(ctx context.Context, cfg config.ProbesConfig, logger *slog.Logger) error {
	defer func() {
		_ = os.Remove(cfg.ReadinessFileName)
		_ = os.Remove(cfg.LivenessFileName)
	}()
	if err := touch(cfg.LivenessFileName); err != nil {
		return err
	}
	ticker := time.NewTicker(cfg.LivenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := touch(cfg.LivenessFileName); err != nil {
				logger.Warn("failed to refresh liveness file", "error", err)
			}
		}
	}
}

func touch(name string) error {
	now := time.Now()
	if err := os.Chtimes(name, now, now); err == nil {
		return nil
	}
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create probe file %s: %w", name, err)
	}
	return f.Close()
}
