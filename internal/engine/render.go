package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/sqlext/internal/watch"
)

// Render rewrites sqlText. vars, when non-nil, replace the configured vars.
func (e *Engine) Render(sqlText string, vars map[string]any) (string, error) {
	rw := e.rewriter
	if vars != nil {
		var err error
		if rw, err = rw.WithVars(vars); err != nil {
			return "", err
		}
	}
	return rw.ParseSQL(sqlText)
}

// RenderFile reads path and rewrites its contents.
func (e *Engine) RenderFile(path string, vars map[string]any) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return e.Render(string(data), vars)
}

// Watch reloads the macro library whenever a file in the macros directory
// changes, until ctx is done. onReload, if set, is called after every
// reload attempt with its error.
func (e *Engine) Watch(ctx context.Context, onReload func(changed []string, err error)) error {
	if e.macrosDir == "" {
		return errors.New("no macros directory configured")
	}

	w := watch.New(func(changed []string) {
		err := e.Reload()
		if err != nil {
			e.logger.Warn("macro reload failed", slog.String("error", err.Error()))
		} else {
			e.logger.Info("macros reloaded", slog.Int("files", len(changed)), slog.Int("entries", e.registry.Len()))
		}
		if onReload != nil {
			onReload(changed, err)
		}
	}, watch.WithExtensions(".star", ".yaml", ".yml"), watch.WithLogger(e.logger))

	return w.Watch(ctx, e.macrosDir)
}
