package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TaskParallelism bounds how many tasks of one group run at once.
const TaskParallelism = 3

// Results holds task results by key.
type Results map[string]any

// Task runs one unit of work. prev holds the results of earlier groups.
type Task func(ctx context.Context, prev Results) (any, error)

// Group is a set of tasks that run in parallel.
type Group map[string]Task

// TaskStats describes one task run.
type TaskStats struct {
	Started  time.Time
	Duration time.Duration
}

// TaskResult is the value of a task together with its stats.
type TaskResult struct {
	Value any
	Stats TaskStats
}

// ExecTasks runs groups in order. Tasks within a group run in parallel,
// at most TaskParallelism at a time, and each sees the results of every
// earlier group. The first error cancels the remaining work.
// The returned map holds a TaskResult per key.
func (d *DB) ExecTasks(ctx context.Context, groups ...Group) (Results, error) {
	seen := make(map[string]bool)
	for _, g := range groups {
		for key := range g {
			if seen[key] {
				return nil, fmt.Errorf("task key %q defined multiple times", key)
			}
			seen[key] = true
		}
	}

	runID := uuid.NewString()
	logger := d.logger.With(slog.String("run_id", runID))
	logger.Debug("executing tasks", slog.Int("groups", len(groups)), slog.Int("tasks", len(seen)))

	results := make(Results, len(seen))
	for gi, g := range groups {
		prev := maps.Clone(results)

		var mu sync.Mutex
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(TaskParallelism)
		for _, key := range slices.Sorted(maps.Keys(g)) {
			task := g[key]
			eg.Go(func() error {
				started := time.Now()
				value, err := task(egCtx, prev)
				if err != nil {
					return fmt.Errorf("task %s: %w", key, err)
				}
				res := TaskResult{Value: value, Stats: TaskStats{Started: started, Duration: time.Since(started)}}

				mu.Lock()
				results[key] = res
				mu.Unlock()
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			logger.Debug("task group failed", slog.Int("group", gi), slog.String("error", err.Error()))
			return nil, err
		}
	}
	return results, nil
}

// TransTask runs inside the transaction of ExecTransTasks.
// results holds the values of the tasks that ran before it.
type TransTask struct {
	Key string
	Run func(ctx context.Context, tx *sql.Tx, results Results) (any, error)
}

// ExecTransTasks runs tasks one after another in a single transaction.
// Any error rolls the transaction back.
func (d *DB) ExecTransTasks(ctx context.Context, tasks ...TransTask) (Results, error) {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if seen[t.Key] {
			return nil, fmt.Errorf("task key %q defined multiple times", t.Key)
		}
		seen[t.Key] = true
	}

	tx, err := d.adapter.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	results := make(Results, len(tasks))
	for _, t := range tasks {
		value, err := t.Run(ctx, tx, results)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				d.logger.Warn("rollback failed", slog.String("error", rbErr.Error()))
			}
			return nil, fmt.Errorf("task %s: %w", t.Key, err)
		}
		results[t.Key] = value
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return results, nil
}
