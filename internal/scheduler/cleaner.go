package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/driftdata/driftsync/internal/metrics"
	"github.com/driftdata/driftsync/internal/store"
)

// RetentionConfig bounds how long attempt workspaces are kept
type RetentionConfig struct {
	MinAge  time.Duration
	MaxAge  time.Duration
	MaxSize int64
}

// WorkspaceCleaner prunes attempt workspace directories. Everything past
// MaxAge goes; past that, newest directories are kept until their cumulative
// size exceeds MaxSize, and the overflow is deleted once older than MinAge.
// Workspaces of non-terminal jobs are never touched.
type WorkspaceCleaner struct {
	store         store.JobPersistence
	workspaceRoot string
	retention     RetentionConfig
	nowFunc       func() time.Time
}

// NewWorkspaceCleaner creates a cleaner with the given retention policy
func NewWorkspaceCleaner(persistence store.JobPersistence, workspaceRoot string, retention RetentionConfig) *WorkspaceCleaner {
	return &WorkspaceCleaner{
		store:         persistence,
		workspaceRoot: workspaceRoot,
		retention:     retention,
		nowFunc:       time.Now,
	}
}

type attemptDir struct {
	path    string
	jobID   int64
	modTime time.Time
	size    int64
}

// Tick runs one cleaning pass. Per-directory failures are logged, never
// fatal.
func (c *WorkspaceCleaner) Tick(ctx context.Context) {
	dirs, err := c.collect()
	if err != nil {
		logging.Log.WithError(err).Error("Failed to scan workspace root")
		return
	}

	now := c.nowFunc()

	// newest first for the size budget walk
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].modTime.After(dirs[j].modTime) })

	var cumulative int64
	for _, dir := range dirs {
		age := now.Sub(dir.modTime)
		cumulative += dir.size

		switch {
		case age > c.retention.MaxAge:
			c.remove(ctx, dir)
		case cumulative > c.retention.MaxSize && age > c.retention.MinAge:
			c.remove(ctx, dir)
		}
	}
}

// collect lists every <jobId>/<attemptNumber> directory under the root
func (c *WorkspaceCleaner) collect() ([]attemptDir, error) {
	jobEntries, err := os.ReadDir(c.workspaceRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []attemptDir
	for _, jobEntry := range jobEntries {
		if !jobEntry.IsDir() {
			continue
		}
		jobID, err := strconv.ParseInt(jobEntry.Name(), 10, 64)
		if err != nil {
			continue
		}
		jobDir := filepath.Join(c.workspaceRoot, jobEntry.Name())
		attemptEntries, err := os.ReadDir(jobDir)
		if err != nil {
			logging.Log.WithError(err).WithField("dir", jobDir).Warn("Failed to list job workspace")
			continue
		}
		for _, attemptEntry := range attemptEntries {
			if !attemptEntry.IsDir() {
				continue
			}
			if _, err := strconv.Atoi(attemptEntry.Name()); err != nil {
				continue
			}
			path := filepath.Join(jobDir, attemptEntry.Name())
			size, modTime := dirStats(path)
			dirs = append(dirs, attemptDir{
				path:    path,
				jobID:   jobID,
				modTime: modTime,
				size:    size,
			})
		}
	}
	return dirs, nil
}

func (c *WorkspaceCleaner) remove(ctx context.Context, dir attemptDir) {
	job, err := c.store.GetJob(ctx, dir.jobID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Log.WithError(err).WithField("job_id", dir.jobID).Warn("Failed to look up job for workspace")
		return
	}
	if job != nil && !job.IsTerminal() {
		return
	}

	if err := os.RemoveAll(dir.path); err != nil {
		logging.Log.WithError(err).WithField("dir", dir.path).Warn("Failed to delete attempt workspace")
		return
	}
	metrics.WorkspaceBytesDeleted.Add(float64(dir.size))
	logging.Log.WithField("dir", dir.path).Info("Deleted attempt workspace")
}

// dirStats returns the total size and newest mod time under a directory
func dirStats(root string) (int64, time.Time) {
	var size int64
	var newest time.Time
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return size, newest
}
