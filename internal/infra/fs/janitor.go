// Package fs provides filesystem cleanup for the working-directory root.
package fs

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvelarde/yt-playlist-api-go/internal/infra/jobstore"
)

// ArchivePruner removes mirrored archives past a retention age.
type ArchivePruner interface {
	DeleteOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// Janitor reclaims disk space from stale or already-retrieved job
// artifacts. It is invoked opportunistically at the start of each batch
// request rather than on a background timer.
type Janitor struct {
	workRoot     string
	retentionAge time.Duration
	grace        time.Duration
	store        *jobstore.Store
	mirror       ArchivePruner
}

// New creates a Janitor over the given working root.
func New(workRoot string, retentionAge, grace time.Duration, store *jobstore.Store) *Janitor {
	return &Janitor{
		workRoot:     workRoot,
		retentionAge: retentionAge,
		grace:        grace,
		store:        store,
	}
}

// SetMirror attaches an optional archive mirror whose stale objects are
// pruned alongside the local sweep.
func (j *Janitor) SetMirror(m ArchivePruner) {
	j.mirror = m
}

// Sweep removes every top-level entry under the working root whose
// modification time exceeds the retention threshold, along with its
// job-store entry: a store entry must not outlive its archive. The
// threshold is deliberately generous (hours) so a slow in-flight batch
// is never swept out from under its own downloads. Per-entry failures
// are logged and skipped; they never abort the sweep.
func (j *Janitor) Sweep() {
	entries, err := os.ReadDir(j.workRoot)
	if err != nil {
		slog.Warn("Janitor sweep could not read working root",
			"dir", j.workRoot,
			"error", err,
		)
		return
	}

	threshold := time.Now().Add(-j.retentionAge)
	removed := 0

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(threshold) {
			continue
		}

		path := filepath.Join(j.workRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Janitor failed to remove stale entry",
				"path", path,
				"error", err,
			)
			continue
		}

		// Working dirs are named <jobId>, archives <jobId>.zip; either
		// way the registered entry is now dangling.
		j.store.Delete(strings.TrimSuffix(entry.Name(), ".zip"))
		removed++
	}

	if removed > 0 {
		slog.Info("Janitor sweep completed",
			"removed", removed,
			"retention", j.retentionAge,
		)
	}

	if j.mirror != nil {
		go j.pruneMirror()
	}
}

// pruneMirror applies the same retention age to the off-box mirror.
func (j *Janitor) pruneMirror() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	deleted, err := j.mirror.DeleteOlderThan(ctx, j.retentionAge)
	if err != nil {
		slog.Warn("Mirror prune failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Mirrored archives pruned", "deleted", deleted)
	}
}

// ScheduleJobCleanup deletes a retrieved job's working directory, archive
// and store entry after a fixed grace delay. The delay tolerates
// client-side retries and slow network flushes; the timer is in-memory
// only and is lost on restart, in which case the next Sweep reclaims the
// artifacts instead.
func (j *Janitor) ScheduleJobCleanup(jobID string) {
	time.AfterFunc(j.grace, func() {
		j.CleanupJobNow(jobID)
	})
}

// CleanupJobNow removes a job's artifacts and store entry immediately.
func (j *Janitor) CleanupJobNow(jobID string) {
	entry, err := j.store.Get(jobID)
	if err != nil {
		return // already cleaned up
	}

	// Drop the entry first so a concurrent retrieval sees NotFound
	// rather than a half-deleted archive.
	j.store.Delete(jobID)

	if entry.WorkDir != "" {
		if err := os.RemoveAll(entry.WorkDir); err != nil {
			slog.Warn("Failed to remove job working directory",
				"job_id", jobID,
				"path", entry.WorkDir,
				"error", err,
			)
		}
	}
	if entry.ArchivePath != "" {
		if err := os.Remove(entry.ArchivePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove job archive",
				"job_id", jobID,
				"path", entry.ArchivePath,
				"error", err,
			)
		}
	}

	slog.Info("Job artifacts reclaimed", "job_id", jobID)
}
