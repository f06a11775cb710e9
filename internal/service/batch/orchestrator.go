// Package batch runs playlist-to-archive jobs: resolve the member list,
// download each member sequentially, zip the results, and register the
// archive for retrieval. Progress is pushed through an EmitFunc in strict
// emission order; the terminal event is always complete or error.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
	"github.com/dvelarde/yt-playlist-api-go/internal/infra/jobstore"
	"github.com/dvelarde/yt-playlist-api-go/internal/service/archive"
	"github.com/dvelarde/yt-playlist-api-go/internal/service/ytdlp"
)

// Progress ramp: resolution gets the first tenth, the member loop ramps
// linearly to 80, archiving takes the tail.
const (
	progressResolving  = 5
	progressResolved   = 10
	progressMemberSpan = 70
	progressArchiving  = 85
)

// MediaTool is the external extraction tool boundary.
type MediaTool interface {
	ResolvePlaylist(ctx context.Context, url string) (*domain.Playlist, error)
	FetchVideoMetadata(ctx context.Context, videoURL string) (*domain.VideoInfo, error)
	DownloadVideo(ctx context.Context, videoURL, destDir string) error
	DownloadAudio(ctx context.Context, videoURL, destPath string) error
}

// Tagger is the external transcode/tag tool boundary.
type Tagger interface {
	EmbedCoverArt(ctx context.Context, mp3Path, coverPath, outPath, title, artist string) error
	FetchImage(ctx context.Context, url, destPath string) error
}

// HistoryAppender records completed runs. Writes are fire-and-forget.
type HistoryAppender interface {
	Append(ctx context.Context, rec *domain.HistoryRecord) error
}

// ArchiveMirror uploads finished archives to off-box storage.
type ArchiveMirror interface {
	UploadArchive(ctx context.Context, archivePath, jobID string) (string, error)
}

// Sweeper reclaims stale artifacts before a new job starts writing.
type Sweeper interface {
	Sweep()
}

// EmitFunc receives progress events in emission order. Implementations
// must not block indefinitely; a dead transport should drop events.
type EmitFunc func(domain.ProgressEvent)

// Config holds orchestrator settings.
type Config struct {
	WorkRoot          string
	MaxConcurrentJobs int
}

// Deps are the orchestrator's collaborators. History and Mirror are
// optional.
type Deps struct {
	Tool    MediaTool
	Tagger  Tagger
	Store   *jobstore.Store
	Janitor Sweeper
	History HistoryAppender
	Mirror  ArchiveMirror
}

// Orchestrator owns the batch job state machine.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	slots  chan struct{}
	active atomic.Int64

	// buildArchive is swappable in tests.
	buildArchive func(sourceDir, outPath string) error
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	return &Orchestrator{
		cfg:          cfg,
		deps:         deps,
		slots:        make(chan struct{}, cfg.MaxConcurrentJobs),
		buildArchive: archive.BuildZip,
	}
}

// Active returns the number of currently running batch jobs.
func (o *Orchestrator) Active() int {
	return int(o.active.Load())
}

// Run is one prepared batch job holding a concurrency slot.
type Run struct {
	orch *Orchestrator
	job  *domain.BatchJob
	url  string
}

// Job exposes the run's job for logging.
func (r *Run) Job() *domain.BatchJob {
	return r.job
}

// Cancel releases the run's concurrency slot without executing. Callers
// use it when the transport cannot be set up after a successful Prepare.
func (r *Run) Cancel() {
	<-r.orch.slots
}

// Prepare validates the request and reserves a concurrency slot. It
// fails fast with ErrInvalidPlaylistURL or ErrTooManyJobs before any
// event is emitted or any directory is created, so callers can still
// answer with a plain HTTP error.
func (o *Orchestrator) Prepare(rawURL string, kind domain.JobKind) (*Run, error) {
	if !ytdlp.IsPlaylistURL(rawURL) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPlaylistURL, rawURL)
	}

	select {
	case o.slots <- struct{}{}:
	default:
		return nil, domain.ErrTooManyJobs
	}

	job := domain.NewBatchJob(kind, ytdlp.PlaylistID(rawURL))
	return &Run{orch: o, job: job, url: rawURL}, nil
}

// Execute drives the job to a terminal state, emitting progress along
// the way. The context should be detached from the client connection: a
// dropped progress channel does not stop the batch, only server shutdown
// does. The returned job is terminal.
func (r *Run) Execute(ctx context.Context, emit EmitFunc) *domain.BatchJob {
	o := r.orch
	job := r.job

	o.active.Add(1)
	defer func() {
		o.active.Add(-1)
		<-o.slots
	}()

	start := time.Now()
	slog.Info("Batch job starting", "job_id", job.ID, "kind", job.Kind, "url", r.url)

	if err := o.execute(ctx, job, r.url, emit); err != nil {
		if ctx.Err() != nil {
			job.State = domain.StateAborted
		} else {
			job.State = domain.StateFailed
		}
		o.cleanupArtifacts(job)
		emit(domain.ErrorEvent("Playlist download failed", err.Error()))
		slog.Error("Batch job failed",
			"job_id", job.ID,
			"state", job.State,
			"error", err,
			"elapsed", time.Since(start).String(),
		)
		return job
	}

	slog.Info("Batch job completed",
		"job_id", job.ID,
		"members", job.TotalMembers,
		"failed", len(job.FailedTitles),
		"elapsed", time.Since(start).String(),
	)
	return job
}

// execute is the happy-path pipeline; any returned error is batch-fatal.
func (o *Orchestrator) execute(ctx context.Context, job *domain.BatchJob, rawURL string, emit EmitFunc) error {
	// Reclaim stale artifacts before writing new ones.
	if o.deps.Janitor != nil {
		o.deps.Janitor.Sweep()
	}

	job.WorkDir = filepath.Join(o.cfg.WorkRoot, job.ID)
	if err := os.MkdirAll(job.WorkDir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}

	job.State = domain.StateResolvingMembers
	emit(domain.StatusEvent("Fetching playlist members...", progressResolving, 0, 0))

	pl, err := o.deps.Tool.ResolvePlaylist(ctx, rawURL)
	if err != nil {
		return err
	}

	job.State = domain.StateRunning
	job.TotalMembers = len(pl.Members)
	emit(domain.StatusEvent(
		fmt.Sprintf("Found %d videos", job.TotalMembers),
		progressResolved, 0, job.TotalMembers,
	))

	for i, member := range pl.Members {
		if ctx.Err() != nil {
			return fmt.Errorf("batch interrupted: %w", ctx.Err())
		}

		progress := progressResolved + int(float64(i)/float64(job.TotalMembers)*progressMemberSpan)
		emit(domain.StatusEvent(
			fmt.Sprintf("Downloading: %s", member.Title),
			progress, i+1, job.TotalMembers,
		))

		if err := o.processMember(ctx, job, member); err != nil {
			job.RecordFailure(member.Title)
			emit(domain.WarningEvent(fmt.Sprintf("Could not download: %s", member.Title)))
			slog.Warn("Member download failed",
				"job_id", job.ID,
				"member_id", member.ID,
				"title", member.Title,
				"error", err,
			)
			continue
		}
		job.CompletedMembers++
	}

	return o.finalize(ctx, job, pl, emit)
}

// processMember downloads one playlist member into the job's working
// directory. Any error is a per-member failure, never batch-fatal.
func (o *Orchestrator) processMember(ctx context.Context, job *domain.BatchJob, m domain.PlaylistMember) error {
	videoURL := ytdlp.WatchURL(m.ID)

	if job.Kind == domain.KindVideo {
		return o.deps.Tool.DownloadVideo(ctx, videoURL, job.WorkDir)
	}
	return o.processAudioMember(ctx, job, m, videoURL)
}

// processAudioMember downloads the audio stream and then tries to dress
// it up: metadata, thumbnail, embedded cover. Only the download itself
// can fail the member; every later step falls back to the untagged file.
func (o *Orchestrator) processAudioMember(ctx context.Context, job *domain.BatchJob, m domain.PlaylistMember, videoURL string) error {
	tempMP3 := filepath.Join(job.WorkDir, "temp_"+m.ID+".mp3")
	coverPath := filepath.Join(job.WorkDir, "cover_"+m.ID+".jpg")
	finalMP3 := filepath.Join(job.WorkDir, domain.SanitizeTitle(m.Title)+".mp3")

	if err := o.deps.Tool.DownloadAudio(ctx, videoURL, tempMP3); err != nil {
		os.Remove(tempMP3)
		return err
	}

	keepUntagged := func() error {
		os.Remove(coverPath)
		return os.Rename(tempMP3, finalMP3)
	}

	info, err := o.deps.Tool.FetchVideoMetadata(ctx, videoURL)
	if err != nil || info.Thumbnail == "" {
		return keepUntagged()
	}

	if err := o.deps.Tagger.FetchImage(ctx, info.Thumbnail, coverPath); err != nil {
		slog.Debug("Thumbnail fetch failed, skipping cover embed",
			"job_id", job.ID,
			"member_id", m.ID,
			"error", err,
		)
		return keepUntagged()
	}

	if err := o.deps.Tagger.EmbedCoverArt(ctx, tempMP3, coverPath, finalMP3, m.Title, info.Artist()); err != nil {
		slog.Debug("Cover embed failed, keeping untagged file",
			"job_id", job.ID,
			"member_id", m.ID,
			"error", err,
		)
		return keepUntagged()
	}

	os.Remove(tempMP3)
	os.Remove(coverPath)
	return nil
}

// finalize zips the working directory, registers the archive and emits
// the terminal complete event.
func (o *Orchestrator) finalize(ctx context.Context, job *domain.BatchJob, pl *domain.Playlist, emit EmitFunc) error {
	job.State = domain.StateFinalizing
	emit(domain.StatusEvent("Compressing files...", progressArchiving, 0, job.TotalMembers))

	archivePath := filepath.Join(o.cfg.WorkRoot, job.ID+".zip")
	if err := o.buildArchive(job.WorkDir, archivePath); err != nil {
		return err
	}
	job.ArchivePath = archivePath

	fi, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("%w: archive missing after build: %v", domain.ErrArchive, err)
	}

	if err := o.deps.Store.Put(job.ID, jobstore.Entry{
		ArchivePath: archivePath,
		WorkDir:     job.WorkDir,
		CreatedAt:   job.CreatedAt,
	}); err != nil {
		return err
	}

	o.appendHistory(job, pl, fi.Size())
	o.mirrorArchive(ctx, job)

	job.State = domain.StateCompleted
	size := humanize.Bytes(uint64(fi.Size()))
	emit(domain.CompleteEvent("Download complete!", job.ID, size))
	return nil
}

// appendHistory records the run without blocking or failing the batch.
func (o *Orchestrator) appendHistory(job *domain.BatchJob, pl *domain.Playlist, sizeBytes int64) {
	if o.deps.History == nil {
		return
	}

	rec := &domain.HistoryRecord{
		JobID:       job.ID,
		Kind:        job.Kind,
		PlaylistID:  job.PlaylistID,
		Title:       pl.Title,
		MemberCount: job.TotalMembers,
		FailedCount: len(job.FailedTitles),
		SizeBytes:   sizeBytes,
		CreatedAt:   job.CreatedAt,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.deps.History.Append(ctx, rec); err != nil {
			slog.Warn("Failed to append history record", "job_id", rec.JobID, "error", err)
		}
	}()
}

// mirrorArchive uploads the archive off-box when a mirror is configured.
// Mirror failure never fails the batch; the local copy still serves.
func (o *Orchestrator) mirrorArchive(ctx context.Context, job *domain.BatchJob) {
	if o.deps.Mirror == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	url, err := o.deps.Mirror.UploadArchive(ctx, job.ArchivePath, job.ID)
	if err != nil {
		slog.Warn("Archive mirror upload failed", "job_id", job.ID, "error", err)
		return
	}
	slog.Info("Archive mirrored", "job_id", job.ID, "url", url)
}

// cleanupArtifacts removes the partial working directory and archive of
// a failed job, best effort.
func (o *Orchestrator) cleanupArtifacts(job *domain.BatchJob) {
	if job.WorkDir != "" {
		if err := os.RemoveAll(job.WorkDir); err != nil {
			slog.Warn("Failed to remove working directory", "job_id", job.ID, "error", err)
		}
	}
	if job.ArchivePath != "" {
		if err := os.Remove(job.ArchivePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove partial archive", "job_id", job.ID, "error", err)
		}
	}
	o.deps.Store.Delete(job.ID)
}
