// Package http provides HTTP handlers and router configuration.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
	"github.com/dvelarde/yt-playlist-api-go/internal/infra/cache"
	"github.com/dvelarde/yt-playlist-api-go/internal/infra/fs"
	"github.com/dvelarde/yt-playlist-api-go/internal/infra/jobstore"
	"github.com/dvelarde/yt-playlist-api-go/internal/infra/sqlite"
	"github.com/dvelarde/yt-playlist-api-go/internal/service/batch"
	"github.com/dvelarde/yt-playlist-api-go/internal/service/ytdlp"
	"github.com/dvelarde/yt-playlist-api-go/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// memberPreviewLimit caps how many playlist entries an info response lists.
const memberPreviewLimit = 50

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	tool    *ytdlp.Client
	orch    *batch.Orchestrator
	store   *jobstore.Store
	janitor *fs.Janitor
	cache   *cache.MetadataCache
	history *sqlite.History

	// appCtx outlives any single request. Batch runs execute on it so a
	// dropped progress channel never aborts the batch; only server
	// shutdown does.
	appCtx context.Context
}

// NewHandlers creates a new Handlers instance. history may be nil.
func NewHandlers(appCtx context.Context, tool *ytdlp.Client, orch *batch.Orchestrator, store *jobstore.Store, janitor *fs.Janitor, metaCache *cache.MetadataCache, history *sqlite.History) *Handlers {
	return &Handlers{
		tool:    tool,
		orch:    orch,
		store:   store,
		janitor: janitor,
		cache:   metaCache,
		history: history,
		appCtx:  appCtx,
	}
}

// HealthHandler handles GET /api/health requests.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &HealthResponse{
		Status:           "ok",
		ActiveJobs:       h.orch.Active(),
		TrackedArchives:  h.store.Len(),
		HistoryAvailable: h.history != nil,
	})
}

// PlaylistInfoHandler handles GET /api/playlist/info?url=... requests. It
// resolves the member list without downloading anything.
func (h *Handlers) PlaylistInfoHandler(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if err := middleware.ValidatePlaylistURL(rawURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_URL")
		return
	}

	pl, found := h.cache.GetPlaylist(rawURL)
	if !found {
		var err error
		pl, err = h.tool.ResolvePlaylist(r.Context(), rawURL)
		if err != nil {
			slog.Warn("Playlist resolution failed",
				"url", rawURL,
				"error", err,
				"ip", middleware.GetClientIP(r),
			)
			writeError(w, http.StatusBadGateway, "could not resolve playlist", "RESOLVE_FAILED")
			return
		}
		h.cache.SetPlaylist(rawURL, pl)
	}

	resp := &PlaylistInfoResponse{
		ID:         pl.ID,
		Title:      pl.Title,
		VideoCount: len(pl.Members),
		Videos:     make([]PlaylistMemberPreview, 0, memberPreviewLimit),
	}
	if len(pl.Members) > 0 {
		resp.Thumbnail = fmt.Sprintf("https://i.ytimg.com/vi/%s/mqdefault.jpg", pl.Members[0].ID)
	}
	for i, m := range pl.Members {
		if i == memberPreviewLimit {
			break
		}
		resp.Videos = append(resp.Videos, PlaylistMemberPreview{
			ID:       m.ID,
			Title:    m.Title,
			Duration: m.Duration,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// PlaylistProgressHandler returns the SSE handler for
// GET /api/playlist/{audio,video}/progress?url=... requests. It starts a
// batch job and streams its progress until a terminal event.
func (h *Handlers) PlaylistProgressHandler(kind domain.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawURL := r.URL.Query().Get("url")
		if err := middleware.ValidatePlaylistURL(rawURL); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_URL")
			return
		}

		run, err := h.orch.Prepare(rawURL, kind)
		if err != nil {
			if errors.Is(err, domain.ErrTooManyJobs) {
				writeError(w, http.StatusServiceUnavailable, "server is busy, please try again later", "TOO_MANY_JOBS")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_URL")
			return
		}

		stream, err := newSSEStream(w)
		if err != nil {
			run.Cancel()
			writeError(w, http.StatusInternalServerError, err.Error(), "STREAMING_UNSUPPORTED")
			return
		}

		slog.Info("Progress stream opened",
			"job_id", run.Job().ID,
			"kind", kind,
			"ip", middleware.GetClientIP(r),
		)

		// The batch runs on the application context, not the request
		// context: a client that drops the stream still gets a
		// retrievable archive.
		run.Execute(h.appCtx, stream.Send)
	}
}

// ArchiveHandler handles GET /api/playlist/zip/{jobId} requests. A
// successful retrieval schedules the job's artifacts for cleanup after a
// short grace period.
func (h *Handlers) ArchiveHandler(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "jobId is required", "MISSING_JOB_ID")
		return
	}

	entry, err := h.store.Get(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "archive not found or already reclaimed", "JOB_NOT_FOUND")
		return
	}

	file, err := os.Open(entry.ArchivePath)
	if err != nil {
		slog.Error("Archive file missing for tracked job",
			"job_id", jobID,
			"path", entry.ArchivePath,
			"error", err,
		)
		h.store.Delete(jobID)
		writeError(w, http.StatusNotFound, "archive not found or already reclaimed", "JOB_NOT_FOUND")
		return
	}
	defer file.Close()

	fi, err := file.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read archive", "ARCHIVE_READ")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID+".zip"))

	if _, err := io.Copy(w, file); err != nil {
		slog.Debug("Archive transfer interrupted", "job_id", jobID, "error", err)
	}

	h.janitor.ScheduleJobCleanup(jobID)
}

// HistoryHandler handles GET /api/history requests.
func (h *Handlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, []*domain.HistoryRecord{})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list history", "DB_ERROR")
		return
	}
	if records == nil {
		records = []*domain.HistoryRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// VideoInfoHandler handles POST /api/youtube/info requests: metadata and
// selectable formats for a single video.
func (h *Handlers) VideoInfoHandler(w http.ResponseWriter, r *http.Request) {
	info, ok := h.fetchVideoInfo(w, r)
	if !ok {
		return
	}

	resp := &VideoInfoResponse{
		ID:        info.ID,
		Title:     info.Title,
		Duration:  info.Duration,
		Thumbnail: info.Thumbnail,
		Uploader:  info.Artist(),
		Formats:   make([]VideoFormatInfo, 0, len(info.Formats)),
	}

	for i := range info.Formats {
		f := &info.Formats[i]
		if !f.Downloadable() || (!f.HasVideo() && !f.HasAudio()) {
			continue
		}
		resp.Formats = append(resp.Formats, VideoFormatInfo{
			FormatID: f.FormatID,
			Ext:      f.Ext,
			Quality:  formatQuality(f),
			HasAudio: f.HasAudio(),
			HasVideo: f.HasVideo(),
			Size:     formatSize(f.Filesize),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// VideoDownloadHandler handles POST /api/youtube/download requests: the
// best direct link carrying both video and audio.
func (h *Handlers) VideoDownloadHandler(w http.ResponseWriter, r *http.Request) {
	info, ok := h.fetchVideoInfo(w, r)
	if !ok {
		return
	}

	best := pickFormat(info.Formats, func(f *domain.VideoFormat) bool {
		return f.Downloadable() && f.HasVideo() && f.HasAudio()
	}, func(a, b *domain.VideoFormat) bool {
		return a.Height > b.Height
	})
	if best == nil {
		writeError(w, http.StatusNotFound, "no combined audio+video format available", "NO_FORMAT")
		return
	}

	writeJSON(w, http.StatusOK, &DirectLinkResponse{
		Title:   info.Title,
		URL:     best.URL,
		Ext:     best.Ext,
		Quality: formatQuality(best),
	})
}

// VideoAudioHandler handles POST /api/youtube/audio requests: the best
// audio-only direct link.
func (h *Handlers) VideoAudioHandler(w http.ResponseWriter, r *http.Request) {
	info, ok := h.fetchVideoInfo(w, r)
	if !ok {
		return
	}

	best := pickFormat(info.Formats, func(f *domain.VideoFormat) bool {
		return f.Downloadable() && f.HasAudio() && !f.HasVideo()
	}, func(a, b *domain.VideoFormat) bool {
		return a.Abr > b.Abr
	})
	if best == nil {
		writeError(w, http.StatusNotFound, "no audio-only format available", "NO_FORMAT")
		return
	}

	writeJSON(w, http.StatusOK, &DirectLinkResponse{
		Title:   info.Title,
		URL:     best.URL,
		Ext:     best.Ext,
		Quality: formatQuality(best),
	})
}

// fetchVideoInfo parses the request body, validates the video URL and
// returns cached or freshly fetched metadata. On failure it writes the
// error response itself and returns ok=false.
func (h *Handlers) fetchVideoInfo(w http.ResponseWriter, r *http.Request) (*domain.VideoInfo, bool) {
	var req URLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return nil, false
	}

	videoID, err := middleware.ValidateVideoURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_URL")
		return nil, false
	}
	videoURL := ytdlp.WatchURL(videoID)

	if info, found := h.cache.GetVideo(videoURL); found {
		return info, true
	}

	info, err := h.tool.FetchVideoMetadata(r.Context(), videoURL)
	if err != nil {
		slog.Warn("Video metadata fetch failed",
			"url", req.URL,
			"error", err,
			"ip", middleware.GetClientIP(r),
		)
		writeError(w, http.StatusBadGateway, "could not fetch video metadata", "METADATA_FAILED")
		return nil, false
	}
	h.cache.SetVideo(videoURL, info)

	return info, true
}

// pickFormat returns the best format passing the filter, or nil.
func pickFormat(formats []domain.VideoFormat, keep func(*domain.VideoFormat) bool, better func(a, b *domain.VideoFormat) bool) *domain.VideoFormat {
	var candidates []*domain.VideoFormat
	for i := range formats {
		if keep(&formats[i]) {
			candidates = append(candidates, &formats[i])
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return better(candidates[i], candidates[j])
	})
	return candidates[0]
}

func formatQuality(f *domain.VideoFormat) string {
	if f.Height > 0 {
		return fmt.Sprintf("%dp", f.Height)
	}
	if f.FormatNote != "" {
		return f.FormatNote
	}
	if f.Abr > 0 {
		return fmt.Sprintf("%.0fkbps", f.Abr)
	}
	return "unknown"
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(bytes))
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, &ErrorResponse{
		Error: message,
		Code:  code,
	})
}
