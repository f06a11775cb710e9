// Package domain contains the core business entities and types.
package domain

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// JobKind selects the output format of a batch job.
type JobKind string

const (
	KindAudio JobKind = "audio"
	KindVideo JobKind = "video"
)

// JobState represents the current state of a batch job.
type JobState string

const (
	StateCreated          JobState = "created"
	StateResolvingMembers JobState = "resolving"
	StateRunning          JobState = "running"
	StateFinalizing       JobState = "finalizing"
	StateCompleted        JobState = "completed"
	StateFailed           JobState = "failed"
	StateAborted          JobState = "aborted"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAborted
}

// PlaylistMember is one entry of a resolved playlist.
type PlaylistMember struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// Playlist is the result of resolving a playlist URL.
type Playlist struct {
	ID      string
	Title   string
	Members []PlaylistMember
}

// BatchJob represents one playlist-to-archive run. It is mutated only by
// the orchestrator goroutine running the job.
type BatchJob struct {
	ID               string
	Kind             JobKind
	PlaylistID       string
	WorkDir          string
	ArchivePath      string
	CreatedAt        time.Time
	State            JobState
	TotalMembers     int
	CompletedMembers int
	FailedTitles     []string
}

// jobSeq hands out strictly increasing nanosecond values so that two
// batch requests for the same playlist in the same instant still get
// distinct job ids.
var jobSeq atomic.Int64

// NewBatchJob creates a job with id <kind>_<playlistId>_<n>, n monotonic.
func NewBatchJob(kind JobKind, playlistID string) *BatchJob {
	for {
		now := time.Now().UnixNano()
		last := jobSeq.Load()
		if now <= last {
			now = last + 1
		}
		if jobSeq.CompareAndSwap(last, now) {
			return &BatchJob{
				ID:         fmt.Sprintf("%s_%s_%d", kind, playlistID, now),
				Kind:       kind,
				PlaylistID: playlistID,
				CreatedAt:  time.Now().UTC(),
				State:      StateCreated,
			}
		}
	}
}

// RecordFailure appends a failed member title.
func (j *BatchJob) RecordFailure(title string) {
	j.FailedTitles = append(j.FailedTitles, title)
}

// VideoInfo is the subset of the media tool's JSON metadata the server
// cares about.
type VideoInfo struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Duration   float64       `json:"duration"`
	Thumbnail  string        `json:"thumbnail,omitempty"`
	Uploader   string        `json:"uploader,omitempty"`
	Channel    string        `json:"channel,omitempty"`
	ViewCount  int64         `json:"view_count,omitempty"`
	UploadDate string        `json:"upload_date,omitempty"`
	WebpageURL string        `json:"webpage_url,omitempty"`
	Formats    []VideoFormat `json:"formats,omitempty"`
}

// Artist returns the best available artist name for tagging.
func (v *VideoInfo) Artist() string {
	if v.Uploader != "" {
		return v.Uploader
	}
	if v.Channel != "" {
		return v.Channel
	}
	return "Unknown Artist"
}

// VideoFormat is one downloadable format reported by the media tool.
type VideoFormat struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	URL        string  `json:"url"`
	Vcodec     string  `json:"vcodec"`
	Acodec     string  `json:"acodec"`
	Height     int     `json:"height,omitempty"`
	FormatNote string  `json:"format_note,omitempty"`
	Filesize   int64   `json:"filesize,omitempty"`
	Abr        float64 `json:"abr,omitempty"`
}

// HasVideo reports whether the format carries a video stream.
func (f *VideoFormat) HasVideo() bool {
	return f.Vcodec != "" && f.Vcodec != "none"
}

// HasAudio reports whether the format carries an audio stream.
func (f *VideoFormat) HasAudio() bool {
	return f.Acodec != "" && f.Acodec != "none"
}

// Downloadable filters out manifest URLs which cannot be fetched directly.
func (f *VideoFormat) Downloadable() bool {
	return f.URL != "" && !strings.Contains(f.URL, "manifest")
}

// HistoryRecord is one completed batch run retained in the history store.
type HistoryRecord struct {
	JobID       string    `json:"jobId"`
	Kind        JobKind   `json:"kind"`
	PlaylistID  string    `json:"playlistId"`
	Title       string    `json:"title"`
	MemberCount int       `json:"memberCount"`
	FailedCount int       `json:"failedCount"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SanitizeTitle strips filename-hostile characters from a display title
// and caps its length, mirroring what the member loop writes to disk.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	// Cap on a rune boundary; a byte slice could split a multi-byte
	// character and produce an invalid filename.
	if utf8.RuneCountInString(s) > 100 {
		s = string([]rune(s)[:100])
	}
	if s == "" {
		s = "untitled"
	}
	return s
}
