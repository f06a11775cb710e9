package domain

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain title", "My Song", "My Song"},
		{"path separators stripped", `AC/DC - Back\In Black`, "ACDC - BackIn Black"},
		{"windows reserved chars stripped", `a<b>c:d"e|f?g*h`, "abcdefgh"},
		{"surrounding whitespace trimmed", "  padded  ", "padded"},
		{"empty becomes untitled", "", "untitled"},
		{"only hostile chars becomes untitled", `<>:"/\|?*`, "untitled"},
		{"long title capped", strings.Repeat("x", 150), strings.Repeat("x", 100)},
		{"multibyte title capped on rune boundary", strings.Repeat("日", 120), strings.Repeat("日", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeTitle(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.True(t, utf8.ValidString(got), "sanitized title must be valid UTF-8")
		})
	}
}

func TestNewBatchJobIDFormat(t *testing.T) {
	job := NewBatchJob(KindVideo, "PLabc123")

	pattern := regexp.MustCompile(`^video_PLabc123_\d+$`)
	assert.True(t, pattern.MatchString(job.ID), "unexpected id %q", job.ID)
	assert.Equal(t, KindVideo, job.Kind)
	assert.Equal(t, "PLabc123", job.PlaylistID)
	assert.Equal(t, StateCreated, job.State)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestNewBatchJobIDsAreUnique(t *testing.T) {
	const n = 200

	var mu sync.Mutex
	seen := make(map[string]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := NewBatchJob(KindAudio, "PLsame")
			mu.Lock()
			seen[job.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, n, "two concurrent jobs got the same id")
}

func TestJobStateTerminal(t *testing.T) {
	terminal := []JobState{StateCompleted, StateFailed, StateAborted}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "state %s", s)
	}

	live := []JobState{StateCreated, StateResolvingMembers, StateRunning, StateFinalizing}
	for _, s := range live {
		assert.False(t, s.Terminal(), "state %s", s)
	}
}

func TestVideoInfoArtist(t *testing.T) {
	assert.Equal(t, "Uploader", (&VideoInfo{Uploader: "Uploader", Channel: "Channel"}).Artist())
	assert.Equal(t, "Channel", (&VideoInfo{Channel: "Channel"}).Artist())
	assert.Equal(t, "Unknown Artist", (&VideoInfo{}).Artist())
}

func TestVideoFormatPredicates(t *testing.T) {
	combined := VideoFormat{Vcodec: "avc1.640028", Acodec: "mp4a.40.2", URL: "https://example.com/v.mp4"}
	assert.True(t, combined.HasVideo())
	assert.True(t, combined.HasAudio())
	assert.True(t, combined.Downloadable())

	audioOnly := VideoFormat{Vcodec: "none", Acodec: "opus", URL: "https://example.com/a.webm"}
	assert.False(t, audioOnly.HasVideo())
	assert.True(t, audioOnly.HasAudio())

	manifest := VideoFormat{Vcodec: "avc1", Acodec: "mp4a", URL: "https://example.com/manifest/dash.mpd"}
	assert.False(t, manifest.Downloadable())

	assert.False(t, (&VideoFormat{}).Downloadable())
}

func TestRecordFailure(t *testing.T) {
	job := NewBatchJob(KindAudio, "PLx")
	job.RecordFailure("one")
	job.RecordFailure("two")

	assert.Equal(t, []string{"one", "two"}, job.FailedTitles)
}

func TestProgressEventTerminal(t *testing.T) {
	assert.True(t, CompleteEvent("done", "job", "1 MB").Terminal())
	assert.True(t, ErrorEvent("failed", "boom").Terminal())
	assert.False(t, StatusEvent("working", 50, 1, 2).Terminal())
	assert.False(t, WarningEvent(fmt.Sprintf("Could not download: %s", "x")).Terminal())
}

func TestCompleteEventCarriesFullProgress(t *testing.T) {
	ev := CompleteEvent("Download complete!", "video_PL_1", "12 MB")

	assert.Equal(t, EventComplete, ev.Name)
	assert.Equal(t, 100, ev.Data.Progress)
	assert.Equal(t, "video_PL_1", ev.Data.JobID)
	assert.Equal(t, "12 MB", ev.Data.Size)
}
