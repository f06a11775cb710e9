package batch

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
	"github.com/dvelarde/yt-playlist-api-go/internal/infra/jobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlaylistURL = "https://www.youtube.com/playlist?list=PLtest123"

// fakeTool simulates the extraction tool: downloads write small files
// into the destination, failures are keyed by member id.
type fakeTool struct {
	playlist   *domain.Playlist
	resolveErr error
	failIDs    map[string]bool
	metaErr    error
	noThumb    bool
}

func newFakeTool(titles ...string) *fakeTool {
	pl := &domain.Playlist{Title: "Test Mix"}
	for i, title := range titles {
		pl.Members = append(pl.Members, domain.PlaylistMember{
			ID:       memberID(i),
			Title:    title,
			Duration: 180,
		})
	}
	return &fakeTool{playlist: pl, failIDs: map[string]bool{}}
}

func memberID(i int) string {
	return "vid" + string(rune('A'+i))
}

func (f *fakeTool) memberByURL(videoURL string) (domain.PlaylistMember, bool) {
	id := strings.TrimPrefix(videoURL, "https://www.youtube.com/watch?v=")
	for _, m := range f.playlist.Members {
		if m.ID == id {
			return m, true
		}
	}
	return domain.PlaylistMember{}, false
}

func (f *fakeTool) ResolvePlaylist(ctx context.Context, url string) (*domain.Playlist, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.playlist, nil
}

func (f *fakeTool) FetchVideoMetadata(ctx context.Context, videoURL string) (*domain.VideoInfo, error) {
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	m, _ := f.memberByURL(videoURL)
	info := &domain.VideoInfo{ID: m.ID, Title: m.Title, Uploader: "Test Uploader"}
	if !f.noThumb {
		info.Thumbnail = "https://i.ytimg.com/vi/" + m.ID + "/mqdefault.jpg"
	}
	return info, nil
}

func (f *fakeTool) DownloadVideo(ctx context.Context, videoURL, destDir string) error {
	m, ok := f.memberByURL(videoURL)
	if !ok || f.failIDs[m.ID] {
		return domain.ErrDownloadFailed
	}
	return os.WriteFile(filepath.Join(destDir, domain.SanitizeTitle(m.Title)+".mp4"), []byte("video "+m.ID), 0644)
}

func (f *fakeTool) DownloadAudio(ctx context.Context, videoURL, destPath string) error {
	m, ok := f.memberByURL(videoURL)
	if !ok || f.failIDs[m.ID] {
		return domain.ErrDownloadFailed
	}
	return os.WriteFile(destPath, []byte("audio "+m.ID), 0644)
}

// fakeTagger writes placeholder covers and copies audio on embed.
type fakeTagger struct {
	fetchErr error
	embedErr error
	embeds   int
}

func (f *fakeTagger) FetchImage(ctx context.Context, url, destPath string) error {
	if f.fetchErr != nil {
		return f.fetchErr
	}
	return os.WriteFile(destPath, []byte("cover"), 0644)
}

func (f *fakeTagger) EmbedCoverArt(ctx context.Context, mp3Path, coverPath, outPath, title, artist string) error {
	if f.embedErr != nil {
		return f.embedErr
	}
	data, err := os.ReadFile(mp3Path)
	if err != nil {
		return err
	}
	f.embeds++
	return os.WriteFile(outPath, append(data, []byte(" tagged")...), 0644)
}

type eventLog struct {
	events []domain.ProgressEvent
}

func (l *eventLog) emit(ev domain.ProgressEvent) {
	l.events = append(l.events, ev)
}

func (l *eventLog) byName(name domain.EventName) []domain.ProgressEvent {
	var out []domain.ProgressEvent
	for _, ev := range l.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func newTestOrchestrator(t *testing.T, tool MediaTool, tagger Tagger, maxJobs int) (*Orchestrator, *jobstore.Store, string) {
	t.Helper()

	workRoot := t.TempDir()
	store := jobstore.New()
	orch := New(Config{WorkRoot: workRoot, MaxConcurrentJobs: maxJobs}, Deps{
		Tool:   tool,
		Tagger: tagger,
		Store:  store,
	})
	return orch, store, workRoot
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestPrepareRejectsInvalidURL(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, newFakeTool("A"), &fakeTagger{}, 1)

	_, err := orch.Prepare("https://example.com/not-youtube", domain.KindAudio)
	assert.ErrorIs(t, err, domain.ErrInvalidPlaylistURL)

	_, err = orch.Prepare("https://www.youtube.com/watch?v=abc", domain.KindAudio)
	assert.ErrorIs(t, err, domain.ErrInvalidPlaylistURL)
}

func TestPrepareEnforcesConcurrencyLimit(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, newFakeTool("A"), &fakeTagger{}, 1)

	run, err := orch.Prepare(testPlaylistURL, domain.KindAudio)
	require.NoError(t, err)

	_, err = orch.Prepare(testPlaylistURL, domain.KindAudio)
	assert.ErrorIs(t, err, domain.ErrTooManyJobs)

	// Cancelling the held run frees its slot.
	run.Cancel()
	run2, err := orch.Prepare(testPlaylistURL, domain.KindAudio)
	require.NoError(t, err)
	run2.Cancel()
}

func TestVideoBatchSuccess(t *testing.T) {
	tool := newFakeTool("Song One", "Song Two", "Song Three")
	orch, store, workRoot := newTestOrchestrator(t, tool, &fakeTagger{}, 2)

	run, err := orch.Prepare(testPlaylistURL, domain.KindVideo)
	require.NoError(t, err)

	var log eventLog
	job := run.Execute(context.Background(), log.emit)

	require.Equal(t, domain.StateCompleted, job.State)
	assert.Regexp(t, regexp.MustCompile(`^video_PLtest123_\d+$`), job.ID)
	assert.Equal(t, 3, job.TotalMembers)
	assert.Equal(t, 3, job.CompletedMembers)
	assert.Empty(t, job.FailedTitles)

	// Event channel contract: opens with a status frame, ends with
	// complete, progress never decreases.
	require.NotEmpty(t, log.events)
	first, last := log.events[0], log.events[len(log.events)-1]
	assert.Equal(t, domain.EventStatus, first.Name)
	assert.Equal(t, 5, first.Data.Progress)
	require.Equal(t, domain.EventComplete, last.Name)
	assert.Equal(t, job.ID, last.Data.JobID)
	assert.Equal(t, 100, last.Data.Progress)
	assert.NotEmpty(t, last.Data.Size)

	prev := 0
	for _, ev := range log.events {
		if ev.Name != domain.EventStatus && ev.Name != domain.EventComplete {
			continue
		}
		assert.GreaterOrEqual(t, ev.Data.Progress, prev, "progress went backwards at %+v", ev)
		prev = ev.Data.Progress
	}

	// The archive is registered and holds one file per member.
	entry, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workRoot, job.ID+".zip"), entry.ArchivePath)
	assert.Equal(t, []string{"Song One.mp4", "Song Three.mp4", "Song Two.mp4"}, zipNames(t, entry.ArchivePath))

	assert.Equal(t, 0, orch.Active(), "slot must be released after completion")
}

func TestBatchToleratesMemberFailures(t *testing.T) {
	tool := newFakeTool("Good One", "Broken", "Good Two")
	tool.failIDs[memberID(1)] = true
	orch, store, _ := newTestOrchestrator(t, tool, &fakeTagger{}, 2)

	run, err := orch.Prepare(testPlaylistURL, domain.KindVideo)
	require.NoError(t, err)

	var log eventLog
	job := run.Execute(context.Background(), log.emit)

	require.Equal(t, domain.StateCompleted, job.State)
	assert.Equal(t, 2, job.CompletedMembers)
	assert.Equal(t, []string{"Broken"}, job.FailedTitles)

	warnings := log.byName(domain.EventWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Data.Message, "Broken")

	entry, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Good One.mp4", "Good Two.mp4"}, zipNames(t, entry.ArchivePath))
}

func TestAudioBatchEmbedsCovers(t *testing.T) {
	tool := newFakeTool("Track Alpha", "Track Beta")
	tagger := &fakeTagger{}
	orch, store, _ := newTestOrchestrator(t, tool, tagger, 2)

	run, err := orch.Prepare(testPlaylistURL, domain.KindAudio)
	require.NoError(t, err)

	var log eventLog
	job := run.Execute(context.Background(), log.emit)

	require.Equal(t, domain.StateCompleted, job.State)
	assert.Equal(t, 2, tagger.embeds)

	entry, err := store.Get(job.ID)
	require.NoError(t, err)
	// Only the final tagged files survive; temp downloads and covers
	// are removed before archiving.
	assert.Equal(t, []string{"Track Alpha.mp3", "Track Beta.mp3"}, zipNames(t, entry.ArchivePath))
}

func TestAudioBatchFallsBackWhenMetadataFails(t *testing.T) {
	tool := newFakeTool("Lonely Track")
	tool.metaErr = domain.ErrToolInvocation
	tagger := &fakeTagger{}
	orch, store, _ := newTestOrchestrator(t, tool, tagger, 2)

	run, err := orch.Prepare(testPlaylistURL, domain.KindAudio)
	require.NoError(t, err)

	var log eventLog
	job := run.Execute(context.Background(), log.emit)

	require.Equal(t, domain.StateCompleted, job.State)
	assert.Equal(t, 0, tagger.embeds)
	assert.Empty(t, log.byName(domain.EventWarning), "tagging fallback is not a member failure")

	entry, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lonely Track.mp3"}, zipNames(t, entry.ArchivePath))
}

func TestAudioBatchFallsBackWhenCoverFetchFails(t *testing.T) {
	tool := newFakeTool("Track")
	tagger := &fakeTagger{fetchErr: domain.ErrImageFetch}
	orch, store, _ := newTestOrchestrator(t, tool, tagger, 2)

	run, err := orch.Prepare(testPlaylistURL, domain.KindAudio)
	require.NoError(t, err)

	var log eventLog
	job := run.Execute(context.Background(), log.emit)

	require.Equal(t, domain.StateCompleted, job.State)
	entry, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Track.mp3"}, zipNames(t, entry.ArchivePath))
}

func TestResolveFailureIsTerminal(t *testing.T) {
	tool := newFakeTool("A")
	tool.resolveErr = errors.New("playlist is private")
	orch, store, workRoot := newTestOrchestrator(t, tool, &fakeTagger{}, 2)

	run, err := orch.Prepare(testPlaylistURL, domain.KindVideo)
	require.NoError(t, err)

	var log eventLog
	job := run.Execute(context.Background(), log.emit)

	assert.Equal(t, domain.StateFailed, job.State)

	last := log.events[len(log.events)-1]
	require.Equal(t, domain.EventError, last.Name)
	assert.Contains(t, last.Data.Error, "playlist is private")

	// Nothing registered, nothing left on disk.
	assert.Equal(t, 0, store.Len())
	entries, err := os.ReadDir(workRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCancelledContextAbortsBatch(t *testing.T) {
	tool := newFakeTool("A", "B")
	orch, store, _ := newTestOrchestrator(t, tool, &fakeTagger{}, 2)

	run, err := orch.Prepare(testPlaylistURL, domain.KindVideo)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var log eventLog
	job := run.Execute(ctx, log.emit)

	assert.Equal(t, domain.StateAborted, job.State)
	require.NotEmpty(t, log.events)
	assert.Equal(t, domain.EventError, log.events[len(log.events)-1].Name)
	assert.Equal(t, 0, store.Len())
}

func TestAllMembersFailingStillCompletes(t *testing.T) {
	tool := newFakeTool("One", "Two")
	tool.failIDs[memberID(0)] = true
	tool.failIDs[memberID(1)] = true
	orch, store, _ := newTestOrchestrator(t, tool, &fakeTagger{}, 2)

	run, err := orch.Prepare(testPlaylistURL, domain.KindVideo)
	require.NoError(t, err)

	var log eventLog
	job := run.Execute(context.Background(), log.emit)

	// Per-member failures never abort the batch; the archive is just empty.
	require.Equal(t, domain.StateCompleted, job.State)
	assert.Len(t, job.FailedTitles, 2)
	assert.Len(t, log.byName(domain.EventWarning), 2)

	entry, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Empty(t, zipNames(t, entry.ArchivePath))
}
