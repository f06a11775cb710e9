// Package ytdlp wraps the external media tool as a set of typed
// operations: playlist resolution, metadata fetch, and per-item video or
// audio downloads. The tool is treated as a black box invoked with
// argument lists; all calls carry their own timeout.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
)

// maxOutputBytes bounds the stdout we keep from a single invocation.
const maxOutputBytes = 50 * 1024 * 1024

// retryCount is passed to the tool itself for transient network errors.
const retryCount = "3"

// playlistIDRe extracts the playlist marker from a URL.
var playlistIDRe = regexp.MustCompile(`list=([a-zA-Z0-9_-]+)`)

// Config holds tool paths and per-operation timeouts.
type Config struct {
	YtDlpPath       string
	FFmpegPath      string
	ResolveTimeout  time.Duration
	MetadataTimeout time.Duration
	DownloadTimeout time.Duration
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() *Config {
	return &Config{
		YtDlpPath:       "yt-dlp",
		FFmpegPath:      "ffmpeg",
		ResolveTimeout:  time.Minute,
		MetadataTimeout: 30 * time.Second,
		DownloadTimeout: 10 * time.Minute,
	}
}

// Client invokes the external media tool.
type Client struct {
	cfg *Config
}

// New creates a Client with the given configuration.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{cfg: cfg}
}

// PlaylistID returns the playlist marker of the URL, or "" if absent.
func PlaylistID(rawURL string) string {
	m := playlistIDRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsPlaylistURL reports whether the URL names a YouTube playlist.
func IsPlaylistURL(rawURL string) bool {
	if !strings.Contains(rawURL, "list=") {
		return false
	}
	return strings.Contains(rawURL, "youtube.com") || strings.Contains(rawURL, "youtu.be")
}

// WatchURL builds a canonical single-video URL from a member id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// ResolvePlaylist enumerates a playlist's members via a flat-playlist
// dump, one JSON object per line. Malformed lines are skipped, not fatal.
func (c *Client) ResolvePlaylist(ctx context.Context, rawURL string) (*domain.Playlist, error) {
	if !IsPlaylistURL(rawURL) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPlaylistURL, rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ResolveTimeout)
	defer cancel()

	stdout, err := c.run(ctx, c.cfg.YtDlpPath,
		"-j",
		"--flat-playlist",
		"--no-warnings",
		rawURL,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrToolInvocation, err)
	}

	pl, err := parsePlaylistDump(stdout)
	if err != nil {
		return nil, err
	}
	pl.ID = PlaylistID(rawURL)

	return pl, nil
}

// parsePlaylistDump decodes a flat-playlist dump line by line. Lines that
// fail to decode are skipped so one bad entry never hides the rest.
func parsePlaylistDump(stdout []byte) (*domain.Playlist, error) {
	pl := &domain.Playlist{}

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry struct {
			ID            string  `json:"id"`
			Title         string  `json:"title"`
			Duration      float64 `json:"duration"`
			PlaylistTitle string  `json:"playlist_title"`
		}
		if err := json.Unmarshal(line, &entry); err != nil {
			slog.Debug("Skipping malformed playlist line", "error", err)
			continue
		}
		if entry.ID == "" {
			continue
		}
		if pl.Title == "" && entry.PlaylistTitle != "" {
			pl.Title = entry.PlaylistTitle
		}
		pl.Members = append(pl.Members, domain.PlaylistMember{
			ID:       entry.ID,
			Title:    entry.Title,
			Duration: entry.Duration,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading tool output: %v", domain.ErrToolInvocation, err)
	}
	if len(pl.Members) == 0 {
		return nil, fmt.Errorf("%w: playlist has no resolvable members", domain.ErrToolInvocation)
	}
	if pl.Title == "" {
		pl.Title = "Playlist"
	}

	return pl, nil
}

// FetchVideoMetadata retrieves a single video's metadata without
// downloading anything.
func (c *Client) FetchVideoMetadata(ctx context.Context, videoURL string) (*domain.VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MetadataTimeout)
	defer cancel()

	stdout, err := c.run(ctx, c.cfg.YtDlpPath,
		"-j",
		"--no-playlist",
		"--no-warnings",
		videoURL,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrToolInvocation, err)
	}

	var info domain.VideoInfo
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &info); err != nil {
		return nil, fmt.Errorf("%w: parsing metadata: %v", domain.ErrToolInvocation, err)
	}

	return &info, nil
}

// DownloadVideo downloads a single video into destDir, preferring H.264
// so the result plays on mobile devices without re-encoding. The output
// file is named after the video title.
func (c *Client) DownloadVideo(ctx context.Context, videoURL, destDir string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	_, err := c.run(ctx, c.cfg.YtDlpPath,
		"-f", "best[vcodec^=avc1]/best[vcodec^=h264]/best",
		"-o", destDir+"/%(title)s.%(ext)s",
		"-R", retryCount,
		"--no-playlist",
		"--no-warnings",
		"--no-cache-dir",
		"--socket-timeout", "30",
		videoURL,
	)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: timed out", domain.ErrDownloadFailed)
		}
		return fmt.Errorf("%w: %v", domain.ErrDownloadFailed, err)
	}
	return nil
}

// DownloadAudio extracts the best audio stream to an MP3 at destPath,
// at a fixed 320K target bitrate.
func (c *Client) DownloadAudio(ctx context.Context, videoURL, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	_, err := c.run(ctx, c.cfg.YtDlpPath,
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "320K",
		"--ffmpeg-location", c.cfg.FFmpegPath,
		"-o", destPath,
		"-R", retryCount,
		"--no-playlist",
		"--no-warnings",
		"--no-cache-dir",
		"--socket-timeout", "30",
		videoURL,
	)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: timed out", domain.ErrDownloadFailed)
		}
		return fmt.Errorf("%w: %v", domain.ErrDownloadFailed, err)
	}
	return nil
}

// run executes the tool and returns its stdout. On non-zero exit the
// error carries a truncated stderr excerpt.
func (c *Client) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &boundedWriter{w: &stdout, limit: maxOutputBytes}
	cmd.Stderr = &boundedWriter{w: &stderr, limit: 64 * 1024}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %s", err, truncate(stderr.String(), 200))
	}

	return stdout.Bytes(), nil
}

// boundedWriter discards bytes past the limit so a chatty subprocess
// cannot grow memory without bound.
type boundedWriter struct {
	w     *bytes.Buffer
	limit int
	n     int
}

func (b *boundedWriter) Write(p []byte) (int, error) {
	if b.n < b.limit {
		keep := p
		if b.n+len(keep) > b.limit {
			keep = keep[:b.limit-b.n]
		}
		b.w.Write(keep)
	}
	b.n += len(p)
	return len(p), nil
}

// truncate shortens a string for error messages.
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
