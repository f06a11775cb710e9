// Package ffmpeg wraps the external media-processing tool for cover art
// embedding, plus the thumbnail fetch that feeds it. Failures here are
// non-fatal to a batch: callers fall back to the untagged file.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
	"github.com/dvelarde/yt-playlist-api-go/pkg/safeclient"
)

// Config holds the tool path and timeouts.
type Config struct {
	FFmpegPath   string
	TagTimeout   time.Duration
	FetchTimeout time.Duration
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() *Config {
	return &Config{
		FFmpegPath:   "ffmpeg",
		TagTimeout:   5 * time.Minute,
		FetchTimeout: 30 * time.Second,
	}
}

// Tagger embeds cover art into MP3 files and fetches remote images.
type Tagger struct {
	cfg    *Config
	client *http.Client
}

// New creates a Tagger with the given configuration.
func New(cfg *Config) *Tagger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Tagger{
		cfg:    cfg,
		client: safeclient.New(cfg.FetchTimeout),
	}
}

// EmbedCoverArt copies the audio stream of mp3Path into outPath, attaches
// coverPath as the ID3v2.3 album-cover picture, and sets title/artist
// tags. The audio stream is never re-encoded.
func (t *Tagger) EmbedCoverArt(ctx context.Context, mp3Path, coverPath, outPath, title, artist string) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.TagTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.cfg.FFmpegPath,
		"-i", mp3Path,
		"-i", coverPath,
		"-c", "copy",
		"-map", "0",
		"-map", "1",
		"-metadata:s:v", "title=Album cover",
		"-metadata:s:v", "comment=Cover",
		"-metadata", "title="+title,
		"-metadata", "artist="+artist,
		"-id3v2_version", "3",
		"-y",
		outPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", domain.ErrTagEmbed, ctx.Err())
		}
		return fmt.Errorf("%w: %s", domain.ErrTagEmbed, excerpt(stderr.String()))
	}

	return nil
}

// FetchImage streams an HTTP(S) GET response body into destPath.
func (t *Tagger) FetchImage(ctx context.Context, url, destPath string) error {
	resp, err := safeclient.Get(ctx, t.client, url)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrImageFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status %d", domain.ErrImageFetch, resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrImageFetch, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(destPath)
		return fmt.Errorf("%w: %v", domain.ErrImageFetch, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("%w: %v", domain.ErrImageFetch, err)
	}

	return nil
}

// excerpt returns the last few stderr lines, where the tool puts the
// actual failure reason.
func excerpt(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	s := strings.Join(lines, "; ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
