package middleware

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Allowed hosts for incoming YouTube URLs. The extraction tool supports
// far more sites, but this API only serves YouTube playlists and videos.
var allowedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// URL validation errors
var (
	ErrEmptyURL        = errors.New("URL cannot be empty")
	ErrInvalidURL      = errors.New("invalid URL format")
	ErrSchemeRequired  = errors.New("only http(s) URLs are allowed")
	ErrHostNotAllowed  = errors.New("only YouTube URLs are allowed")
	ErrUserInfoPresent = errors.New("URLs with user credentials are not allowed")
	ErrNotAPlaylist    = errors.New("URL does not reference a playlist")
	ErrNoVideoID       = errors.New("could not extract a video id from the URL")
)

var videoIDPattern = regexp.MustCompile(`(?:youtube\.com/(?:watch\?.*v=|shorts/|embed/)|youtu\.be/)([A-Za-z0-9_-]{11})`)

// validateBase applies the checks shared by playlist and video URLs and
// returns the parsed URL.
func validateBase(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrEmptyURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, ErrInvalidURL
	}

	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, ErrSchemeRequired
	}

	if parsed.User != nil {
		return nil, ErrUserInfoPresent
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return nil, ErrInvalidURL
	}
	if !allowedHosts[host] {
		return nil, ErrHostNotAllowed
	}

	return parsed, nil
}

// ValidatePlaylistURL checks that the URL is a YouTube playlist URL.
func ValidatePlaylistURL(rawURL string) error {
	parsed, err := validateBase(rawURL)
	if err != nil {
		return err
	}

	if parsed.Query().Get("list") == "" {
		return ErrNotAPlaylist
	}

	return nil
}

// ValidateVideoURL checks that the URL is a YouTube video URL and returns
// the extracted 11-character video id.
func ValidateVideoURL(rawURL string) (string, error) {
	if _, err := validateBase(rawURL); err != nil {
		return "", err
	}

	m := videoIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", ErrNoVideoID
	}

	return m[1], nil
}
