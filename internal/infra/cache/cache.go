// Package cache provides in-memory caching of media tool results, so
// repeated lookups of the same URL don't each pay for a subprocess call.
package cache

import (
	"time"

	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
	gocache "github.com/patrickmn/go-cache"
)

// MetadataCache caches playlist resolutions and video metadata by URL.
type MetadataCache struct {
	playlists *gocache.Cache
	videos    *gocache.Cache
}

// New creates a MetadataCache with the given TTL and cleanup interval.
func New(ttl, cleanupInterval time.Duration) *MetadataCache {
	return &MetadataCache{
		playlists: gocache.New(ttl, cleanupInterval),
		videos:    gocache.New(ttl, cleanupInterval),
	}
}

// Default creates a MetadataCache with a 1 hour TTL.
func Default() *MetadataCache {
	return New(time.Hour, 10*time.Minute)
}

// GetPlaylist retrieves a cached playlist resolution.
func (c *MetadataCache) GetPlaylist(url string) (*domain.Playlist, bool) {
	if item, found := c.playlists.Get(url); found {
		if pl, ok := item.(*domain.Playlist); ok {
			return pl, true
		}
	}
	return nil, false
}

// SetPlaylist stores a playlist resolution.
func (c *MetadataCache) SetPlaylist(url string, pl *domain.Playlist) {
	c.playlists.Set(url, pl, gocache.DefaultExpiration)
}

// GetVideo retrieves cached video metadata.
func (c *MetadataCache) GetVideo(url string) (*domain.VideoInfo, bool) {
	if item, found := c.videos.Get(url); found {
		if info, ok := item.(*domain.VideoInfo); ok {
			return info, true
		}
	}
	return nil, false
}

// SetVideo stores video metadata. Direct format URLs expire server-side,
// so video entries get a shorter TTL than playlist resolutions.
func (c *MetadataCache) SetVideo(url string, info *domain.VideoInfo) {
	c.videos.Set(url, info, 10*time.Minute)
}

// Flush removes all items from both caches.
func (c *MetadataCache) Flush() {
	c.playlists.Flush()
	c.videos.Flush()
}
