package jobstore

import (
	"testing"
	"time"

	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutGet(t *testing.T) {
	s := New()

	entry := Entry{
		ArchivePath: "/tmp/audio_PL1_1.zip",
		WorkDir:     "/tmp/audio_PL1_1",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.Put("audio_PL1_1", entry))

	got, err := s.Get("audio_PL1_1")
	require.NoError(t, err)
	assert.Equal(t, entry, got)
	assert.Equal(t, 1, s.Len())
}

func TestStoreGetUnknown(t *testing.T) {
	s := New()

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStorePutDuplicate(t *testing.T) {
	s := New()

	require.NoError(t, s.Put("job", Entry{}))
	assert.ErrorIs(t, s.Put("job", Entry{}), domain.ErrDuplicateJob)
}

func TestStoreDelete(t *testing.T) {
	s := New()
	require.NoError(t, s.Put("job", Entry{}))

	s.Delete("job")
	_, err := s.Get("job")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	// deleting again is a no-op
	s.Delete("job")
	assert.Equal(t, 0, s.Len())
}

func TestStoreIDs(t *testing.T) {
	s := New()
	require.NoError(t, s.Put("a", Entry{}))
	require.NoError(t, s.Put("b", Entry{}))

	ids := s.IDs()
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
