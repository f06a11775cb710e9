// Package archive builds the single zip artifact of a batch job.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
	"github.com/klauspost/compress/flate"
)

// compressionLevel is fixed at a moderate level: playlist media is
// already compressed, so deeper levels cost time for almost no gain.
const compressionLevel = 6

// BuildZip recursively adds every regular file under sourceDir to a zip
// at outPath, using directory-relative forward-slash names. The output
// is fully flushed and closed before returning, so callers may stat it
// immediately.
func BuildZip(sourceDir, outPath string) error {
	if _, err := os.Stat(sourceDir); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrArchive, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrArchive, err)
	}

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, compressionLevel)
	})

	walkErr := filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(w, f)
		return err
	})

	if walkErr != nil {
		zw.Close()
		out.Close()
		os.Remove(outPath)
		return fmt.Errorf("%w: %v", domain.ErrArchive, walkErr)
	}

	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(outPath)
		return fmt.Errorf("%w: %v", domain.ErrArchive, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return fmt.Errorf("%w: %v", domain.ErrArchive, err)
	}

	return nil
}
