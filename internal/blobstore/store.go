// Package blobstore stores uploaded image bytes by path and hands out externally reachable URLs.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// ErrObjectNotFound is returned when the referenced object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ProgressFunc observes incremental transfer events.
type ProgressFunc func(bytesTransferred, totalBytes int64)

// Store keeps blobs on an afero filesystem and serves them under a public URL prefix.
type Store struct {
	fs        afero.Fs
	publicURL string
	chunkSize int
}

// NewStore creates a Store rooted on fs. publicURL is the absolute prefix files are served under,
// for example "https://catalog.example.com/files".
func NewStore(fs afero.Fs, publicURL string) *Store {
	return &Store{
		fs:        fs,
		publicURL: strings.TrimRight(publicURL, "/"),
		chunkSize: 32 * 1024,
	}
}

// NewOsStore creates a Store on the local disk below root.
func NewOsStore(root, publicURL string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return NewStore(afero.NewBasePathFs(afero.NewOsFs(), root), publicURL), nil
}

// FS exposes the underlying filesystem, used to serve the stored files over HTTP.
func (s *Store) FS() afero.Fs {
	return s.fs
}

// Upload streams r to objectPath, reporting progress after every chunk written, and returns the
// object's download URL once the write is complete.
func (s *Store) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, onProgress ProgressFunc) (string, error) {
	objectPath, err := cleanPath(objectPath)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(path.Dir("/"+objectPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", objectPath, err)
	}

	f, err := s.fs.Create("/" + objectPath)
	if err != nil {
		return "", fmt.Errorf("failed to create object %s: %w", objectPath, err)
	}

	written, copyErr := s.copy(ctx, f, r, size, onProgress)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = s.fs.Remove("/" + objectPath)
		return "", fmt.Errorf("failed to upload %s after %d bytes: %w", objectPath, written, copyErr)
	}
	return s.URL(objectPath), nil
}

func (s *Store) copy(ctx context.Context, dst io.Writer, src io.Reader, size int64, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, s.chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if onProgress != nil {
				total := size
				if total < written {
					total = written
				}
				onProgress(written, total)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// Delete removes the object addressed by ref, which may be a download URL or an object path.
// A missing object yields ErrObjectNotFound.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	objectPath, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if _, err := s.fs.Stat("/" + objectPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", objectPath, ErrObjectNotFound)
		}
		return fmt.Errorf("failed to stat %s: %w", objectPath, err)
	}
	if err := s.fs.Remove("/" + objectPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", objectPath, ErrObjectNotFound)
		}
		return fmt.Errorf("failed to delete %s: %w", objectPath, err)
	}
	return nil
}

// URL returns the download URL of objectPath.
func (s *Store) URL(objectPath string) string {
	return s.publicURL + "/" + strings.TrimLeft(objectPath, "/")
}

func (s *Store) resolve(ref string) (string, error) {
	if strings.HasPrefix(ref, s.publicURL+"/") {
		ref = strings.TrimPrefix(ref, s.publicURL+"/")
		if unescaped, err := url.PathUnescape(ref); err == nil {
			ref = unescaped
		}
		return cleanPath(ref)
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return "", fmt.Errorf("reference %s is outside this store", ref)
	}
	return cleanPath(ref)
}

func cleanPath(p string) (string, error) {
	cleaned := strings.TrimLeft(path.Clean("/"+p), "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	return cleaned, nil
}
