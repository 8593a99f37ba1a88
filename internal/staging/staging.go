// Package staging keeps uploaded audio on local disk for the lifetime of one request.
package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTooLarge is returned by Stage when the body exceeds the area's cap.
var ErrTooLarge = errors.New("staged upload exceeds size limit")

const suffix = ".upload"

type Area struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// NewArea creates dir if needed. maxBytes <= 0 means no cap.
func NewArea(dir string, maxBytes int64) (*Area, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	return &Area{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

func (a *Area) Dir() string { return a.dir }

// File is one staged upload. Release is safe to call more than once.
type File struct {
	path string
	size int64
	once sync.Once
}

// Stage copies r into a uniquely named file. On ErrTooLarge nothing is left behind.
func (a *Area) Stage(r io.Reader) (*File, error) {
	path := filepath.Join(a.dir, uuid.NewString()+suffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	src := r
	if a.maxBytes > 0 {
		src = io.LimitReader(r, a.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write staged file: %w", err)
	}
	if a.maxBytes > 0 && n > a.maxBytes {
		os.Remove(path)
		return nil, ErrTooLarge
	}

	return &File{path: path, size: n}, nil
}

func (f *File) Size() int64 { return f.size }

func (f *File) Path() string { return f.path }

func (f *File) ReadAll() ([]byte, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read staged file: %w", err)
	}
	return b, nil
}

func (f *File) Release() {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to remove staged upload", "path", f.path, "error", err)
		}
	})
}

// Sweep removes staged files last modified more than maxAge ago and reports how many it removed.
func (a *Area) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("list staging dir: %w", err)
	}

	cutoff := a.now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		err = os.Remove(filepath.Join(a.dir, e.Name()))
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}
