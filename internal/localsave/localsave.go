package localsave

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrUserCancelled: оператор отказался от сохранения; это не сбой.
var ErrUserCancelled = errors.New("local save cancelled by user")

// DirSaver writes downloaded documents into a directory on the station.
type DirSaver struct {
	dir string
}

func NewDirSaver(dir string) *DirSaver {
	if dir == "" {
		dir = "."
	}
	return &DirSaver{dir: dir}
}

// Save writes content to <dir>/<filename> and returns the full path.
// A cancelled ctx is reported as ErrUserCancelled and nothing is written.
func (s *DirSaver) Save(ctx context.Context, content []byte, filename string) (string, error) {
	if ctx.Err() != nil {
		return "", ErrUserCancelled
	}
	if filename == "" || filepath.Base(filename) != filename {
		return "", errors.Errorf("invalid filename %q", filename)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create download dir")
	}

	target := filepath.Join(s.dir, filename)
	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "close temp file")
	}
	if ctx.Err() != nil {
		return "", ErrUserCancelled
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", errors.Wrap(err, "rename")
	}
	return target, nil
}
