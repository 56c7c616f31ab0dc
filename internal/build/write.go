package build

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/yacobolo/stylebuild/internal/source"
)

// writeOutput writes css to path, creating missing directories first, and
// returns the modification time of the written file.
func (o *Orchestrator) writeOutput(path, css string) (time.Time, error) {
	if err := o.ensureDir(filepath.Dir(path)); err != nil {
		return time.Time{}, err
	}

	// write to a sibling temp file so readers never see a half-written stylesheet
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return time.Time{}, &source.IOError{Op: "write", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(css); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return time.Time{}, &source.IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return time.Time{}, &source.IOError{Op: "write", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return time.Time{}, &source.IOError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return time.Time{}, &source.IOError{Op: "write", Path: path, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, &source.IOError{Op: "stat", Path: path, Err: err}
	}
	return info.ModTime(), nil
}

// ensureDir creates dir and any missing parents, firing creating_directory
// once for each directory it creates, outermost first.
func (o *Orchestrator) ensureDir(dir string) error {
	var missing []string
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		info, err := os.Stat(d)
		if err == nil {
			if !info.IsDir() {
				return &source.IOError{Op: "mkdir", Path: d, Err: errors.New("not a directory")}
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return &source.IOError{Op: "stat", Path: d, Err: err}
		}
		missing = append(missing, d)
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}

	for i := len(missing) - 1; i >= 0; i-- {
		d := missing[i]
		o.registry.FireCreatingDirectory(d)
		if err := os.Mkdir(d, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return &source.IOError{Op: "mkdir", Path: d, Err: err}
		}
	}
	return nil
}

// removeOutput deletes an orphaned stylesheet. A file that is already gone is
// not an error.
func (o *Orchestrator) removeOutput(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &source.IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}
