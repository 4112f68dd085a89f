package series

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Stage resolves an input path to a directory of slices. A directory is
// returned as is. A .zip archive is extracted to a temporary directory and the
// subdirectory holding the most candidate files is returned. The cleanup
// function must always be called and is safe to call more than once.
func (l *Loader) Stage(input string) (string, func(), error) {
	noop := func() {}

	info, err := os.Stat(input)
	if err != nil {
		return "", noop, errors.Wrap(err, "error reading input")
	}
	if info.IsDir() {
		return input, noop, nil
	}
	if !strings.EqualFold(filepath.Ext(input), ".zip") {
		return "", noop, errors.Errorf("%s is neither a directory nor a .zip archive", input)
	}

	tmp, err := os.MkdirTemp("", "aortec-series-")
	if err != nil {
		return "", noop, errors.Wrap(err, "error creating extraction directory")
	}
	removed := false
	cleanup := func() {
		if removed {
			return
		}
		removed = true
		if err := os.RemoveAll(tmp); err != nil {
			l.log.Errorf("Failed to remove %s: %v", tmp, err)
		}
	}

	if _, err := UnzipDirectory(input, tmp); err != nil {
		cleanup()
		return "", noop, errors.Wrap(err, "error extracting archive")
	}

	dir, count, err := l.densestDirectory(tmp)
	if err != nil {
		cleanup()
		return "", noop, err
	}
	l.log.Infof("Extracted %s, using %s (%d candidate files)", filepath.Base(input), dir, count)

	return dir, cleanup, nil
}

// densestDirectory walks root and returns the directory with the most candidates
func (l *Loader) densestDirectory(root string) (string, int, error) {
	best, bestCount := root, -1
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		files, err := l.Candidates(path)
		if err != nil {
			return err
		}
		if len(files) > bestCount {
			best, bestCount = path, len(files)
		}
		return nil
	})
	if err != nil {
		return "", 0, errors.Wrap(err, "error scanning extracted archive")
	}
	return best, bestCount, nil
}

// UnzipDirectory extracts src into dest and returns the written paths.
// Entries escaping dest are rejected and macOS resource forks are skipped.
func UnzipDirectory(src string, dest string) ([]string, error) {
	var filenames []string
	r, err := zip.OpenReader(src)
	if err != nil {
		return filenames, err
	}
	defer r.Close()

	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "__MACOSX") {
			continue
		}

		fpath := filepath.Join(dest, f.Name)

		// ZipSlip
		if !strings.HasPrefix(fpath, filepath.Clean(dest)+string(os.PathSeparator)) {
			return filenames, errors.Errorf("%s: illegal file path", fpath)
		}

		filenames = append(filenames, fpath)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, os.ModePerm); err != nil {
				return filenames, err
			}
			continue
		}

		if err = os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
			return filenames, err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return filenames, err
		}

		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return filenames, err
		}

		_, err = io.Copy(outFile, rc)

		// Close before the next iteration, not deferred
		outFile.Close()
		rc.Close()

		if err != nil {
			return filenames, err
		}
	}
	return filenames, nil
}
