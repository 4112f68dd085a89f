package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSAccess implements FileAccess on the local file system
type FSAccess struct {
}

func (a *FSAccess) filePath(root string, p string) string {
	return filepath.Join(root, filepath.FromSlash(p))
}

func (a *FSAccess) ListObjects(root string, prefix string) ([]string, error) {
	result := []string{}
	rootOnly := filepath.Clean(root)

	err := filepath.WalkDir(a.filePath(root, prefix), func(found string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel := strings.TrimPrefix(found, rootOnly+string(filepath.Separator))
			result = append(result, filepath.ToSlash(rel))
		}
		return nil
	})
	return result, err
}

func (a *FSAccess) ReadObject(root string, p string) ([]byte, error) {
	return os.ReadFile(a.filePath(root, p))
}

func (a *FSAccess) WriteObject(root string, p string, data []byte) error {
	full := a.filePath(root, p)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0644)
}

func (a *FSAccess) DeleteObject(root string, p string) error {
	return os.Remove(a.filePath(root, p))
}

func (a *FSAccess) CopyObject(srcRoot string, srcPath string, dstRoot string, dstPath string) error {
	fin, err := os.Open(a.filePath(srcRoot, srcPath))
	if err != nil {
		return err
	}
	defer fin.Close()

	dst := a.filePath(dstRoot, dstPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	fout, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fout, fin); err != nil {
		fout.Close()
		return err
	}
	return fout.Close()
}

func (a *FSAccess) IsNotFoundError(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
