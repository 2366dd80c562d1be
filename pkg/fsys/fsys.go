package fsys

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem is the narrow contract the validator and recovery manager
// depend on. Only whole-file text content and directory management are
// needed; anything richer belongs to the host.
type FileSystem interface {
	FileExists(path string) bool
	DirExists(path string) bool
	ReadFile(path string) (string, error)
	WriteFile(path string, content string) error
	CopyFile(src, dst string) error
	MkdirAll(path string) error
	Remove(path string) error
}

// OS implements FileSystem against the real filesystem.
type OS struct{}

func (OS) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (OS) DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (OS) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (OS) WriteFile(path string, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func (OS) CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func (OS) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func (OS) Remove(path string) error {
	return os.Remove(path)
}

// IsPermission reports whether err is an access-denied error, unwrapping
// as needed. Recovery results mention permissions when this is true.
func IsPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission) || os.IsPermission(err)
}

// Join composes path segments using the platform separator.
func Join(elem ...string) string {
	return filepath.Join(elem...)
}
