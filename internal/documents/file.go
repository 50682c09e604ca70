package documents

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"tierguard/internal/constants"
)

const fileExtension = ".yaml"

// FileStore keeps each document in <dir>/<name>.yaml with the backup next to
// it as <name>.yaml.bak.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+fileExtension)
}

func (s *FileStore) backupPath(name string) string {
	return s.path(name) + constants.BackupSuffix
}

func (s *FileStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", name, err)
	}
	return data, nil
}

func (s *FileStore) Write(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := os.ReadFile(s.path(name))
	switch {
	case err == nil:
		if err := writeAtomic(s.backupPath(name), current); err != nil {
			return fmt.Errorf("failed to back up document %s: %w", name, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to read document %s: %w", name, err)
	}

	if err := writeAtomic(s.path(name), data); err != nil {
		return fmt.Errorf("failed to write document %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) Restore(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	backup, err := os.ReadFile(s.backupPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoBackup, name)
	}
	if err != nil {
		return fmt.Errorf("failed to read backup of %s: %w", name, err)
	}

	if err := writeAtomic(s.path(name), backup); err != nil {
		return fmt.Errorf("failed to restore document %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) HasBackup(_ context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}

	_, err := os.Stat(s.backupPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat backup of %s: %w", name, err)
	}
	return true, nil
}

// writeAtomic replaces path so readers never observe a half-written document.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
