package store

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Backup copies the current collection file to
// <name>_backup_YYYYMMDD_HHMMSS.json and returns the backup path. The
// copy runs under the collection write lock so a concurrent Write cannot
// replace the file mid-copy. A missing collection yields an empty path
// and no error.
func (s *Store) Backup(name string) (string, error) {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	src, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open %s for backup: %w", name, err)
	}
	defer src.Close()

	stamp := time.Now().Format("20060102_150405")
	backupPath := s.path(fmt.Sprintf("%s_backup_%s", name, stamp))
	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("create backup for %s: %w", name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(backupPath)
		return "", fmt.Errorf("copy backup for %s: %w", name, err)
	}
	if err := dst.Sync(); err != nil {
		os.Remove(backupPath)
		return "", fmt.Errorf("fsync backup for %s: %w", name, err)
	}
	return backupPath, nil
}

// Restore replaces the collection with the given backup file, taken under
// the collection write lock.
func (s *Store) Restore(name, backupPath string) error {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", backupPath, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+"-restore-*.tmp")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write restore %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync restore %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close restore %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, s.path(name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s from backup: %w", name, err)
	}
	return nil
}
