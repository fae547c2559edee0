package chunk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockFilePath returns the full path to the builder lock file
func (s *Store) LockFilePath() string {
	return filepath.Join(s.dir, lockFileName)
}

// IsLocked checks if a builder lock file exists
func (s *Store) IsLocked() bool {
	_, err := os.Stat(s.LockFilePath())
	return err == nil
}

// AcquireLock creates the builder lock file. Returns ErrLocked if another
// builder already holds it.
func (s *Store) AcquireLock() error {
	if s.readOnly {
		return ErrReadOnly
	}
	lockPath := s.LockFilePath()
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, os.ErrExist) {
		holder, _ := os.ReadFile(lockPath)
		return fmt.Errorf("%w: %s (%q)", ErrLocked, lockPath, holder)
	}
	if err != nil {
		return fmt.Errorf("create lock file: %w", err)
	}
	defer f.Close()

	// PID and timestamp for whoever finds a stale lock
	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// ReleaseLock removes the builder lock file
func (s *Store) ReleaseLock() error {
	if err := os.Remove(s.LockFilePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
