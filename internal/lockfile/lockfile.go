// Package lockfile guards the state directory against a second synchronizer
// instance. The journal's crash-recovery protocol assumes exactly one writer,
// so two daemons pointed at the same directory would corrupt each other's
// view of what has been committed.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockFileName is created inside the state directory.
const LockFileName = "sync.lock"

// ErrBusy means another synchronizer holds the state directory.
var ErrBusy = errors.New("state directory locked by another synchronizer")

// LockInfo is written into the lock file for diagnostics. The flock is what
// actually enforces exclusion; the contents only tell a human who to blame.
type LockInfo struct {
	PID       int       `json:"pid"`
	StateDir  string    `json:"state_dir"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// Lock is a held state-directory lock. Release it before exit; the kernel
// drops it anyway if the process dies.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive non-blocking lock on dir's lock file and
// records the holder's identity in it. Returns ErrBusy when another live
// process holds the lock.
func Acquire(dir, version string) (*Lock, error) {
	path := filepath.Join(dir, LockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrBusy) {
			if info, infoErr := ReadInfo(dir); infoErr == nil {
				return nil, fmt.Errorf("%w (pid %d since %s)", ErrBusy, info.PID, info.StartedAt.Format(time.RFC3339))
			}
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	info := LockInfo{
		PID:       os.Getpid(),
		StateDir:  dir,
		Version:   version,
		StartedAt: time.Now(),
	}
	data, err := json.Marshal(info)
	if err == nil {
		err = f.Truncate(0)
	}
	if err == nil {
		_, err = f.WriteAt(data, 0)
	}
	if err != nil {
		_ = flockUnlock(f)
		_ = f.Close()
		return nil, fmt.Errorf("writing lock info: %w", err)
	}

	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := flockUnlock(l.file); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	err := l.file.Close()
	l.file = nil
	_ = os.Remove(l.path)
	return err
}

// ReadInfo reports who holds (or last held) the lock in dir.
func ReadInfo(dir string) (*LockInfo, error) {
	raw, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("parsing lock file: %w", err)
	}
	return &info, nil
}
