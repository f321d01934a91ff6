// Package lockfile serializes litebind runs that share a build-output
// directory. The lock is advisory and never waits: a second run fails at
// once and is told which run holds the directory.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrAlreadyLocked is returned when another run holds the lock.
var ErrAlreadyLocked = errors.New("build output directory is locked by another run")

// Owner is recorded in the lock file by the run holding it.
type Owner struct {
	PID   int       `yaml:"pid"`
	RunID string    `yaml:"run"`
	Since time.Time `yaml:"since"`
}

func (o *Owner) String() string {
	return fmt.Sprintf("run %s (pid %d, since %s)", o.RunID, o.PID, o.Since.Format(time.RFC3339))
}

// Lock is a held build-output lock.
type Lock struct {
	file  *os.File
	Owner Owner
}

// Acquire locks path for runID.
func Acquire(path, runID string) (*Lock, error) {
	if path == "" {
		return nil, errors.New("lock path is empty")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		if errors.Is(err, ErrAlreadyLocked) {
			if o, rerr := ReadOwner(path); rerr == nil && o != nil {
				return nil, fmt.Errorf("%w: %s", ErrAlreadyLocked, o)
			}
		}
		return nil, err
	}

	l := &Lock{file: f, Owner: Owner{PID: os.Getpid(), RunID: runID, Since: time.Now().UTC()}}
	if err := l.record(); err != nil {
		l.Release()
		return nil, err
	}
	return l, nil
}

func (l *Lock) record() error {
	data, err := yaml.Marshal(&l.Owner)
	if err != nil {
		return err
	}
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("recording lock owner: %w", err)
	}
	if _, err := l.file.WriteAt(data, 0); err != nil {
		return fmt.Errorf("recording lock owner: %w", err)
	}
	return l.file.Sync()
}

// ReadOwner returns the owner recorded at path, or nil if the file is
// missing or empty.
func ReadOwner(path string) (*Owner, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var o Owner
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parsing lock file %s: %w", path, err)
	}
	return &o, nil
}

// Release drops the lock. The file stays behind; its owner record is stale
// until the next Acquire rewrites it.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return errors.Join(unlock(f), f.Close())
}
