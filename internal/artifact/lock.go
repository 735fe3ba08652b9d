// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package artifact

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the writer lock.
var ErrLocked = errors.New("working artifact is locked by another writer")

// Lock is an advisory file lock on a sidecar lock file.
type Lock struct {
	fl        *flock.Flock
	onRelease func()
}

func acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. Releasing a nil or released Lock is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	err := l.fl.Unlock()
	l.fl = nil
	if l.onRelease != nil {
		l.onRelease()
	}
	return err
}
