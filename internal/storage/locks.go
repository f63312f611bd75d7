package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// keyedLocks hands out one mutex per record id. Entries are reference counted so
// the map does not grow with every id ever touched.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (s *RecordStore) lockInProcess(id string) func() {
	return s.locks.lock(id)
}

// lock serializes writers of one unit within this process and, through a lock
// file under <root>/.locks, across processes sharing the same root. The lock file
// lives outside the unit so taking it never changes the unit's mtime.
func (s *RecordStore) lock(id string) (func(), error) {
	release := s.locks.lock(id)

	dir := filepath.Join(s.root, locksDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		release()
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	fl := flock.New(filepath.Join(dir, id+".lock"))
	if err := fl.Lock(); err != nil {
		release()
		return nil, fmt.Errorf("failed to lock record %s: %w", id, err)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("failed to release record lock", "id", id, "err", err)
		}
		release()
	}, nil
}

func (s *RecordStore) removeLockFile(id string) {
	path := filepath.Join(s.root, locksDirName, id+".lock")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove lock file", "id", id, "err", err)
	}
}
