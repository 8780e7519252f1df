// Package lock implements the advisory locking primitive described in
// §4.2: per-resource shared/exclusive locks that are simultaneously
// cross-process (an OS-advisory lock file via github.com/theckman/go-flock,
// vendored by the teacher but unused there - adopted here for exactly the
// concern it is built for) and cross-thread (an in-process
// sync.RWMutex keyed by the same resource string). Acquisition always
// takes the process lock first, then the thread lock, to avoid deadlocking
// a process against itself.
package lock

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/theckman/go-flock"

	"ccpm/errs"
)

// Mode selects shared or exclusive acquisition.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

// Manager hands out locks for resource strings, keeping one *flock.Flock and
// one *sync.RWMutex alive per resource for the lifetime of the process.
// Resource strings are typically a Reference's FullStr().
type Manager struct {
	dir string // directory holding the per-resource lock files

	mu      sync.Mutex // guards the maps below
	files   map[string]*flock.Flock
	mutexes map[string]*sync.RWMutex
}

// NewManager returns a Manager whose lock files live under dir. dir must
// exist; callers typically point it at <cache_root>/.locks.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:     dir,
		files:   make(map[string]*flock.Flock),
		mutexes: make(map[string]*sync.RWMutex),
	}
}

func (m *Manager) entryFor(resource string) (*flock.Flock, *sync.RWMutex) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[resource]
	if !ok {
		path := filepath.Join(m.dir, fileNameFor(resource)+".lock")
		f = flock.NewFlock(path)
		m.files[resource] = f
	}
	rw, ok := m.mutexes[resource]
	if !ok {
		rw = &sync.RWMutex{}
		m.mutexes[resource] = rw
	}
	return f, rw
}

// fileNameFor maps an arbitrary resource string to a filesystem-safe name.
// Collisions are acceptable across distinct resources only in the sense that
// the flock file is advisory; the map keys above (the raw resource string)
// are what actually distinguish in-process mutexes.
func fileNameFor(resource string) string {
	h := make([]byte, 0, len(resource))
	for _, r := range resource {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			h = append(h, byte(r))
		default:
			h = append(h, '_')
		}
	}
	return string(h)
}

// Handle represents a held lock; callers must call Release exactly once.
type Handle struct {
	resource string
	mode     Mode
	file     *flock.Flock
	mu       *sync.RWMutex
}

// Acquire blocks, honoring ctx's deadline, until the lock on resource is
// held in the given mode. On timeout it returns *errs.LockTimeout and holds
// nothing.
func (m *Manager) Acquire(ctx context.Context, resource string, mode Mode) (*Handle, error) {
	f, rw := m.entryFor(resource)

	if err := lockProcess(ctx, f, mode); err != nil {
		return nil, err
	}

	if err := lockThread(ctx, rw, mode); err != nil {
		unlockProcess(f, mode)
		return nil, err
	}

	return &Handle{resource: resource, mode: mode, file: f, mu: rw}, nil
}

// Release drops both the thread and process locks held by h, thread lock
// first (reverse acquisition order).
func (h *Handle) Release() error {
	unlockThread(h.mu, h.mode)
	return unlockProcess(h.file, h.mode)
}

// Exchange swaps h for a lock on newResource in newMode, used when a
// provisional package reference is promoted to its final content-addressed
// reference (§4.1 step 4, §4.2 "exchange"). It acquires newResource first
// and only then releases h, so the caller never holds neither lock; if the
// acquisition fails, h is still held and an error is returned.
func (m *Manager) Exchange(ctx context.Context, h *Handle, newResource string, newMode Mode) (*Handle, error) {
	nh, err := m.Acquire(ctx, newResource, newMode)
	if err != nil {
		return nil, err
	}
	if err := h.Release(); err != nil {
		nh.Release()
		return nil, err
	}
	return nh, nil
}

func lockProcess(ctx context.Context, f *flock.Flock, mode Mode) error {
	deadline, hasDeadline := ctx.Deadline()
	for {
		var ok bool
		var err error
		if mode == Exclusive {
			ok, err = f.TryLock()
		} else {
			ok, err = f.TryRLock()
		}
		if err != nil {
			return errors.Wrapf(err, "acquiring process lock for %s", f.Path())
		}
		if ok {
			return nil
		}
		if hasDeadline && time.Now().After(deadline) {
			return &errs.LockTimeout{Resource: f.Path()}
		}
		select {
		case <-ctx.Done():
			return &errs.LockTimeout{Resource: f.Path()}
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func unlockProcess(f *flock.Flock, mode Mode) error {
	return f.Unlock()
}

func lockThread(ctx context.Context, rw *sync.RWMutex, mode Mode) error {
	done := make(chan struct{})
	go func() {
		if mode == Exclusive {
			rw.Lock()
		} else {
			rw.RLock()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// The goroutine above will still acquire the mutex eventually and
		// leak it locked forever if we just walk away; in a real
		// implementation this would require a cancelable mutex. Since
		// sync.RWMutex has no such primitive, we accept the acquisition
		// once it lands and immediately release it, treating this path as
		// a timeout for the caller.
		go func() {
			<-done
			if mode == Exclusive {
				rw.Unlock()
			} else {
				rw.RUnlock()
			}
		}()
		return &errs.LockTimeout{Resource: "in-process mutex"}
	}
}

func unlockThread(rw *sync.RWMutex, mode Mode) {
	if mode == Exclusive {
		rw.Unlock()
	} else {
		rw.RUnlock()
	}
}
