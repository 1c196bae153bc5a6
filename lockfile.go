package embeddb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
)

// lockFile is an advisory, cross-process, single-writer lock implemented by
// atomically creating a symlink next to the database file. Symlink creation
// is atomic on every platform Go supports and needs no extra syscalls,
// unlike an O_EXCL open that has to be cleaned up by hand on every exit path.
type lockFile struct {
	path      string // "<db>.lock~"
	ownerPath string // "<db>.lock~.owner", best-effort diagnostic sidecar
	held      atomic.Bool

	unregister func()
}

func lockPathFor(dbPath string) string {
	return dbPath + ".lock~"
}

// acquireLock creates the lock symlink, targeting the database's base name,
// and writes a best-effort sidecar file recording who holds it. If the lock
// is already held, the sidecar (if readable) supplies
// DatabaseLockedError.Owner.
func acquireLock(dbPath string) (*lockFile, error) {
	path := lockPathFor(dbPath)
	ownerPath := path + ".owner"

	if err := os.Symlink(filepath.Base(dbPath), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			owner, _ := os.ReadFile(ownerPath)
			return nil, &DatabaseLockedError{Filename: dbPath, Owner: string(owner)}
		}
		return nil, fmt.Errorf("embeddb: acquire lock: %w", err)
	}

	owner := fmt.Sprintf("%d %s %s", os.Getpid(), uuid.NewString(), hostnameOrUnknown())
	_ = os.WriteFile(ownerPath, []byte(owner), 0o644) // diagnostic only, failures ignored

	lf := &lockFile{path: path, ownerPath: ownerPath}
	lf.unregister = lf.registerAtExit()
	return lf, nil
}

// Release removes the lock symlink and its sidecar. It is idempotent and
// safe to call more than once (e.g. once from a deferred Close and once
// from the at-exit signal handler racing it).
func (lf *lockFile) Release() {
	if !lf.held.CompareAndSwap(false, true) {
		return
	}
	if lf.unregister != nil {
		lf.unregister()
	}
	_ = os.Remove(lf.path)
	_ = os.Remove(lf.ownerPath)
}

// registerAtExit arranges for the lock to be released if the process
// receives SIGINT or SIGTERM while the database is open, so a killed
// process doesn't leave a stale lock behind for the next Open to report as
// DatabaseLockedError. It returns a function that cancels the registration.
func (lf *lockFile) registerAtExit() func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			lf.Release()
			os.Exit(1)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func hostnameOrUnknown() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// probeStaleOwner is an optional diagnostic: it parses the sidecar owner
// file and reports whether the recorded PID still appears to be alive, by
// sending it signal 0. It never errors the stale-lock path in acquireLock;
// it exists only so an operator-facing tool can decide whether a
// DatabaseLockedError is likely a genuine live holder or a crash leftover.
func probeStaleOwner(owner string) (pid int, alive bool) {
	if _, err := fmt.Sscanf(owner, "%d", &pid); err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	return pid, proc.Signal(syscall.Signal(0)) == nil
}
