package embeddb

import (
	"path/filepath"
	"testing"
)

func TestAcquireLock_SecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.jsonl")
	lf1, err := acquireLock(path)
	if err != nil {
		t.Fatalf("first acquireLock: %v", err)
	}
	defer lf1.Release()

	_, err = acquireLock(path)
	dl, ok := err.(*DatabaseLockedError)
	if !ok {
		t.Fatalf("second acquireLock err = %T, wanted *DatabaseLockedError", err)
	}
	if dl.Filename != path {
		t.Fatalf("DatabaseLockedError.Filename = %q, wanted %q", dl.Filename, path)
	}
}

func TestAcquireLock_ReleaseThenReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.jsonl")
	lf1, err := acquireLock(path)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	lf1.Release()

	lf2, err := acquireLock(path)
	if err != nil {
		t.Fatalf("acquireLock after Release: %v", err)
	}
	lf2.Release()
}

func TestLockFile_ReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.jsonl")
	lf, err := acquireLock(path)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	lf.Release()
	lf.Release() // must not panic
}
