package lock

import (
	"os"
	"strconv"
	"strings"
	"testing"

	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	locker, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := locker.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	data, err := os.ReadFile(locker.Path())
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("lock file contents %q: %v", data, err)
	}
	if pid != os.Getpid() {
		t.Errorf("lock file pid = %d, want %d", pid, os.Getpid())
	}

	if err := locker.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(locker.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file still present after Release")
	}
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	second, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = second.Acquire()
	if !apperrors.Is(err, apperrors.ErrAlreadyRunning) {
		t.Errorf("second Acquire = %v, want ErrAlreadyRunning", err)
	}
}

func TestDistinctDirectoriesDoNotConflict(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if a.Path() == b.Path() {
		t.Fatalf("lock paths collide: %s", a.Path())
	}

	if err := a.Acquire(); err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer a.Release()
	if err := b.Acquire(); err != nil {
		t.Fatalf("Acquire b: %v", err)
	}
	defer b.Release()
}

func TestReleaseWithoutAcquire(t *testing.T) {
	locker, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := locker.Release(); err != nil {
		t.Errorf("Release without Acquire: %v", err)
	}
}
