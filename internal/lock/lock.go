// Package lock prevents overlapping update runs with a pid lockfile.
//
// The scheduler is not supposed to overlap runs, but a manual dispatch can
// race a scheduled one. Whoever holds the flock wins; the loser exits with
// ErrAlreadyRunning.
package lock

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
)

// Locker guards a snapshot directory against concurrent updates.
type Locker struct {
	lockFile string
	fd       *os.File
	pid      int
}

// New creates a Locker for the given snapshot directory. The lock file
// lives in the temp directory, keyed by the directory path, so two updaters
// pointed at different snapshots do not block each other.
func New(dataDir string) (*Locker, error) {
	if runtime.GOOS == "windows" {
		return nil, apperrors.Wrap(apperrors.ErrLockFailed,
			"run locking requires a Unix-like operating system")
	}

	abs, err := filepath.Abs(dataDir)
	if err != nil {
		abs = dataDir
	}
	key := fmt.Sprintf("%x", sha256.Sum256([]byte(abs)))[:16]

	return &Locker{
		lockFile: filepath.Join(os.TempDir(), fmt.Sprintf("mapupdate-%s.lock", key)),
		pid:      os.Getpid(),
	}, nil
}

// Path returns the lock file path.
func (l *Locker) Path() string {
	return l.lockFile
}

// Acquire takes the lock or fails with ErrAlreadyRunning. A lock file left
// behind by a dead process is taken over.
func (l *Locker) Acquire() error {
	fd, err := os.OpenFile(l.lockFile, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrLockFailed, err.Error())
	}

	if err := syscall.Flock(int(fd.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = fd.Close()
		// EWOULDBLOCK and EAGAIN are distinct on some older systems;
		// treat them the same.
		if err == syscall.EWOULDBLOCK || err == syscall.EAGAIN {
			otherPid, pidErr := l.readPid()
			if pidErr == nil && !processRunning(otherPid) {
				// The flock is held yet the recorded owner is gone. Do
				// not second-guess the kernel; report the conflict.
				return apperrors.Wrapf(apperrors.ErrAlreadyRunning,
					"lock %s held, recorded pid %d", l.lockFile, otherPid)
			}
			if pidErr == nil {
				return apperrors.Wrapf(apperrors.ErrAlreadyRunning,
					"pid %d holds %s", otherPid, l.lockFile)
			}
			return apperrors.Wrapf(apperrors.ErrAlreadyRunning, "lock %s held", l.lockFile)
		}
		return apperrors.Wrap(apperrors.ErrLockFailed, err.Error())
	}

	if err := fd.Truncate(0); err != nil {
		_ = fd.Close()
		return apperrors.Wrap(apperrors.ErrLockFailed, err.Error())
	}
	if _, err := fd.WriteAt([]byte(strconv.Itoa(l.pid)), 0); err != nil {
		_ = fd.Close()
		return apperrors.Wrap(apperrors.ErrLockFailed, err.Error())
	}

	l.fd = fd
	return nil
}

// Release drops the lock and removes the lock file.
func (l *Locker) Release() error {
	if l.fd == nil {
		return nil
	}

	var err error
	if flockErr := syscall.Flock(int(l.fd.Fd()), syscall.LOCK_UN); flockErr != nil {
		err = apperrors.Wrap(apperrors.ErrLockFailed, flockErr.Error())
	}
	if closeErr := l.fd.Close(); closeErr != nil && err == nil {
		err = apperrors.Wrap(apperrors.ErrLockFailed, closeErr.Error())
	}
	l.fd = nil

	if removeErr := os.Remove(l.lockFile); removeErr != nil && !os.IsNotExist(removeErr) && err == nil {
		err = apperrors.Wrap(apperrors.ErrLockFailed, removeErr.Error())
	}
	return err
}

func (l *Locker) readPid() (int, error) {
	data, err := os.ReadFile(l.lockFile)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// processRunning checks for a live process using signal 0.
func processRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
