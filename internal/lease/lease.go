package lease

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by TryAcquire and AcquireTimeout when the
// lease is already held by another process, or when a timeout expires
// before it becomes available.
var ErrWouldBlock = errors.New("lease: would block")

// ErrInvalidTimeout is returned when a non-positive timeout is passed
// to AcquireTimeout.
var ErrInvalidTimeout = errors.New("lease: invalid timeout")

// errInodeMismatch signals that the lock file was replaced between
// open and flock; callers retry against the new inode.
var errInodeMismatch = errors.New("lease: lock file replaced during acquisition")

const (
	filePerm = 0o600
	dirPerm  = 0o755
)

// Lease represents a held writer lease. Release is idempotent.
type Lease struct {
	path string
	file *os.File
}

// Path returns the side-car lock file path backing this lease.
func (l *Lease) Path() string { return l.path }

// Release drops the flock and closes the underlying descriptor. Safe
// to call more than once.
func (l *Lease) Release() error {
	if l.file == nil {
		return nil
	}
	fd := int(l.file.Fd())
	unlockErr := flockRetryEINTR(fd, unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("lease: unlock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("lease: close: %w", closeErr)
	}
	return nil
}

// LockPath returns the side-car lock file path for a given store path,
// following the "<path>.lock" convention.
func LockPath(storePath string) string {
	return storePath + ".lock"
}

// Acquire takes the writer lease for storePath, blocking in the
// kernel until it is available. Exactly one process-wide lease may be
// held on a given store at a time; there is no shared/
// read-lock mode since the core supports no concurrent-reader path.
func Acquire(storePath string) (*Lease, error) {
	path := LockPath(storePath)
	for {
		file, err := openLockFile(path)
		if err != nil {
			return nil, fmt.Errorf("lease: open %s: %w", path, err)
		}

		if err := acquire(file, path, false); err == nil {
			return &Lease{path: path, file: file}, nil
		} else if errors.Is(err, errInodeMismatch) {
			_ = file.Close()
			continue
		} else {
			_ = file.Close()
			return nil, err
		}
	}
}

// TryAcquire attempts to take the writer lease without blocking,
// returning ErrWouldBlock if another process already holds it.
func TryAcquire(storePath string) (*Lease, error) {
	return acquirePolling(storePath, 0)
}

// AcquireTimeout attempts to take the writer lease, polling with
// exponential backoff (1ms up to 25ms) until it succeeds or timeout
// elapses. The timeout is best-effort: because this polls and sleeps,
// it may overshoot slightly under scheduler delay.
func AcquireTimeout(storePath string, timeout time.Duration) (*Lease, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	return acquirePolling(storePath, timeout)
}

func acquirePolling(storePath string, timeout time.Duration) (*Lease, error) {
	path := LockPath(storePath)

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	backoff := time.Millisecond

	for {
		file, err := openLockFile(path)
		if err != nil {
			return nil, fmt.Errorf("lease: open %s: %w", path, err)
		}

		err = acquire(file, path, true)
		if err == nil {
			return &Lease{path: path, file: file}, nil
		}
		_ = file.Close()

		if !errors.Is(err, ErrWouldBlock) && !errors.Is(err, errInodeMismatch) {
			return nil, err
		}

		if timeout == 0 {
			return nil, ErrWouldBlock
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: timed out after %s", ErrWouldBlock, timeout)
		}

		sleep := backoff
		if sleep > remaining {
			sleep = remaining
		}
		time.Sleep(sleep)

		if backoff < 25*time.Millisecond {
			backoff *= 2
			if backoff > 25*time.Millisecond {
				backoff = 25 * time.Millisecond
			}
		}
	}
}

// acquire flocks file exclusively and verifies its inode still
// matches path, guarding against a TOCTOU replacement of the lock
// file between open and flock. On any failure the flock (if taken) is
// released, but the file descriptor is left open for the caller to
// close.
func acquire(file *os.File, path string, nonBlocking bool) error {
	fd := int(file.Fd())

	flags := unix.LOCK_EX
	if nonBlocking {
		flags |= unix.LOCK_NB
	}

	if err := flockRetryEINTR(fd, flags); err != nil {
		if isWouldBlock(err) {
			return ErrWouldBlock
		}
		return fmt.Errorf("lease: flock: %w", err)
	}

	match, err := inodeMatchesPath(path, file)
	if err != nil {
		_ = flockRetryEINTR(fd, unix.LOCK_UN)
		if errors.Is(err, os.ErrNotExist) {
			return errInodeMismatch
		}
		return fmt.Errorf("lease: verifying inode: %w", err)
	}
	if !match {
		_ = flockRetryEINTR(fd, unix.LOCK_UN)
		return errInodeMismatch
	}
	return nil
}

func openLockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePerm)
}

func inodeMatchesPath(path string, f *os.File) (bool, error) {
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}
	openSys, ok := openInfo.Sys().(*unix.Stat_t)
	if !ok || openSys == nil {
		return false, fmt.Errorf("file.Stat Sys=%T, want *unix.Stat_t", openInfo.Sys())
	}

	pathInfo, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	pathSys, ok := pathInfo.Sys().(*unix.Stat_t)
	if !ok || pathSys == nil {
		return false, fmt.Errorf("os.Stat Sys=%T, want *unix.Stat_t", pathInfo.Sys())
	}

	return openSys.Dev == pathSys.Dev && openSys.Ino == pathSys.Ino, nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}

// flockRetryEINTR wraps unix.Flock, retrying on EINTR. Capped well
// above any plausible signal storm; Go's own os package retries
// unbounded for the same syscall class, but a cap keeps a pathological
// case from spinning forever inside a held lease.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for i := 0; i < maxEINTRRetries; i++ {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}
	return err
}
