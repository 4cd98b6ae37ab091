package lease

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/waxmem/wax/errs"
)

func TestAcquireRelease(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.wax")

	l, err := Acquire(storePath)
	require.NoError(t, err)
	require.Equal(t, storePath+".lock", l.Path())

	require.NoError(t, l.Release())
	require.NoError(t, l.Release(), "Release is idempotent")
}

func TestTryAcquire_SecondHolderBlocked(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.wax")

	first, err := Acquire(storePath)
	require.NoError(t, err)
	defer first.Release()

	_, err = TryAcquire(storePath)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestAcquireTimeout_ExpiresWhileHeld(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.wax")

	first, err := Acquire(storePath)
	require.NoError(t, err)
	defer first.Release()

	_, err = AcquireTimeout(storePath, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestAcquireTimeout_InvalidTimeout(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.wax")
	_, err := AcquireTimeout(storePath, 0)
	require.ErrorIs(t, err, ErrInvalidTimeout)
}

func TestAcquireTimeout_SucceedsAfterRelease(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.wax")

	first, err := Acquire(storePath)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = first.Release()
		close(done)
	}()

	second, err := AcquireTimeout(storePath, 500*time.Millisecond)
	require.NoError(t, err)
	defer second.Release()
	<-done
}

func TestAcquire_CreatesMissingParentDir(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "nested", "dir", "store.wax")

	l, err := Acquire(storePath)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestMaybeInjectFault(t *testing.T) {
	defer ClearCommitFailStep()

	require.NoError(t, MaybeInjectFault(1))

	SetCommitFailStep(3)
	require.NoError(t, MaybeInjectFault(1))
	require.NoError(t, MaybeInjectFault(2))

	err := MaybeInjectFault(3)
	require.Error(t, err)
	var injected *errs.InjectedError
	require.ErrorAs(t, err, &injected)
	require.Equal(t, 3, injected.Fence)

	ClearCommitFailStep()
	require.NoError(t, MaybeInjectFault(3))
}
