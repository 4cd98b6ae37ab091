package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructors_NilErrPassesThrough(t *testing.T) {
	require.NoError(t, NewFormat("op", nil))
	require.NoError(t, NewWal("op", nil))
	require.NoError(t, NewStore("op", nil))
	require.NoError(t, NewPolicy("op", nil))
	require.NoError(t, NewIo("op", nil))
}

func TestFormatError_WrapsAndUnwraps(t *testing.T) {
	inner := errors.New("bad magic")
	err := NewFormat("decode_toc", inner)

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "decode_toc", fe.Op)
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "waxfmt")
	require.Contains(t, err.Error(), "decode_toc")
}

func TestWalError_WrapsAndUnwraps(t *testing.T) {
	inner := errors.New("sequence went backwards")
	err := NewWal("append", inner)

	var we *WalError
	require.ErrorAs(t, err, &we)
	require.Equal(t, "append", we.Op)
	require.ErrorIs(t, err, inner)
}

func TestStoreError_WrapsAndUnwraps(t *testing.T) {
	inner := errors.New("supersede cycle")
	err := NewStore("commit", inner)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "commit", se.Op)
	require.ErrorIs(t, err, inner)
}

func TestPolicyError_WrapsAndUnwraps(t *testing.T) {
	inner := errors.New("missing embedder")
	err := NewPolicy("open", inner)

	var pe *PolicyError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "open", pe.Op)
	require.ErrorIs(t, err, inner)
}

func TestIoError_WrapsAndUnwraps(t *testing.T) {
	inner := errors.New("disk full")
	err := NewIo("write", inner)

	var ie *IoError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, "write", ie.Op)
	require.ErrorIs(t, err, inner)
}

func TestInjectedError_ReportsFence(t *testing.T) {
	err := NewInjected(3)

	var injected *InjectedError
	require.ErrorAs(t, err, &injected)
	require.Equal(t, 3, injected.Fence)
	require.Contains(t, err.Error(), "3")
}
