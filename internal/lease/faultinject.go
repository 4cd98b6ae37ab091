package lease

import (
	"sync/atomic"

	"github.com/waxmem/wax/errs"
)

// commitFailStep holds the crash-fence number (1-4, matching store's
// four commit crash-fences: TOC write, footer write+truncate, header
// page A write, header page B write) that the next MaybeInjectFault
// call for that fence should fail at. Zero means "inject nothing".
//
// This is process-global on purpose: it exists solely so store tests
// can simulate a crash at an exact point inside Commit without
// threading a test hook through every call site.
var commitFailStep atomic.Uint32

// SetCommitFailStep arms fault injection so the next call to
// MaybeInjectFault(step) returns an InjectedError. step must be one of
// the four commit crash-fence numbers.
func SetCommitFailStep(step uint32) {
	commitFailStep.Store(step)
}

// ClearCommitFailStep disarms fault injection.
func ClearCommitFailStep() {
	commitFailStep.Store(0)
}

// MaybeInjectFault returns an *errs.InjectedError if step matches the
// step last armed by SetCommitFailStep, and nil otherwise. store.Commit
// calls this once at each of its four crash-fences; production builds
// see it as a no-op unless a test has armed it.
func MaybeInjectFault(step uint32) error {
	if commitFailStep.Load() != step {
		return nil
	}
	return errs.NewInjected(int(step))
}
