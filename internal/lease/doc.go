// Package lease implements the file-scoped, process-exclusive writer
// lease required by: exactly one writer may hold a Wax
// store open at a time, enforced across processes by a side-car flock
// on a "<path>.lock" file next to the store.
//
// It also carries the commit fault-injection countdown used by store
// tests to verify that each of the four commit crash-fences leaves the
// file in a legal, recoverable state (mirroring the original
// implementation's MaybeInjectCommitCrash/SetCommitFailStep hooks).
package lease
