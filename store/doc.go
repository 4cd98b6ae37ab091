// Package store implements the Wax store: the
// single-file, crash-consistent frame container built from waxfmt's
// binary codec and wal's ring writer/scanner. A Store owns one open
// file handle and one process-exclusive writer lease for its whole
// lifetime; Put/Delete/Supersede stage WAL mutations, and Commit folds
// pending mutations into a fresh TOC published through the four
// crash-fences described in
package store
