// Package filelock provides an explicit cross-process mutex over sidecar lock
// files, plus ordered acquisition of several such mutexes.
//
// Every protected file F is guarded by an advisory lock on "F.lock"; the lock
// file never carries data. Locks are advisory: they only exclude processes
// that also use this package (or flock/LockFileEx on the same sidecar), and
// they only work on a filesystem shared by all participants.
//
// Within one process, waiters for the same path queue on an in-memory slot
// before touching the OS lock, so goroutines do not spin against each other.
package filelock
