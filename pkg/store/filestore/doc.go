// Package filestore implements the store interfaces on in-memory
// collections that round-trip through JSON snapshots.
//
// Each repository satisfies snapshot.Repository: Decode and Reset replace
// the collections in place, so the ClusterRepository's reference to the
// EntityRepository stays valid across reloads. Returned records are copies;
// the only way to change state is through the repository methods, which
// set the dirty flag consulted by the request guard.
//
// Repositories have no locking of their own.
package filestore
