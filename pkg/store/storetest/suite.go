// Package storetest is a conformance suite shared by every implementation of
// the store interfaces.
package storetest

import (
	"testing"

	"github.com/eecworkbench/eec/pkg/store"
)

// Repos bundles the three repositories of one backend. Clusters must see
// the same entities as Entities.
type Repos struct {
	Entities store.EntityRepository
	Clusters store.ClusterRepository
	Users    store.UserRepository
}

// Factory creates fresh, empty repositories for each test. It receives
// *testing.T so backends can use t.TempDir() and t.Cleanup().
type Factory func(t *testing.T) Repos

// RunConformanceSuite runs every conformance test against factory.
func RunConformanceSuite(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("EntityOps", func(t *testing.T) {
		runEntityTests(t, factory)
	})

	t.Run("ClusterOps", func(t *testing.T) {
		runClusterTests(t, factory)
	})

	t.Run("UserOps", func(t *testing.T) {
		runUserTests(t, factory)
	})
}
