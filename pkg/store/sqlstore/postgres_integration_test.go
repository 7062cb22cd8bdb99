//go:build integration

package sqlstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store/storetest"
)

func startPostgres(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("eec_test"),
		postgres.WithUsername("eec_test"),
		postgres.WithPassword("eec_test"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	s, err := New(&Config{
		Type: DatabaseTypePostgres,
		Postgres: PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "eec_test",
			User:     "eec_test",
			Password: "eec_test",
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresConformance(t *testing.T) {
	s := startPostgres(t)

	storetest.RunConformanceSuite(t, func(t *testing.T) storetest.Repos {
		err := s.DB().Exec("TRUNCATE entities, clusters, users, id_counters").Error
		require.NoError(t, err)
		return repos(s)
	})
}

func TestPostgresConcurrentAddsKeepVectorCurrent(t *testing.T) {
	s := startPostgres(t)
	ctx := t.Context()
	entities, clusters := s.Entities(), s.Clusters()

	const n = 8
	ids := make([]string, n)
	for i := range n {
		e, err := entities.AddEntity(ctx, &models.Entity{
			Mention:       fmt.Sprintf("m%d", i),
			Source:        "wiki",
			SourceID:      fmt.Sprint(i),
			MentionVector: models.Vector{float64(i), 1},
		})
		require.NoError(t, err)
		ids[i] = e.ID
	}
	c, err := clusters.AddCluster(ctx, &models.Cluster{Name: "shared"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Go(func() {
			_, err := clusters.AddEntityToCluster(ctx, c.ID, id)
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	got, err := clusters.GetCluster(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, got.EntityIDs, n)
	assert.InDeltaSlice(t, []float64{3.5, 1}, []float64(got.Vector), 1e-9)
}
