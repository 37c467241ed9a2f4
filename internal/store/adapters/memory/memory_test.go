package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/store"
)

func TestAdapterRegistered(t *testing.T) {
	conn, err := store.OpenAdapter(context.Background(), store.AdapterConfig{Name: "memory"})
	require.NoError(t, err)
	assert.NotNil(t, conn.MetaStore())
	assert.NotNil(t, conn.Members())
	assert.NotNil(t, conn.Catalogs())

	w, ok := conn.(interface{ World() *World })
	require.True(t, ok)
	assert.NotNil(t, w.World())
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMetaStore()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.InsertCluster(ctx, repository.Cluster{Name: "c1"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = s.ClusterByName(ctx, "c1")
	assert.True(t, repository.IsNotFound(err))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	id, err := tx.InsertCluster(ctx, repository.Cluster{Name: "c1"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	c, err := s.ClusterByName(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)
}

func TestComputeNodeSequence(t *testing.T) {
	ctx := context.Background()
	s := NewMetaStore()

	tx, _ := s.Begin(ctx)
	require.NoError(t, tx.ReserveComputeNodeID(ctx, 1))
	assert.True(t, repository.IsConflict(tx.ReserveComputeNodeID(ctx, 1)))
	next, err := tx.NextComputeNodeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
	require.NoError(t, tx.Commit())

	reserved, err := s.ReserveComputeNodeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reserved)
	assert.True(t, s.SeqReserved(3))
}

func TestPartitionsRequireLogTablesAndAreUnique(t *testing.T) {
	ctx := context.Background()
	s := NewMetaStore()

	assert.Error(t, s.AddCommitLogPartition(ctx, "c1", 1))

	require.NoError(t, s.CreateClusterLogTables(ctx, "c1"))
	assert.True(t, s.HasTable("ddl_ops_log_c1"))
	require.NoError(t, s.AddCommitLogPartition(ctx, "c1", 1))
	assert.True(t, repository.IsAlreadyExists(s.AddCommitLogPartition(ctx, "c1", 1)))
	assert.True(t, s.HasPartition("c1", 1))

	boom := errors.New("lock wait timeout")
	s.FailPartition(2, 1, boom)
	assert.ErrorIs(t, s.AddCommitLogPartition(ctx, "c1", 2), boom)
	require.NoError(t, s.AddCommitLogPartition(ctx, "c1", 2))
}

func TestMembersSetReplicaSet(t *testing.T) {
	ctx := context.Background()
	m := NewMembers()
	a := repository.Member{Host: "h1", Port: 1}
	b := repository.Member{Host: "h2", Port: 1, Primary: true}
	m.SetReplicaSet([]repository.Member{a, b})

	ep, err := m.ReportedPrimary(ctx, a, "mgr")
	require.NoError(t, err)
	assert.Equal(t, repository.Endpoint{Host: "h2", Port: 1}, ep)

	_, err = m.ReportedPrimary(ctx, repository.Member{Host: "h3", Port: 1}, "mgr")
	assert.ErrorIs(t, err, repository.ErrNoPrimaryReported)
}

func TestCatalogCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	c := NewCatalogs()
	c.FailCommit(1, 1, errors.New("connection reset"))
	node := repository.ComputeNode{ID: 1}

	for i := 0; i < 2; i++ {
		sess, err := c.Dial(ctx, node)
		require.NoError(t, err)
		tx, err := sess.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.InsertShard(ctx, repository.Shard{ID: 1, Name: "shard1"}))
		err = tx.Commit(ctx)
		if i == 0 {
			require.Error(t, err)
			assert.Empty(t, c.State(1).Shards)
			continue
		}
		require.NoError(t, err)
	}
	assert.Len(t, c.State(1).Shards, 1)
	assert.Equal(t, 2, c.Dials(1))
}
