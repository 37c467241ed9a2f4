package topology_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/domain/types"
	"github.com/dropDatabas3/shardmeta/internal/topology"
)

func TestCreateClusterEndToEnd(t *testing.T) {
	f := newFixture(t)
	s1, s2 := shardSpec("shard1", 2), shardSpec("shard2", 2)
	f.agree(s1, s2)

	res, err := f.boot.CreateCluster(context.Background(), topology.CreateClusterRequest{
		Cluster:      topology.ClusterSpec{Name: "c1", Owner: "abc", Business: "testing", HAMode: types.HAModeReplicated},
		ComputeNodes: []topology.ComputeNodeSpec{computeSpec(1, "comp1")},
		Shards:       []topology.ShardSpec{s1, s2},
	})
	require.NoError(t, err)

	c, err := f.world.Meta.ClusterByName(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, res.Cluster.ID, c.ID)
	assert.Equal(t, types.HAModeReplicated, c.HAMode)
	assert.Equal(t, "ddl_ops_log_c1", c.DDLLogTable)
	assert.Equal(t, "commit_log_c1", c.CommitLogTable)
	assert.True(t, f.world.Meta.HasTable("ddl_ops_log_c1"))
	assert.True(t, f.world.Meta.HasTable("commit_log_c1"))
	assert.True(t, f.world.Meta.HasPartition("c1", 1))
	assert.True(t, f.world.Meta.SeqReserved(1))

	for _, name := range []string{"shard1", "shard2"} {
		sh, ok := f.world.Meta.ShardByName(c.ID, name)
		require.True(t, ok, name)
		assert.Equal(t, 2, sh.NumNodes)
	}

	st := f.world.Catalogs.State(1)
	require.Len(t, st.Shards, 2)
	assert.Len(t, st.ShardNodes, 4)
	for _, sh := range st.Shards {
		assert.Equal(t, 2, sh.NumNodes, sh.Name)
	}
	require.NotNil(t, st.ClusterMeta)
	assert.Equal(t, "c1", st.ClusterMeta.ClusterName)

	require.NotNil(t, res.ComputeNodes)
	require.NotNil(t, res.Shards)
	assert.Equal(t, []int64{1}, res.Shards.Propagation.Succeeded())
}

func TestCreateClusterWithoutComputeNodes(t *testing.T) {
	f := newFixture(t)
	s1 := shardSpec("shard1", 2)
	f.agree(s1)

	res, err := f.boot.CreateCluster(context.Background(), topology.CreateClusterRequest{
		Cluster: topology.ClusterSpec{Name: "c2", HAMode: types.HAModeReplicated},
		Shards:  []topology.ShardSpec{s1},
	})
	require.NoError(t, err)
	assert.Nil(t, res.ComputeNodes)
	assert.Empty(t, res.Shards.Propagation.Outcomes)
}

func TestCreateClusterDuplicate(t *testing.T) {
	f := newFixture(t)
	f.cluster(t, "c1", types.HAModeReplicated)

	_, err := f.boot.CreateCluster(context.Background(), topology.CreateClusterRequest{
		Cluster: topology.ClusterSpec{Name: "c1", HAMode: types.HAModeReplicated},
	})
	require.ErrorIs(t, err, topology.ErrDuplicateRegistration)
	var dup *topology.DuplicateRegistrationError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "cluster", dup.Kind)
}

func TestCreateClusterValidatesBeforeWriting(t *testing.T) {
	f := newFixture(t)

	cases := map[string]topology.CreateClusterRequest{
		"bad cluster name": {Cluster: topology.ClusterSpec{Name: "1c", HAMode: types.HAModeReplicated}},
		"unknown ha mode":  {Cluster: topology.ClusterSpec{Name: "c1", HAMode: "paxos"}},
		"bad shard":        {Cluster: topology.ClusterSpec{Name: "c1", HAMode: types.HAModeReplicated}, Shards: []topology.ShardSpec{{Name: "shard1"}}},
		"bad compute node": {Cluster: topology.ClusterSpec{Name: "c1", HAMode: types.HAModeReplicated}, ComputeNodes: []topology.ComputeNodeSpec{{Name: "comp1"}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.boot.CreateCluster(context.Background(), req)
			assert.ErrorIs(t, err, topology.ErrInvalidRequest)
		})
	}
	_, err := f.world.Meta.ClusterByName(context.Background(), "c1")
	assert.True(t, repository.IsNotFound(err))
}

func TestCreateClusterContinuesAfterPartialPropagation(t *testing.T) {
	f := newFixture(t)
	s1 := shardSpec("shard1", 2)
	f.agree(s1)
	f.world.Catalogs.FailDial(2, -1, errors.New("connection refused"))

	res, err := f.boot.CreateCluster(context.Background(), topology.CreateClusterRequest{
		Cluster:      topology.ClusterSpec{Name: "c1", HAMode: types.HAModeReplicated},
		ComputeNodes: []topology.ComputeNodeSpec{computeSpec(1, "comp1"), computeSpec(2, "comp2")},
		Shards:       []topology.ShardSpec{s1},
	})
	require.ErrorIs(t, err, topology.ErrPartialPropagation)
	require.NotNil(t, res.Shards)
	assert.Equal(t, []int64{1}, res.Shards.Propagation.Succeeded())
	assert.Len(t, f.world.Catalogs.State(1).Shards, 1)
}

func TestCreateClusterStopsOnPartitionFailure(t *testing.T) {
	f := newFixture(t)
	s1 := shardSpec("shard1", 2)
	f.agree(s1)
	f.world.Meta.FailPartition(1, -1, errors.New("lock wait timeout exceeded"))

	res, err := f.boot.CreateCluster(context.Background(), topology.CreateClusterRequest{
		Cluster:      topology.ClusterSpec{Name: "c1", HAMode: types.HAModeReplicated},
		ComputeNodes: []topology.ComputeNodeSpec{computeSpec(1, "comp1")},
		Shards:       []topology.ShardSpec{s1},
	})
	require.ErrorIs(t, err, topology.ErrPartitionCreation)
	assert.Nil(t, res.Shards)
	_, ok := f.world.Meta.ShardByName(res.Cluster.ID, "shard1")
	assert.False(t, ok)
}

func TestCreateClusterInconsistentShardLeavesClusterAndNodes(t *testing.T) {
	f := newFixture(t)
	s1 := shardSpec("shard1", 3)
	f.agree(s1)
	f.world.Members.Report(endpoint(s1.Nodes[1]), endpoint(s1.Nodes[1]))

	res, err := f.boot.CreateCluster(context.Background(), topology.CreateClusterRequest{
		Cluster:      topology.ClusterSpec{Name: "c1", HAMode: types.HAModeReplicated},
		ComputeNodes: []topology.ComputeNodeSpec{computeSpec(1, "comp1")},
		Shards:       []topology.ShardSpec{s1},
	})
	require.ErrorIs(t, err, topology.ErrTopologyInconsistency)
	require.NotNil(t, res)
	assert.Nil(t, res.Shards)
	_, err = f.world.Meta.ClusterByName(context.Background(), "c1")
	assert.NoError(t, err)
	assert.True(t, f.world.Meta.HasPartition("c1", 1))
}
