package topology_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/domain/types"
	"github.com/dropDatabas3/shardmeta/internal/store/adapters/memory"
	"github.com/dropDatabas3/shardmeta/internal/topology"
)

func threeMembers() []repository.Member {
	return []repository.Member{
		{Host: "10.0.0.1", Port: 4001},
		{Host: "10.0.0.2", Port: 4001},
		{Host: "10.0.0.3", Port: 4001},
	}
}

func TestDiscoverUnanimous(t *testing.T) {
	members := memory.NewMembers()
	ms := threeMembers()
	p := repository.Endpoint{Host: "10.0.0.2", Port: 4001}
	for _, m := range ms {
		members.Report(repository.Endpoint{Host: m.Host, Port: m.Port}, p)
	}

	got, err := topology.NewDiscoverer(members).Discover(context.Background(),
		topology.ReplicaSet{Name: "shard1", Members: ms, Mode: types.HAModeReplicated}, true)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", got.Host)
	assert.Equal(t, repository.RolePrimary, got.Role)
	for _, m := range ms {
		assert.Equal(t, 1, members.Queries(repository.Endpoint{Host: m.Host, Port: m.Port}))
	}
}

func TestDiscoverDisagreementNamesBothCandidates(t *testing.T) {
	members := memory.NewMembers()
	ms := threeMembers()
	p := repository.Endpoint{Host: "10.0.0.1", Port: 4001}
	q := repository.Endpoint{Host: "10.0.0.3", Port: 4001}
	members.Report(repository.Endpoint{Host: "10.0.0.1", Port: 4001}, p)
	members.Report(repository.Endpoint{Host: "10.0.0.2", Port: 4001}, p)
	members.Report(repository.Endpoint{Host: "10.0.0.3", Port: 4001}, q)

	_, err := topology.NewDiscoverer(members).Discover(context.Background(),
		topology.ReplicaSet{Name: "shard1", Members: ms, Mode: types.HAModeReplicated}, true)
	require.ErrorIs(t, err, topology.ErrTopologyInconsistency)

	var inc *topology.TopologyInconsistencyError
	require.True(t, errors.As(err, &inc))
	assert.Equal(t, []repository.Endpoint{p, q}, inc.Candidates())
	require.Len(t, inc.Conflicts, 1)
	assert.Equal(t, "10.0.0.3:4001", inc.Conflicts[0].Member)
	assert.Contains(t, err.Error(), "10.0.0.1:4001")
	assert.Contains(t, err.Error(), "10.0.0.3:4001")
}

func TestDiscoverCollectsEveryDisagreement(t *testing.T) {
	members := memory.NewMembers()
	ms := threeMembers()
	for i, m := range ms {
		members.Report(repository.Endpoint{Host: m.Host, Port: m.Port}, repository.Endpoint{Host: ms[i].Host, Port: 4001})
	}

	_, err := topology.NewDiscoverer(members).Discover(context.Background(),
		topology.ReplicaSet{Name: "shard1", Members: ms}, true)
	var inc *topology.TopologyInconsistencyError
	require.True(t, errors.As(err, &inc))
	assert.Len(t, inc.Conflicts, 2)
	assert.Len(t, inc.Candidates(), 3)
}

func TestDiscoverAgreedPrimaryOutsideReplicaSet(t *testing.T) {
	members := memory.NewMembers()
	ms := threeMembers()
	outsider := repository.Endpoint{Host: "10.9.9.9", Port: 4001}
	for _, m := range ms {
		members.Report(repository.Endpoint{Host: m.Host, Port: m.Port}, outsider)
	}

	_, err := topology.NewDiscoverer(members).Discover(context.Background(),
		topology.ReplicaSet{Name: "shard1", Members: ms}, true)
	require.ErrorIs(t, err, topology.ErrPrimaryNotFound)
	var nf *topology.PrimaryNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, outsider, nf.Primary)
}

func TestDiscoverMemberUnreachable(t *testing.T) {
	members := memory.NewMembers()
	ms := threeMembers()
	members.SetReplicaSet(ms)
	members.Fail(repository.Endpoint{Host: "10.0.0.2", Port: 4001}, -1, errors.New("dial tcp: i/o timeout"))

	_, err := topology.NewDiscoverer(members).Discover(context.Background(),
		topology.ReplicaSet{Name: "shard1", Members: ms}, true)
	require.ErrorIs(t, err, topology.ErrConnectivity)
	var ce *topology.ConnectivityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "10.0.0.2:4001", ce.Addr)
}

func TestDiscoverUnverified(t *testing.T) {
	ms := threeMembers()
	ms[1].Primary = true

	// Sin verify no se consulta a nadie: un member client nil alcanza.
	d := topology.NewDiscoverer(nil)

	got, err := d.Discover(context.Background(), topology.ReplicaSet{Name: "shard1", Members: ms}, false)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", got.Host)
	assert.Equal(t, repository.RolePrimary, got.Role)

	lone := []repository.Member{{Host: "10.0.0.7", Port: 4001}}
	got, err = d.Discover(context.Background(), topology.ReplicaSet{Name: "shard2", Members: lone}, false)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", got.Host)

	_, err = d.Discover(context.Background(), topology.ReplicaSet{Name: "shard3", Members: threeMembers()}, false)
	assert.ErrorIs(t, err, topology.ErrPrimaryNotFound)
}

func TestDiscoverEmptyReplicaSet(t *testing.T) {
	_, err := topology.NewDiscoverer(nil).Discover(context.Background(), topology.ReplicaSet{Name: "x"}, true)
	assert.ErrorIs(t, err, topology.ErrInvalidRequest)
}
