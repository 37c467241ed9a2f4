package topology_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/domain/types"
	"github.com/dropDatabas3/shardmeta/internal/store/adapters/memory"
	"github.com/dropDatabas3/shardmeta/internal/topology"
)

// fixture arma un despliegue en memoria con sleep instantáneo.
type fixture struct {
	world    *memory.World
	handle   *topology.Handle
	prop     *topology.Propagator
	reg      *topology.Registrar
	boot     *topology.Bootstrapper
	sleeps   atomic.Int32
	metaNode repository.Member
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{world: memory.NewWorld()}
	f.metaNode = repository.Member{Host: "127.0.0.1", Port: 6001, User: "pgx", Password: "pgx_pwd", Primary: true}
	f.handle = &topology.Handle{
		Meta:        f.world.Meta,
		Members:     f.world.Members,
		Catalogs:    f.world.Catalogs,
		MetaPrimary: f.metaNode,
	}
	policy := topology.RetryPolicy{
		MaxAttempts: 10,
		Backoff:     2 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			f.sleeps.Add(1)
			return ctx.Err()
		},
	}
	f.prop = topology.NewPropagator(f.world.Catalogs, policy, 0)
	f.reg = topology.NewRegistrar(f.handle, f.prop, topology.RegistrarOptions{})
	f.boot = topology.NewBootstrapper(f.handle, f.reg)

	// El cluster de metadata tiene un nodo registrado.
	tx, err := f.world.Meta.Begin(context.Background())
	require.NoError(t, err)
	_, err = tx.InsertMetaNode(context.Background(), repository.MetaNode{
		Host: f.metaNode.Host, Port: f.metaNode.Port, User: f.metaNode.User, Password: f.metaNode.Password,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return f
}

// cluster crea un cluster vacío con sus tablas de log.
func (f *fixture) cluster(t *testing.T, name string, mode types.HAMode) repository.Cluster {
	t.Helper()
	ctx := context.Background()
	c := repository.Cluster{
		Name:           name,
		HAMode:         mode,
		DDLLogTable:    repository.DDLLogTableName(name),
		CommitLogTable: repository.CommitLogTableName(name),
	}
	tx, err := f.world.Meta.Begin(ctx)
	require.NoError(t, err)
	c.ID, err = tx.InsertCluster(ctx, c)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, f.world.Meta.CreateClusterLogTables(ctx, name))
	return c
}

func member(host string, port int) topology.MemberSpec {
	return topology.MemberSpec{Host: host, Port: port, User: "pgx", Password: "pgx_pwd"}
}

// shardSpec arma un shard de n miembros en host-<name>-<i>:4001. El primero es el primario.
func shardSpec(name string, n int) topology.ShardSpec {
	s := topology.ShardSpec{Name: name}
	for i := 0; i < n; i++ {
		m := member(name+"-host-"+string(rune('a'+i)), 4001)
		m.IsPrimary = i == 0
		s.Nodes = append(s.Nodes, m)
	}
	return s
}

// agree hace que todos los miembros del shard reporten al marcado como primario.
func (f *fixture) agree(specs ...topology.ShardSpec) {
	for _, s := range specs {
		f.world.Members.SetReplicaSet(s.Members())
	}
}

func computeSpec(id int64, name string) topology.ComputeNodeSpec {
	return topology.ComputeNodeSpec{ID: id, Name: name, Host: "host-" + name, Port: 5401, User: "abc", Password: "abc"}
}

func endpoint(m topology.MemberSpec) repository.Endpoint {
	return repository.Endpoint{Host: m.HostAddr(), Port: m.Port}
}
