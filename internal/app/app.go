// Package app arma las dependencias de una corrida del CLI: conexiones a los
// adapters, primario del cluster de metadata y los componentes de topology.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/shardmeta/internal/config"
	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/domain/types"
	"github.com/dropDatabas3/shardmeta/internal/observability/logger"
	"github.com/dropDatabas3/shardmeta/internal/store"
	"github.com/dropDatabas3/shardmeta/internal/store/adapters/memory"
	"github.com/dropDatabas3/shardmeta/internal/topology"
	migrations "github.com/dropDatabas3/shardmeta/migrations/mysql"

	// Los adapters se registran vía init().
	_ "github.com/dropDatabas3/shardmeta/internal/store/adapters/mysql"
	_ "github.com/dropDatabas3/shardmeta/internal/store/adapters/pg"
)

// MetaReplicaSet es el nombre con el que aparece el cluster de metadata en logs y errores.
const MetaReplicaSet = "metadata"

type Options struct {
	// DryRun reemplaza los tres drivers por el adapter en memoria.
	DryRun bool
	// MetaNodes sobrescribe cfg.Meta.Nodes (flag --meta-config).
	MetaNodes []config.Node
	// CreateMetaDatabase crea la base de metadata si no existe (bootstrap-meta).
	CreateMetaDatabase bool
}

// Container tiene todo lo que usa un comando.
type Container struct {
	Config       *config.Config
	Handle       *topology.Handle
	Propagator   *topology.Propagator
	Registrar    *topology.Registrar
	Bootstrapper *topology.Bootstrapper
	// World es el despliegue simulado; nil salvo en dry-run.
	World *memory.World

	metaConn store.AdapterConnection
	metaSet  topology.ReplicaSet
	conns    []store.AdapterConnection
}

// New abre las conexiones, descubre el primario de metadata y arma los componentes.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *Container, err error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	nodes := cfg.Meta.Nodes
	if len(opts.MetaNodes) > 0 {
		nodes = opts.MetaNodes
	}
	if len(nodes) == 0 {
		return nil, errors.New("app: no metadata nodes configured (meta.nodes or --meta-config)")
	}
	c.metaSet = topology.ReplicaSet{Name: MetaReplicaSet, Members: MetaMembers(nodes), Mode: cfg.MetaHAMode()}

	drivers := [3]string{cfg.Storage.MemberDriver, cfg.Storage.MetaDriver, cfg.Storage.CatalogDriver}
	if opts.DryRun {
		drivers = [3]string{"memory", "memory", "memory"}
	}
	log := logger.From(ctx).With(logger.Component("app"))

	// 1. Miembros: hacen falta para descubrir el primario de metadata.
	memberConn, err := c.open(ctx, store.AdapterConfig{
		Name:           drivers[0],
		ConnectTimeout: cfg.Storage.ConnectTimeout,
		CheckVersion:   !cfg.Shards.SkipVersionCheck,
		VersionMarker:  cfg.Shards.VersionMarker,
	})
	if err != nil {
		return nil, err
	}
	if memberConn.Members() == nil {
		return nil, fmt.Errorf("app: driver %q does not provide a member client", drivers[0])
	}
	if opts.DryRun {
		c.World = worldOf(memberConn)
		if err := c.seedDryRun(ctx, nodes); err != nil {
			return nil, err
		}
	}

	verify := len(c.metaSet.Members) > 1 && c.metaSet.Mode.Replicates()
	primary, err := topology.NewDiscoverer(memberConn.Members()).Discover(ctx, c.metaSet, verify)
	if err != nil {
		return nil, fmt.Errorf("discover metadata primary: %w", err)
	}
	log.Info("metadata primary", logger.Primary(primary.Addr()), logger.Bool("verified", verify))

	// 2. Metadata store contra el primario.
	c.metaConn, err = c.open(ctx, store.AdapterConfig{
		Name:           drivers[1],
		Host:           primary.Host,
		Port:           primary.Port,
		User:           primary.User,
		Password:       primary.Password,
		Database:       cfg.Meta.Database,
		CreateDatabase: opts.CreateMetaDatabase,
		ConnectTimeout: cfg.Storage.ConnectTimeout,
		MaxOpenConns:   cfg.Storage.MaxOpenConns,
		MaxIdleConns:   cfg.Storage.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	if c.metaConn.MetaStore() == nil {
		return nil, fmt.Errorf("app: driver %q does not provide a metadata store", drivers[1])
	}

	// 3. Catálogos de los nodos de cómputo.
	catalogConn, err := c.open(ctx, store.AdapterConfig{
		Name:            drivers[2],
		ConnectTimeout:  cfg.Storage.ConnectTimeout,
		CatalogDatabase: cfg.Storage.CatalogDatabase,
	})
	if err != nil {
		return nil, err
	}
	if catalogConn.Catalogs() == nil {
		return nil, fmt.Errorf("app: driver %q does not provide a catalog dialer", drivers[2])
	}

	c.Handle = &topology.Handle{
		Meta:        c.metaConn.MetaStore(),
		Members:     memberConn.Members(),
		Catalogs:    catalogConn.Catalogs(),
		MetaPrimary: primary,
	}
	c.Propagator = topology.NewPropagator(c.Handle.Catalogs, topology.RetryPolicy{
		MaxAttempts: cfg.Propagation.MaxAttempts,
		Backoff:     cfg.Propagation.Backoff,
		Sleep:       topology.SleepContext,
	}, cfg.Propagation.Parallelism)
	c.Registrar = topology.NewRegistrar(c.Handle, c.Propagator, topology.RegistrarOptions{
		DefaultDatabase: cfg.Shards.DefaultDatabase,
	})
	c.Bootstrapper = topology.NewBootstrapper(c.Handle, c.Registrar)
	return c, nil
}

// open reutiliza una conexión ya abierta del mismo driver salvo que el rol
// pida un metadata store y la existente no lo tenga (mysql sin host).
func (c *Container) open(ctx context.Context, acfg store.AdapterConfig) (store.AdapterConnection, error) {
	for _, conn := range c.conns {
		if conn.Name() != acfg.Name {
			continue
		}
		if acfg.Host == "" || conn.MetaStore() != nil {
			return conn, nil
		}
	}
	conn, err := store.OpenAdapter(ctx, acfg)
	if err != nil {
		return nil, err
	}
	c.conns = append(c.conns, conn)
	return conn, nil
}

func worldOf(conn store.AdapterConnection) *memory.World {
	if w, ok := conn.(interface{ World() *memory.World }); ok {
		return w.World()
	}
	return nil
}

// seedDryRun carga en el World los nodos de metadata y hace que reporten al
// marcado como primario.
func (c *Container) seedDryRun(ctx context.Context, nodes []config.Node) error {
	if c.World == nil {
		return errors.New("app: dry-run without memory world")
	}
	c.World.Members.SetReplicaSet(MetaMembers(nodes))
	_, err := insertMetaNodes(ctx, c.World.Meta, nodes)
	return err
}

// SimulateShards hace que los miembros de cada shard reporten su primario
// declarado. Sólo tiene efecto en dry-run.
func (c *Container) SimulateShards(specs []topology.ShardSpec) {
	if c.World == nil {
		return
	}
	for _, s := range specs {
		c.World.Members.SetReplicaSet(s.Members())
	}
}

// Cluster busca el cluster por nombre. En dry-run un cluster inexistente se
// simula con el modo de replicación del cluster de metadata.
func (c *Container) Cluster(ctx context.Context, name string) (repository.Cluster, error) {
	cl, err := c.Handle.Meta.ClusterByName(ctx, name)
	if err == nil {
		return *cl, nil
	}
	if !repository.IsNotFound(err) || c.World == nil {
		return repository.Cluster{}, fmt.Errorf("cluster %q: %w", name, err)
	}

	logger.From(ctx).Info("dry-run: simulating cluster", logger.Cluster(name))
	sim := repository.Cluster{
		Name:           name,
		HAMode:         c.Config.MetaHAMode(),
		DDLLogTable:    repository.DDLLogTableName(name),
		CommitLogTable: repository.CommitLogTableName(name),
	}
	tx, err := c.Handle.Meta.Begin(ctx)
	if err != nil {
		return repository.Cluster{}, err
	}
	if sim.ID, err = tx.InsertCluster(ctx, sim); err != nil {
		_ = tx.Rollback()
		return repository.Cluster{}, err
	}
	if err := tx.Commit(); err != nil {
		return repository.Cluster{}, err
	}
	return sim, c.Handle.Meta.CreateClusterLogTables(ctx, name)
}

// ─── bootstrap-meta ───

// MetaBootstrap es el resultado de BootstrapMeta.
type MetaBootstrap struct {
	Migrations *store.MigrationResult
	// Inserted son los nodos de metadata que no estaban en meta_db_nodes.
	Inserted int
}

// BootstrapMeta aplica el esquema de metadata y registra los nodos del cluster
// de metadata. Correrlo dos veces no cambia nada.
func (c *Container) BootstrapMeta(ctx context.Context) (*MetaBootstrap, error) {
	res := &MetaBootstrap{Migrations: &store.MigrationResult{}}
	log := logger.From(ctx).With(logger.Component("app"), logger.Op("bootstrap_meta"))

	if mc, ok := c.metaConn.(store.MigratableConnection); ok && mc.MigrationExecutor() != nil {
		mr, err := store.NewMigrator(migrations.MetaFS, migrations.MetaDir).Run(ctx, mc.MigrationExecutor(), mc.MigrationDriver())
		if err != nil {
			return nil, fmt.Errorf("migrate metadata schema: %w", err)
		}
		res.Migrations = mr
		log.Info("metadata schema ready", logger.Int("applied", len(mr.Applied)), logger.Int("skipped", len(mr.Skipped)))
	} else {
		log.Info("metadata store is not migratable, schema step skipped", logger.String("driver", c.metaConn.Name()))
	}

	nodes := make([]config.Node, 0, len(c.metaSet.Members))
	for _, m := range c.metaSet.Members {
		nodes = append(nodes, config.Node{Host: m.Host, Port: m.Port, User: m.User, Password: m.Password})
	}
	n, err := insertMetaNodes(ctx, c.Handle.Meta, nodes)
	if err != nil {
		return res, err
	}
	res.Inserted = n
	log.Info("metadata nodes registered", logger.Count(n))
	return res, nil
}

func insertMetaNodes(ctx context.Context, meta repository.MetaStore, nodes []config.Node) (_ int, err error) {
	tx, err := meta.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin metadata tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inserted := 0
	for _, n := range nodes {
		ok, err := tx.InsertMetaNode(ctx, repository.MetaNode{
			Host:     n.HostAddr(),
			Port:     n.Port,
			User:     n.User,
			Password: n.Password,
		})
		if err != nil {
			return 0, fmt.Errorf("insert meta node %s:%d: %w", n.HostAddr(), n.Port, err)
		}
		if ok {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit meta nodes: %w", err)
	}
	return inserted, nil
}

// ─── check-shards ───

// PrimaryCheck es el primario de un replica-set, o el error al buscarlo.
type PrimaryCheck struct {
	ReplicaSet string
	Primary    repository.Member
	Err        error
}

// CheckPrimaries corre la verificación en vivo sobre cada shard y reporta
// también el primario de metadata ya descubierto. No escribe nada.
func (c *Container) CheckPrimaries(ctx context.Context, mode types.HAMode, shards []topology.ShardSpec) []PrimaryCheck {
	d := topology.NewDiscoverer(c.Handle.Members)
	out := make([]PrimaryCheck, 0, len(shards)+1)

	out = append(out, PrimaryCheck{ReplicaSet: MetaReplicaSet, Primary: c.Handle.MetaPrimary})
	for _, s := range shards {
		p, err := d.Discover(ctx, topology.ReplicaSet{Name: s.Name, Members: s.Members(), Mode: mode}, true)
		out = append(out, PrimaryCheck{ReplicaSet: s.Name, Primary: p, Err: err})
	}
	return out
}

// Close cierra todas las conexiones abiertas.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.conns) - 1; i >= 0; i-- {
		if err := c.conns[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.conns = nil
	return errors.Join(errs...)
}
