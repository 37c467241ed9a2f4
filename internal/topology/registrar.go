package topology

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/metrics"
	"github.com/dropDatabas3/shardmeta/internal/observability/logger"
)

// DefaultShardDatabase es la base lógica que se crea en el primario de cada shard nuevo.
const DefaultShardDatabase = "postgres_$$_public"

type RegistrarOptions struct {
	// DefaultDatabase se crea en el primario de cada shard. Vacío usa DefaultShardDatabase.
	DefaultDatabase string
}

// Registrar escribe shards y nodos de cómputo en el metadata store y dispara
// la propagación a los catálogos.
type Registrar struct {
	h          *Handle
	discoverer *Discoverer
	propagator *Propagator
	opts       RegistrarOptions
}

func NewRegistrar(h *Handle, p *Propagator, opts RegistrarOptions) *Registrar {
	if opts.DefaultDatabase == "" {
		opts.DefaultDatabase = DefaultShardDatabase
	}
	var mc repository.MemberClient
	if h != nil {
		mc = h.Members
	}
	return &Registrar{h: h, discoverer: NewDiscoverer(mc), propagator: p, opts: opts}
}

// ─── Shards ───

// ShardRegistration es el resultado de RegisterShards.
type ShardRegistration struct {
	// Shards registrados, con sus nodos y master ya resueltos.
	Shards      []repository.Shard
	Propagation *PropagationReport
}

// Registered retorna la cantidad de shards registrados.
func (r *ShardRegistration) Registered() int {
	if r == nil {
		return 0
	}
	return len(r.Shards)
}

// RegisterShards descubre el primario de cada shard, registra todos los shards
// en una única transacción y luego los propaga a los nodos de cómputo del cluster.
//
// Si falla algo antes del commit no queda nada escrito. Después del commit, las
// fallas (base por defecto, propagación) se retornan junto con el resultado.
func (r *Registrar) RegisterShards(ctx context.Context, req RegisterShardsRequest) (*ShardRegistration, error) {
	if err := r.h.validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx = logger.Scoped(ctx, logger.Cluster(req.Cluster.Name), logger.ClusterID(req.Cluster.ID))
	log := logger.From(ctx).With(logger.Component("registrar"), logger.Op("register_shards"))

	// 1. Primarios de todos los shards antes de escribir nada.
	primaries := make([]repository.Member, len(req.Shards))
	for i, s := range req.Shards {
		p, err := r.discoverer.Discover(ctx, ReplicaSet{Name: s.Name, Members: s.Members(), Mode: req.Cluster.HAMode}, req.Verify)
		if err != nil {
			return nil, err
		}
		primaries[i] = p
	}

	// 2. Una transacción para todos los shards.
	shards, err := r.insertShards(ctx, req, primaries)
	if err != nil {
		return nil, err
	}
	metrics.RegisteredEntities.WithLabelValues(metrics.KindShard).Add(float64(len(shards)))
	for _, s := range shards {
		metrics.RegisteredEntities.WithLabelValues(metrics.KindShardNode).Add(float64(len(s.Nodes)))
		log.Info("shard registered", logger.Shard(s.Name), logger.ShardID(s.ID), logger.Count(len(s.Nodes)))
	}
	res := &ShardRegistration{Shards: shards, Propagation: newReport()}

	// 3. Base por defecto en cada primario.
	var errs []error
	for i, p := range primaries {
		if err := r.h.Members.EnsureDatabase(ctx, p, r.opts.DefaultDatabase); err != nil {
			log.Warn("default database creation failed", logger.Shard(req.Shards[i].Name), logger.Addr(p.Addr()), logger.Err(err))
			errs = append(errs, &ConnectivityError{Addr: p.Addr(), Op: "create database " + r.opts.DefaultDatabase, Err: err})
		}
	}

	// 4. Propagación a todos los nodos de cómputo registrados.
	targets, err := r.h.Meta.ListComputeNodes(ctx, req.Cluster.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("list compute nodes: %w", err))
		return res, errors.Join(errs...)
	}
	res.Propagation = r.propagator.Propagate(ctx, targets, CatalogPayload{Shards: shards})
	LogReport(ctx, "register_shards", res.Propagation)
	errs = append(errs, res.Propagation.Err())
	return res, errors.Join(errs...)
}

func (r *Registrar) insertShards(ctx context.Context, req RegisterShardsRequest, primaries []repository.Member) (_ []repository.Shard, err error) {
	tx, err := r.h.Meta.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin metadata tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	out := make([]repository.Shard, 0, len(req.Shards))
	for i, spec := range req.Shards {
		dup := &DuplicateRegistrationError{Kind: "shard", Name: spec.Name, Cluster: req.Cluster.Name}
		exists, err := tx.ShardExists(ctx, req.Cluster.ID, spec.Name)
		if err != nil {
			return nil, fmt.Errorf("check shard %q: %w", spec.Name, err)
		}
		if exists {
			return nil, dup
		}

		shard := repository.Shard{Name: spec.Name, ClusterID: req.Cluster.ID}
		shard.ID, err = tx.InsertShard(ctx, shard)
		if err != nil {
			if repository.IsConflict(err) {
				return nil, dup
			}
			return nil, fmt.Errorf("insert shard %q: %w", spec.Name, err)
		}

		primary := repository.Endpoint{Host: primaries[i].Host, Port: primaries[i].Port}
		for _, m := range spec.Members() {
			node := repository.ShardNode{
				Host:      m.Host,
				Port:      m.Port,
				User:      m.User,
				Password:  m.Password,
				ShardID:   shard.ID,
				ClusterID: req.Cluster.ID,
			}
			node.ID, err = tx.InsertShardNode(ctx, node)
			if err != nil {
				if repository.IsConflict(err) {
					return nil, &DuplicateRegistrationError{Kind: "shard node", Name: m.Addr(), Cluster: req.Cluster.Name}
				}
				return nil, fmt.Errorf("insert shard node %s of %q: %w", m.Addr(), spec.Name, err)
			}
			if primary.Matches(m) {
				shard.MasterNodeID = node.ID
			}
			shard.Nodes = append(shard.Nodes, node)
		}

		if err := tx.SetShardMaster(ctx, shard.ID, shard.MasterNodeID); err != nil {
			return nil, fmt.Errorf("set master of shard %q: %w", spec.Name, err)
		}
		shard.NumNodes = len(shard.Nodes)
		if err := tx.SetShardNumNodes(ctx, shard.ID, shard.NumNodes); err != nil {
			return nil, fmt.Errorf("set num_nodes of shard %q: %w", spec.Name, err)
		}
		out = append(out, shard)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit shards: %w", err)
	}
	return out, nil
}

// ─── Compute nodes ───

// ComputeRegistration es el resultado de RegisterComputeNodes.
type ComputeRegistration struct {
	// Nodes son los nodos del request con su id final, en el mismo orden.
	Nodes []repository.ComputeNode
	// Existing son los ids que ya estaban registrados con los mismos datos.
	Existing    []int64
	Propagation *PropagationReport
}

// RegisterComputeNodes registra nodos de cómputo en una única transacción, crea
// la partición de commit log de cada uno y siembra su catálogo.
//
// Un nodo ya registrado con el mismo id, nombre y dirección no es un conflicto:
// se saltea el insert y se repiten los pasos posteriores, lo que permite sanar
// una corrida previa que falló al crear particiones o al propagar.
func (r *Registrar) RegisterComputeNodes(ctx context.Context, req RegisterComputeNodesRequest) (*ComputeRegistration, error) {
	if err := r.h.validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx = logger.Scoped(ctx, logger.Cluster(req.Cluster.Name), logger.ClusterID(req.Cluster.ID))
	log := logger.From(ctx).With(logger.Component("registrar"), logger.Op("register_compute_nodes"))

	res, err := r.insertComputeNodes(ctx, req)
	if err != nil {
		return nil, err
	}
	metrics.RegisteredEntities.WithLabelValues(metrics.KindComputeNode).Add(float64(len(res.Nodes) - len(res.Existing)))
	for _, n := range res.Nodes {
		log.Info("compute node registered", logger.NodeID(n.ID), logger.String("name", n.Name), logger.Addr(n.Addr()))
	}

	// Particiones fuera de la transacción: DDL.
	failures := map[int64]error{}
	ready := make([]repository.ComputeNode, 0, len(res.Nodes))
	for _, n := range res.Nodes {
		err := r.h.Meta.AddCommitLogPartition(ctx, req.Cluster.Name, n.ID)
		if err != nil && !repository.IsAlreadyExists(err) {
			metrics.PartitionFailures.Inc()
			log.Error("commit log partition failed", logger.NodeID(n.ID), logger.Err(err))
			failures[n.ID] = err
			continue
		}
		ready = append(ready, n)
	}

	var errs []error
	if len(failures) > 0 {
		errs = append(errs, &PartitionCreationError{Cluster: req.Cluster.Name, Failures: failures})
	}
	if len(ready) == 0 {
		return res, errors.Join(errs...)
	}

	payload, err := r.seedPayload(ctx, req.Cluster)
	if err != nil {
		errs = append(errs, err)
		return res, errors.Join(errs...)
	}
	res.Propagation = r.propagator.Propagate(ctx, ready, payload)
	LogReport(ctx, "register_compute_nodes", res.Propagation)
	errs = append(errs, res.Propagation.Err())
	return res, errors.Join(errs...)
}

func (r *Registrar) insertComputeNodes(ctx context.Context, req RegisterComputeNodesRequest) (_ *ComputeRegistration, err error) {
	tx, err := r.h.Meta.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin metadata tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Primero los ids explícitos, después los auto-asignados: así la secuencia
	// ya conoce los ids pedidos y no los vuelve a entregar.
	nodes := make([]repository.ComputeNode, len(req.Nodes))
	var existing []int64
	for _, auto := range []bool{false, true} {
		for i, spec := range req.Nodes {
			if (spec.ID == 0) != auto {
				continue
			}
			node, found, err := r.insertComputeNode(ctx, tx, req, spec.Node(req.Cluster.ID))
			if err != nil {
				return nil, err
			}
			if found {
				existing = append(existing, node.ID)
			}
			nodes[i] = node
		}
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i] < existing[j] })
	res := &ComputeRegistration{Nodes: nodes, Existing: existing, Propagation: newReport()}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit compute nodes: %w", err)
	}
	return res, nil
}

// insertComputeNode inserta un nodo dentro de tx. found indica que ya estaba
// registrado con los mismos datos.
func (r *Registrar) insertComputeNode(ctx context.Context, tx repository.MetaTx, req RegisterComputeNodesRequest, node repository.ComputeNode) (_ repository.ComputeNode, found bool, err error) {
	dup := &DuplicateRegistrationError{Kind: "compute node", Name: node.Name, ID: node.ID, Cluster: req.Cluster.Name}

	existing, err := tx.FindComputeNode(ctx, req.Cluster.ID, node.ID, node.Name)
	switch {
	case err == nil:
		if !sameComputeNode(*existing, node) {
			return node, false, dup
		}
		return *existing, true, nil
	case !repository.IsNotFound(err):
		return node, false, fmt.Errorf("check compute node %q: %w", node.Name, err)
	}

	if node.ID == 0 {
		if node.ID, err = tx.NextComputeNodeID(ctx); err != nil {
			return node, false, fmt.Errorf("allocate compute node id: %w", err)
		}
	} else if req.WriteSequence {
		if err := tx.ReserveComputeNodeID(ctx, node.ID); err != nil {
			if repository.IsConflict(err) {
				return node, false, dup
			}
			return node, false, fmt.Errorf("reserve compute node id %d: %w", node.ID, err)
		}
	}
	if err := tx.InsertComputeNode(ctx, node); err != nil {
		if repository.IsConflict(err) {
			dup.ID = node.ID
			return node, false, dup
		}
		return node, false, fmt.Errorf("insert compute node %q: %w", node.Name, err)
	}
	return node, false, nil
}

// seedPayload arma lo que necesita un nodo nuevo: todos los shards del cluster
// más la identidad del cluster y del cluster de metadata.
func (r *Registrar) seedPayload(ctx context.Context, cluster repository.Cluster) (CatalogPayload, error) {
	shards, err := r.h.Meta.ListShards(ctx, cluster.ID)
	if err != nil {
		return CatalogPayload{}, fmt.Errorf("list shards: %w", err)
	}
	metaNodes, err := r.h.Meta.ListMetaNodes(ctx)
	if err != nil {
		return CatalogPayload{}, fmt.Errorf("list meta nodes: %w", err)
	}
	return CatalogPayload{
		Shards: shards,
		Identity: &IdentitySeed{
			Cluster:     cluster,
			MetaNodes:   metaNodes,
			MetaPrimary: repository.Endpoint{Host: r.h.MetaPrimary.Host, Port: r.h.MetaPrimary.Port},
		},
	}, nil
}

// sameComputeNode compara la fila existente con el pedido. Un id 0 en el
// pedido no participa de la comparación.
func sameComputeNode(existing, want repository.ComputeNode) bool {
	if want.ID != 0 && existing.ID != want.ID {
		return false
	}
	return existing.Name == want.Name &&
		existing.Host == want.Host &&
		existing.Port == want.Port &&
		existing.ClusterID == want.ClusterID
}

// ReserveComputeNodeID reserva un id de nodo de cómputo, commiteado de inmediato.
func (r *Registrar) ReserveComputeNodeID(ctx context.Context) (int64, error) {
	if err := r.h.validate(); err != nil {
		return 0, err
	}
	id, err := r.h.Meta.ReserveComputeNodeID(ctx)
	if err != nil {
		return 0, fmt.Errorf("reserve compute node id: %w", err)
	}
	logger.From(ctx).Info("compute node id reserved", logger.NodeID(id))
	return id, nil
}

// RegisterSelf reserva un id y registra el nodo que ejecuta el comando.
// Sin nombre se usa "comp<id>".
func (r *Registrar) RegisterSelf(ctx context.Context, cluster repository.Cluster, spec ComputeNodeSpec) (*ComputeRegistration, error) {
	id, err := r.ReserveComputeNodeID(ctx)
	if err != nil {
		return nil, err
	}
	spec.ID = id
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("comp%d", id)
	}
	return r.RegisterComputeNodes(ctx, RegisterComputeNodesRequest{
		Cluster:       cluster,
		Nodes:         []ComputeNodeSpec{spec},
		WriteSequence: false,
	})
}
