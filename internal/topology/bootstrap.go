package topology

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/metrics"
	"github.com/dropDatabas3/shardmeta/internal/observability/logger"
)

// Bootstrapper crea un cluster completo componiendo el registrar.
// No tiene estado propio.
type Bootstrapper struct {
	h         *Handle
	registrar *Registrar
}

func NewBootstrapper(h *Handle, r *Registrar) *Bootstrapper {
	return &Bootstrapper{h: h, registrar: r}
}

// ClusterCreation es el resultado de CreateCluster. Los pasos que no llegaron
// a correr quedan en nil.
type ClusterCreation struct {
	Cluster      repository.Cluster
	ComputeNodes *ComputeRegistration
	Shards       *ShardRegistration
}

// CreateCluster ejecuta, en este orden: fila db_clusters, tablas de log del
// cluster, nodos de cómputo iniciales y shards iniciales. Los shards se
// propagan a los nodos del paso anterior.
//
// Una falla de propagación en los nodos no detiene el registro de shards;
// cualquier otra falla sí.
func (b *Bootstrapper) CreateCluster(ctx context.Context, req CreateClusterRequest) (*ClusterCreation, error) {
	if err := b.h.validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx = logger.Scoped(ctx, logger.Cluster(req.Cluster.Name))
	log := logger.From(ctx).With(logger.Component("bootstrapper"), logger.Op("create_cluster"))

	// 1. Fila del cluster.
	cluster, err := b.insertCluster(ctx, req.Cluster)
	if err != nil {
		return nil, err
	}
	metrics.RegisteredEntities.WithLabelValues(metrics.KindCluster).Inc()
	log.Info("cluster registered", logger.ClusterID(cluster.ID), logger.String("ha_mode", cluster.HAMode.String()))
	res := &ClusterCreation{Cluster: cluster}

	// 2. Tablas de log copiadas de las plantillas.
	if err := b.h.Meta.CreateClusterLogTables(ctx, cluster.Name); err != nil {
		return res, fmt.Errorf("create log tables of cluster %q: %w", cluster.Name, err)
	}

	// 3. Nodos de cómputo.
	var errs []error
	if len(req.ComputeNodes) > 0 {
		res.ComputeNodes, err = b.registrar.RegisterComputeNodes(ctx, RegisterComputeNodesRequest{
			Cluster:       cluster,
			Nodes:         req.ComputeNodes,
			WriteSequence: true,
		})
		if err != nil {
			if !onlyPartialPropagation(err) {
				return res, err
			}
			errs = append(errs, err)
		}
	}

	// 4. Shards, propagados a los nodos del paso 3.
	if len(req.Shards) > 0 {
		res.Shards, err = b.registrar.RegisterShards(ctx, RegisterShardsRequest{
			Cluster: cluster,
			Shards:  req.Shards,
			Verify:  cluster.HAMode.Replicates(),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

func (b *Bootstrapper) insertCluster(ctx context.Context, spec ClusterSpec) (_ repository.Cluster, err error) {
	cluster := repository.Cluster{
		Name:           spec.Name,
		Owner:          spec.Owner,
		Business:       spec.Business,
		HAMode:         spec.HAMode,
		DDLLogTable:    repository.DDLLogTableName(spec.Name),
		CommitLogTable: repository.CommitLogTableName(spec.Name),
	}
	dup := &DuplicateRegistrationError{Kind: "cluster", Name: spec.Name}

	tx, err := b.h.Meta.Begin(ctx)
	if err != nil {
		return cluster, fmt.Errorf("begin metadata tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	exists, err := tx.ClusterExists(ctx, spec.Name)
	if err != nil {
		return cluster, fmt.Errorf("check cluster %q: %w", spec.Name, err)
	}
	if exists {
		return cluster, dup
	}
	cluster.ID, err = tx.InsertCluster(ctx, cluster)
	if err != nil {
		if repository.IsConflict(err) {
			return cluster, dup
		}
		return cluster, fmt.Errorf("insert cluster %q: %w", spec.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return cluster, fmt.Errorf("commit cluster %q: %w", spec.Name, err)
	}
	return cluster, nil
}

// onlyPartialPropagation indica si err sólo contiene fallas de propagación.
func onlyPartialPropagation(err error) bool {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			if !onlyPartialPropagation(e) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, ErrPartialPropagation)
}
