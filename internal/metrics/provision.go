package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas de aprovisionamiento. Viven en un paquete propio para que topology
// no dependa del CLI que las exporta.

var (
	PropagationAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shardmeta_propagation_attempts_total",
		Help: "Intentos de propagación al catálogo de nodos de cómputo, por resultado",
	}, []string{"result"})

	PropagationNodeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shardmeta_propagation_node_failures_total",
		Help: "Nodos de cómputo que agotaron los reintentos de propagación",
	})

	PropagationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shardmeta_propagation_node_duration_seconds",
		Help:    "Duración de la propagación a un nodo de cómputo, incluyendo reintentos",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	RegisteredEntities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shardmeta_registered_entities_total",
		Help: "Entidades registradas en el metadata store, por tipo",
	}, []string{"kind"})

	PartitionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shardmeta_commit_log_partition_failures_total",
		Help: "Particiones de commit log que no pudieron crearse tras el commit de metadata",
	})
)

// Valores de la label "kind" de RegisteredEntities.
const (
	KindCluster     = "cluster"
	KindShard       = "shard"
	KindShardNode   = "shard_node"
	KindComputeNode = "compute_node"
)

// Register registers the provisioning metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		PropagationAttempts,
		PropagationNodeFailures,
		PropagationDuration,
		RegisteredEntities,
		PartitionFailures,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
