package repository

import "context"

// CatalogDialer abre sesiones contra el catálogo local de un nodo de cómputo.
type CatalogDialer interface {
	Dial(ctx context.Context, node ComputeNode) (CatalogSession, error)
}

// CatalogSession es una conexión abierta a un nodo de cómputo.
type CatalogSession interface {
	Begin(ctx context.Context) (CatalogTx, error)
	Close(ctx context.Context) error
}

// CatalogTx es una transacción local sobre el catálogo (pg_shard, pg_shard_node, ...).
// Los ids son los mismos que en el metadata store.
type CatalogTx interface {
	// ─── Shards ───

	// ShardIDs retorna los ids de pg_shard ya presentes.
	ShardIDs(ctx context.Context) (map[int64]bool, error)

	// ShardNodeIDs retorna id de nodo -> id de shard para pg_shard_node.
	ShardNodeIDs(ctx context.Context) (map[int64]int64, error)

	// InsertShard inserta la réplica de un shard con master y num_nodes dados.
	InsertShard(ctx context.Context, s Shard) error

	// InsertShardNode inserta la réplica de un nodo de shard.
	InsertShardNode(ctx context.Context, n ShardNode) error

	// UpdateShard corrige master_node_id y num_nodes de una réplica de shard.
	UpdateShard(ctx context.Context, shardID, masterNodeID int64, numNodes int) error

	// ─── Identidad del cluster ───

	// HasClusterMeta indica si el nodo ya tiene su fila pg_cluster_meta.
	HasClusterMeta(ctx context.Context, compNodeID int64) (bool, error)

	// InsertClusterMeta inserta la fila pg_cluster_meta.
	InsertClusterMeta(ctx context.Context, m ClusterMeta) error

	// MetaNodeIDs retorna los server_id ya presentes en pg_cluster_meta_nodes.
	MetaNodeIDs(ctx context.Context) (map[int64]bool, error)

	// InsertMetaNode inserta una fila en pg_cluster_meta_nodes.
	InsertMetaNode(ctx context.Context, clusterID int64, n MetaNode, isMaster bool) error

	// SetClusterMaster actualiza cluster_master_id en pg_cluster_meta.
	SetClusterMaster(ctx context.Context, clusterName string, masterID int64) error

	// EnsureDDLLogProgress crea la fila de pg_ddl_log_progress de la base actual.
	EnsureDDLLogProgress(ctx context.Context) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
