package repository

import "context"

// MetaStore define el acceso al metadata store central (fuente de verdad).
//
// Las mutaciones de db_clusters, shards, shard_nodes y comp_nodes sólo
// ocurren dentro de un MetaTx. Los métodos DDL no son transaccionales:
// el motor de storage no puede hacer rollback de DDL.
type MetaStore interface {
	// ─── Transacciones ───

	// Begin abre una transacción sobre el metadata store.
	Begin(ctx context.Context) (MetaTx, error)

	// ─── Lecturas ───

	// ClusterByName obtiene un cluster. Retorna ErrNotFound si no existe.
	ClusterByName(ctx context.Context, name string) (*Cluster, error)

	// ListComputeNodes lista los nodos de cómputo registrados en el cluster.
	ListComputeNodes(ctx context.Context, clusterID int64) ([]ComputeNode, error)

	// ListShards lista los shards del cluster con sus nodos, ordenados por id.
	ListShards(ctx context.Context, clusterID int64) ([]Shard, error)

	// ListMetaNodes lista los nodos del propio cluster de metadata.
	ListMetaNodes(ctx context.Context) ([]MetaNode, error)

	// ─── DDL (no transaccional) ───

	// CreateClusterLogTables crea ddl_ops_log_<name> y commit_log_<name>
	// copiando las tablas plantilla. Idempotente.
	CreateClusterLogTables(ctx context.Context, clusterName string) error

	// AddCommitLogPartition agrega la partición p<id> al commit log del cluster.
	// Retorna ErrAlreadyExists si la partición ya estaba.
	AddCommitLogPartition(ctx context.Context, clusterName string, compNodeID int64) error

	// ─── Secuencias ───

	// ReserveComputeNodeID reserva (y commitea) un id nuevo en comp_nodes_id_seq.
	ReserveComputeNodeID(ctx context.Context) (int64, error)

	// Close libera la conexión.
	Close() error
}

// MetaTx es una transacción abierta sobre el metadata store.
type MetaTx interface {
	// InsertCluster inserta una fila en db_clusters y retorna el id generado.
	InsertCluster(ctx context.Context, c Cluster) (int64, error)

	// ClusterExists verifica si ya existe un cluster con ese nombre.
	ClusterExists(ctx context.Context, name string) (bool, error)

	// ShardExists verifica si el cluster ya tiene un shard con ese nombre.
	ShardExists(ctx context.Context, clusterID int64, name string) (bool, error)

	// InsertShard inserta un shard con num_nodes=0 y retorna el id generado.
	InsertShard(ctx context.Context, s Shard) (int64, error)

	// InsertShardNode inserta un nodo de shard y retorna el id generado.
	InsertShardNode(ctx context.Context, n ShardNode) (int64, error)

	// SetShardMaster fija master_node_id del shard.
	SetShardMaster(ctx context.Context, shardID, nodeID int64) error

	// SetShardNumNodes fija num_nodes del shard.
	SetShardNumNodes(ctx context.Context, shardID int64, n int) error

	// FindComputeNode busca un nodo que colisione por id (global) o por nombre
	// (dentro del cluster). Retorna ErrNotFound si no hay colisión.
	FindComputeNode(ctx context.Context, clusterID, id int64, name string) (*ComputeNode, error)

	// InsertComputeNode inserta un nodo de cómputo con su id ya asignado.
	InsertComputeNode(ctx context.Context, n ComputeNode) error

	// NextComputeNodeID asigna un id desde la secuencia (auto-increment) dentro de la tx.
	NextComputeNodeID(ctx context.Context) (int64, error)

	// ReserveComputeNodeID inserta explícitamente el id en la tabla de secuencia.
	ReserveComputeNodeID(ctx context.Context, id int64) error

	// InsertMetaNode inserta un nodo del cluster de metadata si no existe.
	InsertMetaNode(ctx context.Context, n MetaNode) (bool, error)

	Commit() error
	Rollback() error
}
