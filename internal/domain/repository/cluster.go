package repository

import (
	"fmt"

	"github.com/dropDatabas3/shardmeta/internal/domain/types"
)

// Nombres fijos de las tablas plantilla de las que se copian los logs por cluster.
const (
	DDLLogTemplateTable    = "ddl_ops_log_template_table"
	CommitLogTemplateTable = "commit_log_template_table"
)

// Cluster representa una fila de db_clusters.
type Cluster struct {
	ID             int64
	Name           string
	Owner          string
	Business       string
	HAMode         types.HAMode
	DDLLogTable    string
	CommitLogTable string
}

// DDLLogTableName deriva el nombre de la tabla de DDL log de un cluster.
// El formato lo leen los nodos de cómputo: no cambiarlo.
func DDLLogTableName(clusterName string) string {
	return "ddl_ops_log_" + clusterName
}

// CommitLogTableName deriva el nombre de la tabla de commit log de un cluster.
func CommitLogTableName(clusterName string) string {
	return "commit_log_" + clusterName
}

// CommitLogPartitionName es la partición LIST del commit log para un nodo de cómputo.
func CommitLogPartitionName(compNodeID int64) string {
	return fmt.Sprintf("p%d", compNodeID)
}

// MetaNode representa un nodo del cluster de metadata (meta_db_nodes).
type MetaNode struct {
	ID       int64
	Host     string
	Port     int
	User     string
	Password string
}

// ClusterMeta es la fila de identidad (pg_cluster_meta) en el catálogo de un nodo de cómputo.
type ClusterMeta struct {
	CompNodeID      int64
	CompNodeName    string
	ClusterID       int64
	ClusterName     string
	ClusterMasterID int64
	HAMode          types.HAMode
}
