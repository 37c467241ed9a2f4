// Package types define tipos de dominio compartidos entre paquetes.
package types

import "strings"

// HAMode es la estrategia de replicación de los replica-sets de un cluster.
// El valor persistido en db_clusters.ha_mode es la forma corta.
type HAMode string

const (
	// HAModeUnreplicated: sin replicación, cada shard tiene un solo nodo.
	HAModeUnreplicated HAMode = "no_rep"
	// HAModeReplicated: group replication (MGR), el primario se elige por consenso.
	HAModeReplicated HAMode = "mgr"
	// HAModeRowBased: replicación asíncrona basada en filas (binlog RBR).
	HAModeRowBased HAMode = "rbr"
)

// ParseHAMode acepta tanto la forma corta ("mgr") como la larga ("replicated").
func ParseHAMode(s string) (HAMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mgr", "replicated":
		return HAModeReplicated, true
	case "no_rep", "unreplicated":
		return HAModeUnreplicated, true
	case "rbr", "row-based-replication":
		return HAModeRowBased, true
	}
	return "", false
}

// IsValid retorna true si el modo es conocido.
func (m HAMode) IsValid() bool {
	switch m {
	case HAModeUnreplicated, HAModeReplicated, HAModeRowBased:
		return true
	}
	return false
}

// Replicates indica si los miembros de un shard deben verificarse en vivo
// para descubrir el primario.
func (m HAMode) Replicates() bool {
	return m == HAModeReplicated || m == HAModeRowBased
}

// CatalogCode es el entero que guarda pg_cluster_meta.ha_mode en los nodos de cómputo.
func (m HAMode) CatalogCode() int {
	switch m {
	case HAModeUnreplicated:
		return 0
	case HAModeReplicated:
		return 1
	case HAModeRowBased:
		return 2
	}
	return -1
}

func (m HAMode) String() string { return string(m) }
