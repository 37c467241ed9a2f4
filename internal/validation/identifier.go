package validation

import "regexp"

// Cluster name rules:
// - Se concatena en nombres de tabla (ddl_ops_log_<name>, commit_log_<name>)
//   y no puede ir como parámetro preparado en DDL: sólo [A-Za-z0-9_].
// - Empieza con letra.
// - Length 1..48 (el nombre de tabla resultante queda bajo los 64 de MySQL).
var clusterNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

// Shard / computing node name rules:
// - Start with [A-Za-z0-9].
// - Middle chars may include [A-Za-z0-9_.-].
// - Length 1..64.
// - No whitespace, quotes or semicolons.
var nodeNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\.-]{0,63}$`)

// ValidClusterName returns true if the name can be spliced into a table name.
func ValidClusterName(name string) bool {
	return clusterNameRe.MatchString(name)
}

// ValidNodeName returns true for acceptable shard and computing node names.
func ValidNodeName(name string) bool {
	return nodeNameRe.MatchString(name)
}

// ValidPort returns true for a TCP port in 1..65535.
func ValidPort(p int) bool {
	return p > 0 && p <= 65535
}
