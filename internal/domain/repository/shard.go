package repository

import (
	"net"
	"strconv"
)

// Role de un miembro dentro de su replica-set.
type Role string

const (
	RoleUnknown Role = ""
	RolePrimary Role = "primary"
	RoleReplica Role = "replica"
)

// Member describe un miembro de un replica-set tal como llega en la configuración.
type Member struct {
	Host     string
	Port     int
	User     string
	Password string
	// Primary es el flag declarado en el descriptor; sólo se confía en él
	// cuando la verificación en vivo está desactivada.
	Primary bool
	Role    Role
}

// Addr retorna host:port del miembro.
func (m Member) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// Endpoint es un host:port reportado por un miembro como primario.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Matches indica si el miembro está en este endpoint.
func (e Endpoint) Matches(m Member) bool {
	return e.Host == m.Host && e.Port == m.Port
}

// Shard representa una fila de shards junto con sus nodos.
type Shard struct {
	ID           int64
	Name         string
	ClusterID    int64
	MasterNodeID int64
	NumNodes     int
	Nodes        []ShardNode
}

// ShardNode representa una fila de shard_nodes.
type ShardNode struct {
	ID             int64
	Host           string
	Port           int
	User           string
	Password       string
	ShardID        int64
	ClusterID      int64
	MasterPriority int
}

// Member convierte el nodo en un descriptor de conexión.
func (n ShardNode) Member() Member {
	return Member{Host: n.Host, Port: n.Port, User: n.User, Password: n.Password}
}

// ComputeNode representa una fila de comp_nodes.
type ComputeNode struct {
	ID        int64
	Name      string
	Host      string
	Port      int
	User      string
	Password  string
	ClusterID int64
	DataDir   string
}

// Addr retorna host:port del nodo de cómputo.
func (c ComputeNode) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
