package topology

import (
	"strings"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/domain/types"
	"github.com/dropDatabas3/shardmeta/internal/validation"
)

// ─── Specs (lo que llega de los archivos de configuración) ───

// MemberSpec describe un miembro de replica-set. Acepta "ip" como alias de "host"
// para poder leer los archivos de configuración históricos sin cambios.
type MemberSpec struct {
	Host      string `yaml:"host" json:"host"`
	IP        string `yaml:"ip,omitempty" json:"ip,omitempty"`
	Port      int    `yaml:"port" json:"port"`
	User      string `yaml:"user" json:"user"`
	Password  string `yaml:"password" json:"password"`
	IsPrimary bool   `yaml:"is_primary,omitempty" json:"is_primary,omitempty"`
}

// HostAddr retorna host, o ip si host está vacío.
func (m MemberSpec) HostAddr() string {
	if h := strings.TrimSpace(m.Host); h != "" {
		return h
	}
	return strings.TrimSpace(m.IP)
}

// Member convierte el spec en descriptor de dominio.
func (m MemberSpec) Member() repository.Member {
	return repository.Member{
		Host:     m.HostAddr(),
		Port:     m.Port,
		User:     m.User,
		Password: m.Password,
		Primary:  m.IsPrimary,
	}
}

func (m MemberSpec) validate(owner string, i int) error {
	if m.HostAddr() == "" {
		return invalidf("%s: member %d: host is required", owner, i)
	}
	if !validation.ValidPort(m.Port) {
		return invalidf("%s: member %d: port %d out of range", owner, i, m.Port)
	}
	if m.User == "" {
		return invalidf("%s: member %d: user is required", owner, i)
	}
	return nil
}

// ShardSpec es un shard a registrar con sus miembros en orden.
type ShardSpec struct {
	Name  string       `yaml:"shard_name" json:"shard_name"`
	Nodes []MemberSpec `yaml:"shard_nodes" json:"shard_nodes"`
}

// Members retorna los descriptores de dominio de los miembros.
func (s ShardSpec) Members() []repository.Member {
	out := make([]repository.Member, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		out = append(out, n.Member())
	}
	return out
}

func (s ShardSpec) validate() error {
	if !validation.ValidNodeName(s.Name) {
		return invalidf("shard name %q is not valid", s.Name)
	}
	if len(s.Nodes) == 0 {
		return invalidf("shard %q: shard_nodes must not be empty", s.Name)
	}
	seen := make(map[string]bool, len(s.Nodes))
	for i, n := range s.Nodes {
		if err := n.validate("shard "+s.Name, i); err != nil {
			return err
		}
		addr := n.Member().Addr()
		if seen[addr] {
			return invalidf("shard %q: member %s listed twice", s.Name, addr)
		}
		seen[addr] = true
	}
	return nil
}

// ComputeNodeSpec es un nodo de cómputo a registrar. ID 0 pide asignación automática.
type ComputeNodeSpec struct {
	ID       int64  `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Host     string `yaml:"host" json:"host"`
	IP       string `yaml:"ip,omitempty" json:"ip,omitempty"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	DataDir  string `yaml:"datadir,omitempty" json:"datadir,omitempty"`
}

// HostAddr retorna host, o ip si host está vacío.
func (c ComputeNodeSpec) HostAddr() string {
	if h := strings.TrimSpace(c.Host); h != "" {
		return h
	}
	return strings.TrimSpace(c.IP)
}

// Node convierte el spec en fila de dominio para el cluster dado.
func (c ComputeNodeSpec) Node(clusterID int64) repository.ComputeNode {
	return repository.ComputeNode{
		ID:        c.ID,
		Name:      c.Name,
		Host:      c.HostAddr(),
		Port:      c.Port,
		User:      c.User,
		Password:  c.Password,
		ClusterID: clusterID,
		DataDir:   c.DataDir,
	}
}

func (c ComputeNodeSpec) validate() error {
	if c.ID < 0 {
		return invalidf("compute node %q: id must be >= 0", c.Name)
	}
	if !validation.ValidNodeName(c.Name) {
		return invalidf("compute node name %q is not valid", c.Name)
	}
	if c.HostAddr() == "" {
		return invalidf("compute node %q: host is required", c.Name)
	}
	if !validation.ValidPort(c.Port) {
		return invalidf("compute node %q: port %d out of range", c.Name, c.Port)
	}
	if c.User == "" {
		return invalidf("compute node %q: user is required", c.Name)
	}
	return nil
}

// ClusterSpec es la identidad de un cluster nuevo.
type ClusterSpec struct {
	Name     string
	Owner    string
	Business string
	HAMode   types.HAMode
}

func (c ClusterSpec) validate() error {
	if !validation.ValidClusterName(c.Name) {
		return invalidf("cluster name %q must match [A-Za-z][A-Za-z0-9_]{0,47}", c.Name)
	}
	if !c.HAMode.IsValid() {
		return invalidf("cluster %q: unknown ha mode %q", c.Name, c.HAMode)
	}
	return nil
}

// ─── Requests ───

// RegisterShardsRequest registra shards nuevos en un cluster existente.
type RegisterShardsRequest struct {
	Cluster repository.Cluster
	Shards  []ShardSpec
	// Verify activa la verificación en vivo del primario; normalmente
	// Cluster.HAMode.Replicates().
	Verify bool
}

// Validate valida el request antes de cualquier llamada de red o escritura.
func (r RegisterShardsRequest) Validate() error {
	if r.Cluster.ID == 0 {
		return invalidf("cluster id is required")
	}
	if len(r.Shards) == 0 {
		return invalidf("no shards to register")
	}
	seen := make(map[string]bool, len(r.Shards))
	for _, s := range r.Shards {
		if err := s.validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return &DuplicateRegistrationError{Kind: "shard", Name: s.Name, Cluster: r.Cluster.Name}
		}
		seen[s.Name] = true
	}
	return nil
}

// RegisterComputeNodesRequest registra nodos de cómputo en un cluster existente.
type RegisterComputeNodesRequest struct {
	Cluster repository.Cluster
	Nodes   []ComputeNodeSpec
	// WriteSequence inserta también el id en comp_nodes_id_seq. Es false cuando
	// el nodo se auto-registra y ya reservó su id.
	WriteSequence bool
}

// Validate valida el request antes de cualquier llamada de red o escritura.
func (r RegisterComputeNodesRequest) Validate() error {
	if r.Cluster.ID == 0 || r.Cluster.Name == "" {
		return invalidf("cluster id and name are required")
	}
	if len(r.Nodes) == 0 {
		return invalidf("no compute nodes to register")
	}
	ids := make(map[int64]bool, len(r.Nodes))
	names := make(map[string]bool, len(r.Nodes))
	for _, n := range r.Nodes {
		if err := n.validate(); err != nil {
			return err
		}
		if n.ID != 0 && ids[n.ID] {
			return &DuplicateRegistrationError{Kind: "compute node", Name: n.Name, ID: n.ID, Cluster: r.Cluster.Name}
		}
		if names[n.Name] {
			return &DuplicateRegistrationError{Kind: "compute node", Name: n.Name, Cluster: r.Cluster.Name}
		}
		ids[n.ID] = true
		names[n.Name] = true
	}
	return nil
}

// CreateClusterRequest crea un cluster completo: fila, logs, nodos de cómputo y shards.
type CreateClusterRequest struct {
	Cluster      ClusterSpec
	ComputeNodes []ComputeNodeSpec
	Shards       []ShardSpec
}

// Validate valida el request completo antes del primer commit.
func (r CreateClusterRequest) Validate() error {
	if err := r.Cluster.validate(); err != nil {
		return err
	}
	// Se valida con un cluster ficticio: el id real aún no existe.
	placeholder := repository.Cluster{ID: -1, Name: r.Cluster.Name, HAMode: r.Cluster.HAMode}
	if len(r.ComputeNodes) > 0 {
		if err := (RegisterComputeNodesRequest{Cluster: placeholder, Nodes: r.ComputeNodes}).Validate(); err != nil {
			return err
		}
	}
	if len(r.Shards) > 0 {
		if err := (RegisterShardsRequest{Cluster: placeholder, Shards: r.Shards}).Validate(); err != nil {
			return err
		}
	}
	return nil
}
