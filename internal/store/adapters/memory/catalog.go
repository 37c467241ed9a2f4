package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
)

// CatalogMetaNode es una fila de pg_cluster_meta_nodes.
type CatalogMetaNode struct {
	repository.MetaNode
	ClusterID int64
	IsMaster  bool
}

// CatalogState es el catálogo local de un nodo de cómputo.
type CatalogState struct {
	Shards         map[int64]repository.Shard
	ShardNodes     map[int64]repository.ShardNode
	ClusterMeta    *repository.ClusterMeta
	MetaNodes      map[int64]CatalogMetaNode
	DDLLogProgress bool
}

func newCatalogState() *CatalogState {
	return &CatalogState{
		Shards:     map[int64]repository.Shard{},
		ShardNodes: map[int64]repository.ShardNode{},
		MetaNodes:  map[int64]CatalogMetaNode{},
	}
}

func (s *CatalogState) clone() *CatalogState {
	c := &CatalogState{
		Shards:         cloneMap(s.Shards),
		ShardNodes:     cloneMap(s.ShardNodes),
		MetaNodes:      cloneMap(s.MetaNodes),
		DDLLogProgress: s.DDLLogProgress,
	}
	if s.ClusterMeta != nil {
		m := *s.ClusterMeta
		c.ClusterMeta = &m
	}
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// Dialer
// ─────────────────────────────────────────────────────────────────────────────

var _ repository.CatalogDialer = (*Catalogs)(nil)

// Catalogs simula los catálogos de todos los nodos de cómputo.
type Catalogs struct {
	mu    sync.Mutex
	nodes map[int64]*CatalogState

	dialFailures   *failures[int64]
	commitFailures *failures[int64]
}

func NewCatalogs() *Catalogs {
	return &Catalogs{
		nodes:          map[int64]*CatalogState{},
		dialFailures:   newFailures[int64](),
		commitFailures: newFailures[int64](),
	}
}

// FailDial hace fallar times veces (negativo: siempre) la conexión al nodo.
func (c *Catalogs) FailDial(nodeID int64, times int, err error) {
	c.dialFailures.set(nodeID, times, err)
}

// FailCommit hace fallar times veces (negativo: siempre) el commit en el nodo.
func (c *Catalogs) FailCommit(nodeID int64, times int, err error) {
	c.commitFailures.set(nodeID, times, err)
}

// Dials retorna cuántas conexiones se intentaron al nodo.
func (c *Catalogs) Dials(nodeID int64) int {
	return c.dialFailures.count(nodeID)
}

// State retorna una copia del catálogo del nodo; vacío si nunca se escribió.
func (c *Catalogs) State(nodeID int64) CatalogState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.nodes[nodeID]; ok {
		return *s.clone()
	}
	return *newCatalogState()
}

func (c *Catalogs) Dial(ctx context.Context, node repository.ComputeNode) (repository.CatalogSession, error) {
	if err := c.dialFailures.hit(node.ID); err != nil {
		return nil, err
	}
	return &catalogSession{catalogs: c, nodeID: node.ID}, nil
}

type catalogSession struct {
	catalogs *Catalogs
	nodeID   int64
	closed   bool
}

func (s *catalogSession) Begin(ctx context.Context) (repository.CatalogTx, error) {
	if s.closed {
		return nil, fmt.Errorf("memory: session to node %d is closed", s.nodeID)
	}
	c := s.catalogs
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.nodes[s.nodeID]
	if !ok {
		st = newCatalogState()
	}
	return &catalogTx{catalogs: c, nodeID: s.nodeID, state: st.clone()}, nil
}

func (s *catalogSession) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Tx
// ─────────────────────────────────────────────────────────────────────────────

var _ repository.CatalogTx = (*catalogTx)(nil)

type catalogTx struct {
	catalogs *Catalogs
	nodeID   int64
	state    *CatalogState
	done     bool
}

func (t *catalogTx) ShardIDs(ctx context.Context) (map[int64]bool, error) {
	out := make(map[int64]bool, len(t.state.Shards))
	for id := range t.state.Shards {
		out[id] = true
	}
	return out, nil
}

func (t *catalogTx) ShardNodeIDs(ctx context.Context) (map[int64]int64, error) {
	out := make(map[int64]int64, len(t.state.ShardNodes))
	for id, n := range t.state.ShardNodes {
		out[id] = n.ShardID
	}
	return out, nil
}

func (t *catalogTx) InsertShard(ctx context.Context, s repository.Shard) error {
	if _, ok := t.state.Shards[s.ID]; ok {
		return fmt.Errorf("%w: pg_shard %d", repository.ErrConflict, s.ID)
	}
	s.Nodes = nil
	t.state.Shards[s.ID] = s
	return nil
}

func (t *catalogTx) InsertShardNode(ctx context.Context, n repository.ShardNode) error {
	if _, ok := t.state.ShardNodes[n.ID]; ok {
		return fmt.Errorf("%w: pg_shard_node %d", repository.ErrConflict, n.ID)
	}
	t.state.ShardNodes[n.ID] = n
	return nil
}

func (t *catalogTx) UpdateShard(ctx context.Context, shardID, masterNodeID int64, numNodes int) error {
	s, ok := t.state.Shards[shardID]
	if !ok {
		return repository.ErrNotFound
	}
	s.MasterNodeID = masterNodeID
	s.NumNodes = numNodes
	t.state.Shards[shardID] = s
	return nil
}

func (t *catalogTx) HasClusterMeta(ctx context.Context, compNodeID int64) (bool, error) {
	return t.state.ClusterMeta != nil && t.state.ClusterMeta.CompNodeID == compNodeID, nil
}

func (t *catalogTx) InsertClusterMeta(ctx context.Context, m repository.ClusterMeta) error {
	if t.state.ClusterMeta != nil {
		return fmt.Errorf("%w: pg_cluster_meta", repository.ErrConflict)
	}
	t.state.ClusterMeta = &m
	return nil
}

func (t *catalogTx) MetaNodeIDs(ctx context.Context) (map[int64]bool, error) {
	out := make(map[int64]bool, len(t.state.MetaNodes))
	for id := range t.state.MetaNodes {
		out[id] = true
	}
	return out, nil
}

func (t *catalogTx) InsertMetaNode(ctx context.Context, clusterID int64, n repository.MetaNode, isMaster bool) error {
	if _, ok := t.state.MetaNodes[n.ID]; ok {
		return fmt.Errorf("%w: pg_cluster_meta_nodes %d", repository.ErrConflict, n.ID)
	}
	t.state.MetaNodes[n.ID] = CatalogMetaNode{MetaNode: n, ClusterID: clusterID, IsMaster: isMaster}
	return nil
}

func (t *catalogTx) SetClusterMaster(ctx context.Context, clusterName string, masterID int64) error {
	if m := t.state.ClusterMeta; m != nil && m.ClusterName == clusterName {
		m.ClusterMasterID = masterID
	}
	return nil
}

func (t *catalogTx) EnsureDDLLogProgress(ctx context.Context) error {
	t.state.DDLLogProgress = true
	return nil
}

func (t *catalogTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	if err := t.catalogs.commitFailures.hit(t.nodeID); err != nil {
		return err
	}
	t.catalogs.mu.Lock()
	defer t.catalogs.mu.Unlock()
	t.catalogs.nodes[t.nodeID] = t.state
	return nil
}

func (t *catalogTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return nil
}
