package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
)

// metaState es el contenido del metadata store. Las transacciones trabajan
// sobre una copia y la publican en Commit.
type metaState struct {
	clusters   map[int64]repository.Cluster
	shards     map[int64]repository.Shard // sin Nodes; se arman al leer
	shardNodes map[int64]repository.ShardNode
	compNodes  map[int64]repository.ComputeNode
	seq        map[int64]bool
	metaNodes  map[int64]repository.MetaNode

	nextCluster, nextShard, nextShardNode, nextMetaNode int64
}

func newMetaState() *metaState {
	return &metaState{
		clusters:   map[int64]repository.Cluster{},
		shards:     map[int64]repository.Shard{},
		shardNodes: map[int64]repository.ShardNode{},
		compNodes:  map[int64]repository.ComputeNode{},
		seq:        map[int64]bool{},
		metaNodes:  map[int64]repository.MetaNode{},
	}
}

func (s *metaState) clone() *metaState {
	c := *s
	c.clusters = cloneMap(s.clusters)
	c.shards = cloneMap(s.shards)
	c.shardNodes = cloneMap(s.shardNodes)
	c.compNodes = cloneMap(s.compNodes)
	c.seq = cloneMap(s.seq)
	c.metaNodes = cloneMap(s.metaNodes)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *metaState) nextSeq() int64 {
	var max int64
	for id := range s.seq {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// ─────────────────────────────────────────────────────────────────────────────
// MetaStore
// ─────────────────────────────────────────────────────────────────────────────

var _ repository.MetaStore = (*MetaStore)(nil)

// MetaStore es el metadata store en memoria.
type MetaStore struct {
	mu    sync.Mutex
	state *metaState

	// DDL: tablas de log y particiones por cluster.
	logTables  map[string]bool
	partitions map[string]map[int64]bool

	partitionFailures *failures[int64]
}

func NewMetaStore() *MetaStore {
	return &MetaStore{
		state:             newMetaState(),
		logTables:         map[string]bool{},
		partitions:        map[string]map[int64]bool{},
		partitionFailures: newFailures[int64](),
	}
}

// FailPartition hace fallar times veces (negativo: siempre) la partición del nodo.
func (s *MetaStore) FailPartition(compNodeID int64, times int, err error) {
	s.partitionFailures.set(compNodeID, times, err)
}

func (s *MetaStore) Begin(ctx context.Context) (repository.MetaTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &metaTx{store: s, state: s.state.clone()}, nil
}

func (s *MetaStore) ClusterByName(ctx context.Context, name string) (*repository.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.state.clusters {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *MetaStore) ListComputeNodes(ctx context.Context, clusterID int64) ([]repository.ComputeNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.ComputeNode
	for _, id := range sortedKeys(s.state.compNodes) {
		if n := s.state.compNodes[id]; n.ClusterID == clusterID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *MetaStore) ListShards(ctx context.Context, clusterID int64) ([]repository.Shard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.Shard
	for _, id := range sortedKeys(s.state.shards) {
		sh := s.state.shards[id]
		if sh.ClusterID != clusterID {
			continue
		}
		sh.Nodes = nil
		for _, nid := range sortedKeys(s.state.shardNodes) {
			if n := s.state.shardNodes[nid]; n.ShardID == sh.ID {
				sh.Nodes = append(sh.Nodes, n)
			}
		}
		out = append(out, sh)
	}
	return out, nil
}

func (s *MetaStore) ListMetaNodes(ctx context.Context) ([]repository.MetaNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.MetaNode
	for _, id := range sortedKeys(s.state.metaNodes) {
		out = append(out, s.state.metaNodes[id])
	}
	return out, nil
}

func (s *MetaStore) CreateClusterLogTables(ctx context.Context, clusterName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logTables[repository.DDLLogTableName(clusterName)] = true
	s.logTables[repository.CommitLogTableName(clusterName)] = true
	return nil
}

// HasTable indica si la tabla fue creada.
func (s *MetaStore) HasTable(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logTables[name]
}

func (s *MetaStore) AddCommitLogPartition(ctx context.Context, clusterName string, compNodeID int64) error {
	if err := s.partitionFailures.hit(compNodeID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	table := repository.CommitLogTableName(clusterName)
	if !s.logTables[table] {
		return fmt.Errorf("table %s doesn't exist", table)
	}
	parts := s.partitions[clusterName]
	if parts == nil {
		parts = map[int64]bool{}
		s.partitions[clusterName] = parts
	}
	if parts[compNodeID] {
		return fmt.Errorf("%w: partition %s", repository.ErrAlreadyExists, repository.CommitLogPartitionName(compNodeID))
	}
	parts[compNodeID] = true
	return nil
}

// HasPartition indica si el commit log del cluster tiene la partición del nodo.
func (s *MetaStore) HasPartition(clusterName string, compNodeID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partitions[clusterName][compNodeID]
}

func (s *MetaStore) ReserveComputeNodeID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.state.nextSeq()
	s.state.seq[id] = true
	return id, nil
}

// SeqReserved indica si el id está en comp_nodes_id_seq.
func (s *MetaStore) SeqReserved(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.seq[id]
}

// ShardByName retorna el shard con sus nodos.
func (s *MetaStore) ShardByName(clusterID int64, name string) (repository.Shard, bool) {
	shards, _ := s.ListShards(context.Background(), clusterID)
	for _, sh := range shards {
		if sh.Name == name {
			return sh, true
		}
	}
	return repository.Shard{}, false
}

func (s *MetaStore) Close() error { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// MetaTx
// ─────────────────────────────────────────────────────────────────────────────

var _ repository.MetaTx = (*metaTx)(nil)

var errTxDone = errors.New("memory: transaction already finished")

type metaTx struct {
	store *MetaStore
	state *metaState
	done  bool
}

func (t *metaTx) InsertCluster(ctx context.Context, c repository.Cluster) (int64, error) {
	for _, existing := range t.state.clusters {
		if existing.Name == c.Name {
			return 0, fmt.Errorf("%w: cluster %s", repository.ErrConflict, c.Name)
		}
	}
	t.state.nextCluster++
	c.ID = t.state.nextCluster
	t.state.clusters[c.ID] = c
	return c.ID, nil
}

func (t *metaTx) ClusterExists(ctx context.Context, name string) (bool, error) {
	for _, c := range t.state.clusters {
		if c.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (t *metaTx) ShardExists(ctx context.Context, clusterID int64, name string) (bool, error) {
	for _, s := range t.state.shards {
		if s.ClusterID == clusterID && s.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (t *metaTx) InsertShard(ctx context.Context, s repository.Shard) (int64, error) {
	if ok, _ := t.ShardExists(ctx, s.ClusterID, s.Name); ok {
		return 0, fmt.Errorf("%w: shard %s", repository.ErrConflict, s.Name)
	}
	t.state.nextShard++
	s.ID = t.state.nextShard
	s.NumNodes = 0
	s.Nodes = nil
	t.state.shards[s.ID] = s
	return s.ID, nil
}

func (t *metaTx) InsertShardNode(ctx context.Context, n repository.ShardNode) (int64, error) {
	for _, existing := range t.state.shardNodes {
		if existing.Host == n.Host && existing.Port == n.Port {
			return 0, fmt.Errorf("%w: shard node %s:%d", repository.ErrConflict, n.Host, n.Port)
		}
	}
	t.state.nextShardNode++
	n.ID = t.state.nextShardNode
	t.state.shardNodes[n.ID] = n
	return n.ID, nil
}

func (t *metaTx) SetShardMaster(ctx context.Context, shardID, nodeID int64) error {
	s, ok := t.state.shards[shardID]
	if !ok {
		return repository.ErrNotFound
	}
	s.MasterNodeID = nodeID
	t.state.shards[shardID] = s
	return nil
}

func (t *metaTx) SetShardNumNodes(ctx context.Context, shardID int64, n int) error {
	s, ok := t.state.shards[shardID]
	if !ok {
		return repository.ErrNotFound
	}
	s.NumNodes = n
	t.state.shards[shardID] = s
	return nil
}

func (t *metaTx) FindComputeNode(ctx context.Context, clusterID, id int64, name string) (*repository.ComputeNode, error) {
	for _, key := range sortedKeys(t.state.compNodes) {
		n := t.state.compNodes[key]
		if (id != 0 && n.ID == id) || (n.ClusterID == clusterID && n.Name == name) {
			return &n, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *metaTx) InsertComputeNode(ctx context.Context, n repository.ComputeNode) error {
	if n.ID == 0 {
		return fmt.Errorf("%w: compute node without id", repository.ErrInvalidInput)
	}
	if _, ok := t.state.compNodes[n.ID]; ok {
		return fmt.Errorf("%w: compute node %d", repository.ErrConflict, n.ID)
	}
	t.state.compNodes[n.ID] = n
	return nil
}

func (t *metaTx) NextComputeNodeID(ctx context.Context) (int64, error) {
	id := t.state.nextSeq()
	t.state.seq[id] = true
	return id, nil
}

func (t *metaTx) ReserveComputeNodeID(ctx context.Context, id int64) error {
	if t.state.seq[id] {
		return fmt.Errorf("%w: sequence id %d", repository.ErrConflict, id)
	}
	t.state.seq[id] = true
	return nil
}

func (t *metaTx) InsertMetaNode(ctx context.Context, n repository.MetaNode) (bool, error) {
	for _, existing := range t.state.metaNodes {
		if existing.Host == n.Host && existing.Port == n.Port {
			return false, nil
		}
	}
	t.state.nextMetaNode++
	n.ID = t.state.nextMetaNode
	t.state.metaNodes[n.ID] = n
	return true, nil
}

func (t *metaTx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.state = t.state
	return nil
}

func (t *metaTx) Rollback() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	return nil
}
