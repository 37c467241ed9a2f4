package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/domain/types"
)

// ─────────────────────────────────────────────────────────────────────────────
// MetaStore
// ─────────────────────────────────────────────────────────────────────────────

var _ repository.MetaStore = (*metaStore)(nil)

type metaStore struct {
	db *sql.DB
}

func newMetaStore(db *sql.DB) *metaStore {
	return &metaStore{db: db}
}

func (s *metaStore) Begin(ctx context.Context) (repository.MetaTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &metaTx{tx: tx}, nil
}

func (s *metaStore) ClusterByName(ctx context.Context, name string) (*repository.Cluster, error) {
	const query = `
		SELECT id, name, owner, business, ha_mode, ddl_log_tblname
		FROM db_clusters WHERE name = ?
	`
	var c repository.Cluster
	var mode string
	err := s.db.QueryRowContext(ctx, query, name).Scan(&c.ID, &c.Name, &c.Owner, &c.Business, &mode, &c.DDLLogTable)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.HAMode = types.HAMode(mode)
	c.CommitLogTable = repository.CommitLogTableName(c.Name)
	return &c, nil
}

func (s *metaStore) ListComputeNodes(ctx context.Context, clusterID int64) ([]repository.ComputeNode, error) {
	const query = `
		SELECT id, name, hostaddr, port, user_name, passwd, db_cluster_id
		FROM comp_nodes WHERE db_cluster_id = ? ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, clusterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.ComputeNode
	for rows.Next() {
		var n repository.ComputeNode
		if err := rows.Scan(&n.ID, &n.Name, &n.Host, &n.Port, &n.User, &n.Password, &n.ClusterID); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *metaStore) ListShards(ctx context.Context, clusterID int64) ([]repository.Shard, error) {
	const shardQuery = `
		SELECT id, name, master_node_id, num_nodes
		FROM shards WHERE db_cluster_id = ? ORDER BY id
	`
	const nodeQuery = `
		SELECT id, hostaddr, port, user_name, passwd, shard_id, master_priority
		FROM shard_nodes WHERE db_cluster_id = ? ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, shardQuery, clusterID)
	if err != nil {
		return nil, err
	}
	var shards []repository.Shard
	index := map[int64]int{}
	for rows.Next() {
		sh := repository.Shard{ClusterID: clusterID}
		if err := rows.Scan(&sh.ID, &sh.Name, &sh.MasterNodeID, &sh.NumNodes); err != nil {
			rows.Close()
			return nil, err
		}
		index[sh.ID] = len(shards)
		shards = append(shards, sh)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, nodeQuery, clusterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		n := repository.ShardNode{ClusterID: clusterID}
		if err := rows.Scan(&n.ID, &n.Host, &n.Port, &n.User, &n.Password, &n.ShardID, &n.MasterPriority); err != nil {
			return nil, err
		}
		if i, ok := index[n.ShardID]; ok {
			shards[i].Nodes = append(shards[i].Nodes, n)
		}
	}
	return shards, rows.Err()
}

func (s *metaStore) ListMetaNodes(ctx context.Context) ([]repository.MetaNode, error) {
	const query = `SELECT id, hostaddr, port, user_name, passwd FROM meta_db_nodes ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.MetaNode
	for rows.Next() {
		var n repository.MetaNode
		if err := rows.Scan(&n.ID, &n.Host, &n.Port, &n.User, &n.Password); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *metaStore) CreateClusterLogTables(ctx context.Context, clusterName string) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + quoteIdent(repository.DDLLogTableName(clusterName)) + " LIKE " + repository.DDLLogTemplateTable,
		"CREATE TABLE IF NOT EXISTS " + quoteIdent(repository.CommitLogTableName(clusterName)) + " LIKE " + repository.CommitLogTemplateTable,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (s *metaStore) AddCommitLogPartition(ctx context.Context, clusterName string, compNodeID int64) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD PARTITION (PARTITION %s VALUES IN (%d))",
		quoteIdent(repository.CommitLogTableName(clusterName)),
		repository.CommitLogPartitionName(compNodeID),
		compNodeID,
	)
	_, err := s.db.ExecContext(ctx, stmt)
	return mapError(err)
}

// ReserveComputeNodeID inserta una fila vacía (auto-increment, autocommit)
// y retorna el id generado.
func (s *metaStore) ReserveComputeNodeID(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO comp_nodes_id_seq VALUES ()")
	if err != nil {
		return 0, mapError(err)
	}
	return res.LastInsertId()
}

func (s *metaStore) Close() error {
	return s.db.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// MetaTx
// ─────────────────────────────────────────────────────────────────────────────

var _ repository.MetaTx = (*metaTx)(nil)

type metaTx struct {
	tx *sql.Tx
}

func (t *metaTx) insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return res.LastInsertId()
}

func (t *metaTx) exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	return mapError(err)
}

func (t *metaTx) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *metaTx) InsertCluster(ctx context.Context, c repository.Cluster) (int64, error) {
	const query = `
		INSERT INTO db_clusters (name, owner, ddl_log_tblname, business, ha_mode)
		VALUES (?, ?, ?, ?, ?)
	`
	return t.insert(ctx, query, c.Name, c.Owner, c.DDLLogTable, c.Business, c.HAMode.String())
}

func (t *metaTx) ClusterExists(ctx context.Context, name string) (bool, error) {
	return t.exists(ctx, `SELECT COUNT(*) FROM db_clusters WHERE name = ?`, name)
}

func (t *metaTx) ShardExists(ctx context.Context, clusterID int64, name string) (bool, error) {
	return t.exists(ctx, `SELECT COUNT(*) FROM shards WHERE db_cluster_id = ? AND name = ?`, clusterID, name)
}

func (t *metaTx) InsertShard(ctx context.Context, s repository.Shard) (int64, error) {
	const query = `
		INSERT INTO shards (name, when_created, num_nodes, db_cluster_id)
		VALUES (?, NOW(), 0, ?)
	`
	return t.insert(ctx, query, s.Name, s.ClusterID)
}

func (t *metaTx) InsertShardNode(ctx context.Context, n repository.ShardNode) (int64, error) {
	const query = `
		INSERT INTO shard_nodes (hostaddr, port, user_name, passwd, shard_id, db_cluster_id, svr_node_id, master_priority)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
	`
	return t.insert(ctx, query, n.Host, n.Port, n.User, n.Password, n.ShardID, n.ClusterID, n.MasterPriority)
}

func (t *metaTx) SetShardMaster(ctx context.Context, shardID, nodeID int64) error {
	return t.exec(ctx, `UPDATE shards SET master_node_id = ? WHERE id = ?`, nodeID, shardID)
}

func (t *metaTx) SetShardNumNodes(ctx context.Context, shardID int64, n int) error {
	return t.exec(ctx, `UPDATE shards SET num_nodes = ? WHERE id = ?`, n, shardID)
}

// FindComputeNode: los ids empiezan en 1, así que id 0 sólo busca por nombre.
func (t *metaTx) FindComputeNode(ctx context.Context, clusterID, id int64, name string) (*repository.ComputeNode, error) {
	const query = `
		SELECT id, name, hostaddr, port, user_name, passwd, db_cluster_id
		FROM comp_nodes
		WHERE id = ? OR (db_cluster_id = ? AND name = ?)
		ORDER BY id LIMIT 1
	`
	var n repository.ComputeNode
	err := t.tx.QueryRowContext(ctx, query, id, clusterID, name).Scan(
		&n.ID, &n.Name, &n.Host, &n.Port, &n.User, &n.Password, &n.ClusterID,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (t *metaTx) InsertComputeNode(ctx context.Context, n repository.ComputeNode) error {
	const query = `
		INSERT INTO comp_nodes (id, name, hostaddr, port, db_cluster_id, user_name, passwd)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	return t.exec(ctx, query, n.ID, n.Name, n.Host, n.Port, n.ClusterID, n.User, n.Password)
}

func (t *metaTx) NextComputeNodeID(ctx context.Context) (int64, error) {
	return t.insert(ctx, "INSERT INTO comp_nodes_id_seq VALUES ()")
}

func (t *metaTx) ReserveComputeNodeID(ctx context.Context, id int64) error {
	return t.exec(ctx, `INSERT INTO comp_nodes_id_seq (id) VALUES (?)`, id)
}

func (t *metaTx) InsertMetaNode(ctx context.Context, n repository.MetaNode) (bool, error) {
	found, err := t.exists(ctx, `SELECT COUNT(*) FROM meta_db_nodes WHERE hostaddr = ? AND port = ?`, n.Host, n.Port)
	if err != nil || found {
		return false, err
	}
	const query = `INSERT INTO meta_db_nodes (hostaddr, port, user_name, passwd) VALUES (?, ?, ?, ?)`
	if err := t.exec(ctx, query, n.Host, n.Port, n.User, n.Password); err != nil {
		return false, err
	}
	return true, nil
}

func (t *metaTx) Commit() error   { return t.tx.Commit() }
func (t *metaTx) Rollback() error { return t.tx.Rollback() }
