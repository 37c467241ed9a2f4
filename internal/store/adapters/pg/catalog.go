package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
)

// ─── Dialer ───

var _ repository.CatalogDialer = (*catalogDialer)(nil)

type catalogDialer struct {
	database string
	timeout  time.Duration
}

// sessionSettings se aplican a cada conexión nueva. skip_tidsync evita que el
// nodo sincronice transacciones globales mientras se escribe su catálogo.
var sessionSettings = []string{
	"SET skip_tidsync = true",
}

func applySessionSettings(ctx context.Context, conn *pgx.Conn) error {
	for _, stmt := range sessionSettings {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pg: %s: %w", stmt, err)
		}
	}
	return nil
}

// poolConfig arma la config sin pasar por un connection string, así el
// password no necesita escaparse.
func (d *catalogDialer) poolConfig(node repository.ComputeNode) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("pg: parse config: %w", err)
	}
	cfg.ConnConfig.Host = node.Host
	cfg.ConnConfig.Port = uint16(node.Port)
	cfg.ConnConfig.User = node.User
	cfg.ConnConfig.Password = node.Password
	cfg.ConnConfig.Database = d.database
	cfg.ConnConfig.ConnectTimeout = d.timeout
	cfg.MaxConns = 1
	cfg.AfterConnect = applySessionSettings
	return cfg, nil
}

func (d *catalogDialer) Dial(ctx context.Context, node repository.ComputeNode) (repository.CatalogSession, error) {
	cfg, err := d.poolConfig(node)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping %s: %w", node.Addr(), err)
	}
	return &catalogSession{pool: pool}, nil
}

// ─── Session ───

type catalogSession struct {
	pool *pgxpool.Pool
}

func (s *catalogSession) Begin(ctx context.Context) (repository.CatalogTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &catalogTx{tx: tx}, nil
}

func (s *catalogSession) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// ─── Tx ───

var _ repository.CatalogTx = (*catalogTx)(nil)

type catalogTx struct {
	tx pgx.Tx
}

func (t *catalogTx) ShardIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := t.tx.Query(ctx, `SELECT id FROM pg_shard`)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (t *catalogTx) ShardNodeIDs(ctx context.Context) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, shard_id FROM pg_shard_node`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]int64{}
	for rows.Next() {
		var id, shardID int64
		if err := rows.Scan(&id, &shardID); err != nil {
			return nil, err
		}
		out[id] = shardID
	}
	return out, rows.Err()
}

func (t *catalogTx) InsertShard(ctx context.Context, s repository.Shard) error {
	const query = `
		INSERT INTO pg_shard (name, id, num_nodes, master_node_id, space_volumn, num_tablets, db_cluster_id, when_created)
		VALUES ($1, $2, $3, $4, 0, 0, $5, now())
	`
	_, err := t.tx.Exec(ctx, query, s.Name, s.ID, s.NumNodes, s.MasterNodeID, s.ClusterID)
	return err
}

func (t *catalogTx) InsertShardNode(ctx context.Context, n repository.ShardNode) error {
	const query = `
		INSERT INTO pg_shard_node (id, port, shard_id, svr_node_id, ro_weight, ip, user_name, passwd, when_created)
		VALUES ($1, $2, $3, 1, 0, $4, $5, $6, now())
	`
	_, err := t.tx.Exec(ctx, query, n.ID, n.Port, n.ShardID, n.Host, n.User, n.Password)
	return err
}

func (t *catalogTx) UpdateShard(ctx context.Context, shardID, masterNodeID int64, numNodes int) error {
	const query = `UPDATE pg_shard SET master_node_id = $1, num_nodes = $2 WHERE id = $3`
	_, err := t.tx.Exec(ctx, query, masterNodeID, numNodes, shardID)
	return err
}

func (t *catalogTx) HasClusterMeta(ctx context.Context, compNodeID int64) (bool, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `SELECT count(*) FROM pg_cluster_meta WHERE comp_node_id = $1`, compNodeID).Scan(&n)
	return n > 0, err
}

func (t *catalogTx) InsertClusterMeta(ctx context.Context, m repository.ClusterMeta) error {
	const query = `
		INSERT INTO pg_cluster_meta (comp_node_id, cluster_id, cluster_master_id, ha_mode, cluster_name, comp_node_name)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.tx.Exec(ctx, query,
		m.CompNodeID, m.ClusterID, m.ClusterMasterID, m.HAMode.CatalogCode(), m.ClusterName, m.CompNodeName)
	return err
}

func (t *catalogTx) MetaNodeIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := t.tx.Query(ctx, `SELECT server_id FROM pg_cluster_meta_nodes`)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (t *catalogTx) InsertMetaNode(ctx context.Context, clusterID int64, n repository.MetaNode, isMaster bool) error {
	const query = `
		INSERT INTO pg_cluster_meta_nodes (server_id, cluster_id, is_master, port, user_name, hostaddr, passwd)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.tx.Exec(ctx, query, n.ID, clusterID, isMaster, n.Port, n.User, n.Host, n.Password)
	return err
}

func (t *catalogTx) SetClusterMaster(ctx context.Context, clusterName string, masterID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE pg_cluster_meta SET cluster_master_id = $1 WHERE cluster_name = $2`, masterID, clusterName)
	return err
}

// EnsureDDLLogProgress crea la fila de la base actual si falta.
func (t *catalogTx) EnsureDDLLogProgress(ctx context.Context) error {
	const query = `
		INSERT INTO pg_ddl_log_progress (dbid, ddl_op_id, max_op_id_done_local)
		SELECT d.oid, 0, 0 FROM pg_database d
		WHERE d.datname = current_database()
		  AND NOT EXISTS (SELECT 1 FROM pg_ddl_log_progress p WHERE p.dbid = d.oid)
	`
	_, err := t.tx.Exec(ctx, query)
	return err
}

func (t *catalogTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *catalogTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
