package mysql

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/domain/types"
	"github.com/dropDatabas3/shardmeta/internal/store"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestAdapterRegistered(t *testing.T) {
	a, ok := store.GetAdapter("mysql")
	require.True(t, ok)
	assert.Equal(t, "mysql", a.Name())
}

func TestConnectWithoutHostOnlyExposesMembers(t *testing.T) {
	conn, err := store.OpenAdapter(context.Background(), store.AdapterConfig{Name: "mysql"})
	require.NoError(t, err)
	defer conn.Close()

	assert.NotNil(t, conn.Members())
	assert.Nil(t, conn.MetaStore())
	assert.Nil(t, conn.Catalogs())
}

func TestFormatDSN(t *testing.T) {
	dsn := formatDSN("10.0.0.1", 3306, "pgx", "p@ss:word", "Kunlun_Metadata_DB", 5*time.Second)
	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:3306", cfg.Addr)
	assert.Equal(t, "pgx", cfg.User)
	assert.Equal(t, "p@ss:word", cfg.Passwd)
	assert.Equal(t, "Kunlun_Metadata_DB", cfg.DBName)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.True(t, repository.IsConflict(mapError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})))
	assert.True(t, repository.IsAlreadyExists(mapError(&mysql.MySQLError{Number: 1517, Message: "Duplicate partition name p3"})))
	assert.True(t, repository.IsAlreadyExists(mapError(&mysql.MySQLError{Number: 1050})))

	other := &mysql.MySQLError{Number: 1045, Message: "Access denied"}
	assert.Equal(t, error(other), mapError(other))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "`postgres_$$_public`", quoteIdent("postgres_$$_public"))
	assert.Equal(t, "`a``b`", quoteIdent("a`b"))
}

// ─── MetaStore ───

func TestInsertShardWithNodes(t *testing.T) {
	db, mock := newMock(t)
	s := newMetaStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT COUNT(*) FROM shards WHERE db_cluster_id = ? AND name = ?")).
		WithArgs(int64(7), "shard1").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec("INSERT INTO shards").
		WithArgs("shard1", int64(7)).
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("INSERT INTO shard_nodes").
		WithArgs("10.0.0.1", 4001, "pgx", "pgx_pwd", int64(3), int64(7), 0).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(q("UPDATE shards SET master_node_id = ? WHERE id = ?")).
		WithArgs(int64(11), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE shards SET num_nodes = ? WHERE id = ?")).
		WithArgs(1, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	exists, err := tx.ShardExists(ctx, 7, "shard1")
	require.NoError(t, err)
	assert.False(t, exists)

	shardID, err := tx.InsertShard(ctx, repository.Shard{Name: "shard1", ClusterID: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(3), shardID)

	nodeID, err := tx.InsertShardNode(ctx, repository.ShardNode{
		Host: "10.0.0.1", Port: 4001, User: "pgx", Password: "pgx_pwd", ShardID: shardID, ClusterID: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), nodeID)

	require.NoError(t, tx.SetShardMaster(ctx, shardID, nodeID))
	require.NoError(t, tx.SetShardNumNodes(ctx, shardID, 1))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertComputeNodeDuplicateMapsToConflict(t *testing.T) {
	db, mock := newMock(t)
	s := newMetaStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO comp_nodes_id_seq (id) VALUES (?)")).
		WithArgs(int64(1)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1' for key 'PRIMARY'"})
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	err = tx.ReserveComputeNodeID(ctx, 1)
	assert.True(t, repository.IsConflict(err))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindComputeNode(t *testing.T) {
	db, mock := newMock(t)
	s := newMetaStore(db)
	ctx := context.Background()

	cols := []string{"id", "name", "hostaddr", "port", "user_name", "passwd", "db_cluster_id"}
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, hostaddr, port, user_name, passwd, db_cluster_id").
		WithArgs(int64(2), int64(7), "comp2").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(2, "comp2", "10.0.0.9", 5432, "abc", "abc", 7))
	mock.ExpectQuery("SELECT id, name, hostaddr, port, user_name, passwd, db_cluster_id").
		WithArgs(int64(0), int64(7), "comp9").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	n, err := tx.FindComputeNode(ctx, 7, 2, "comp2")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", n.Host)
	assert.Equal(t, 5432, n.Port)

	_, err = tx.FindComputeNode(ctx, 7, 0, "comp9")
	assert.True(t, repository.IsNotFound(err))

	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddCommitLogPartition(t *testing.T) {
	db, mock := newMock(t)
	s := newMetaStore(db)
	ctx := context.Background()

	mock.ExpectExec(q("ALTER TABLE `commit_log_c1` ADD PARTITION (PARTITION p4 VALUES IN (4))")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("ALTER TABLE `commit_log_c1` ADD PARTITION (PARTITION p4 VALUES IN (4))")).
		WillReturnError(&mysql.MySQLError{Number: 1517, Message: "Duplicate partition name p4"})

	require.NoError(t, s.AddCommitLogPartition(ctx, "c1", 4))
	err := s.AddCommitLogPartition(ctx, "c1", 4)
	assert.True(t, repository.IsAlreadyExists(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateClusterLogTables(t *testing.T) {
	db, mock := newMock(t)
	s := newMetaStore(db)

	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS `ddl_ops_log_c1` LIKE ddl_ops_log_template_table")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS `commit_log_c1` LIKE commit_log_template_table")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.CreateClusterLogTables(context.Background(), "c1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveComputeNodeIDReturnsLastInsertID(t *testing.T) {
	db, mock := newMock(t)
	s := newMetaStore(db)

	mock.ExpectExec(q("INSERT INTO comp_nodes_id_seq VALUES ()")).WillReturnResult(sqlmock.NewResult(12, 1))

	id, err := s.ReserveComputeNodeID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListShardsGroupsNodes(t *testing.T) {
	db, mock := newMock(t)
	s := newMetaStore(db)

	mock.ExpectQuery("SELECT id, name, master_node_id, num_nodes").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "master_node_id", "num_nodes"}).
			AddRow(1, "shard1", 2, 2).
			AddRow(2, "shard2", 3, 1))
	mock.ExpectQuery("SELECT id, hostaddr, port, user_name, passwd, shard_id, master_priority").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "hostaddr", "port", "user_name", "passwd", "shard_id", "master_priority"}).
			AddRow(1, "h1", 4001, "u", "p", 1, 0).
			AddRow(2, "h2", 4001, "u", "p", 1, 0).
			AddRow(3, "h3", 4001, "u", "p", 2, 0))

	shards, err := s.ListShards(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, shards, 2)
	assert.Len(t, shards[0].Nodes, 2)
	assert.Len(t, shards[1].Nodes, 1)
	assert.Equal(t, int64(3), shards[1].MasterNodeID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMetaNodeSkipsExisting(t *testing.T) {
	db, mock := newMock(t)
	s := newMetaStore(db)
	ctx := context.Background()
	n := repository.MetaNode{Host: "127.0.0.1", Port: 6001, User: "pgx", Password: "pgx_pwd"}

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT COUNT(*) FROM meta_db_nodes WHERE hostaddr = ? AND port = ?")).
		WithArgs("127.0.0.1", 6001).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM meta_db_nodes WHERE hostaddr = ? AND port = ?")).
		WithArgs("127.0.0.2", 6001).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec("INSERT INTO meta_db_nodes").
		WithArgs("127.0.0.2", 6001, "pgx", "pgx_pwd").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	inserted, err := tx.InsertMetaNode(ctx, n)
	require.NoError(t, err)
	assert.False(t, inserted)

	n.Host = "127.0.0.2"
	inserted, err = tx.InsertMetaNode(ctx, n)
	require.NoError(t, err)
	assert.True(t, inserted)

	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

// ─── Members ───

func memberClientWith(db *sql.DB, checkVersion bool) *memberClient {
	c := newMemberClient(store.AdapterConfig{CheckVersion: checkVersion, VersionMarker: "kunlun-storage"})
	c.open = func(context.Context, repository.Member, time.Duration) (*sql.DB, error) { return db, nil }
	return c
}

func TestReportedPrimaryGroupReplication(t *testing.T) {
	db, mock := newMock(t)
	c := memberClientWith(db, true)

	mock.ExpectQuery(q("SELECT version()")).
		WillReturnRows(sqlmock.NewRows([]string{"version()"}).AddRow("8.0.26-kunlun-storage"))
	mock.ExpectQuery("FROM performance_schema.replication_group_members").
		WillReturnRows(sqlmock.NewRows([]string{"MEMBER_HOST", "MEMBER_PORT"}).AddRow("10.0.0.2", 4001))
	mock.ExpectClose()

	ep, err := c.ReportedPrimary(context.Background(), repository.Member{Host: "10.0.0.1", Port: 4001}, types.HAModeReplicated)
	require.NoError(t, err)
	assert.Equal(t, repository.Endpoint{Host: "10.0.0.2", Port: 4001}, ep)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportedPrimaryNoOnlinePrimary(t *testing.T) {
	db, mock := newMock(t)
	c := memberClientWith(db, false)

	mock.ExpectQuery("FROM performance_schema.replication_group_members").
		WillReturnRows(sqlmock.NewRows([]string{"MEMBER_HOST", "MEMBER_PORT"}))
	mock.ExpectClose()

	_, err := c.ReportedPrimary(context.Background(), repository.Member{Host: "10.0.0.1", Port: 4001}, types.HAModeReplicated)
	assert.ErrorIs(t, err, repository.ErrNoPrimaryReported)
}

func TestReportedPrimaryVersionMismatch(t *testing.T) {
	db, mock := newMock(t)
	c := memberClientWith(db, true)

	mock.ExpectQuery(q("SELECT version()")).
		WillReturnRows(sqlmock.NewRows([]string{"version()"}).AddRow("8.0.26"))
	mock.ExpectClose()

	_, err := c.ReportedPrimary(context.Background(), repository.Member{Host: "10.0.0.1", Port: 4001}, types.HAModeReplicated)
	assert.ErrorIs(t, err, repository.ErrVersionMismatch)
}

func TestReportedPrimaryRowBasedSourceReportsItself(t *testing.T) {
	db, mock := newMock(t)
	c := memberClientWith(db, false)

	mock.ExpectQuery("FROM mysql.slave_master_info").
		WillReturnRows(sqlmock.NewRows([]string{"host", "port"}))
	mock.ExpectQuery(q("SELECT @@read_only")).
		WillReturnRows(sqlmock.NewRows([]string{"@@read_only"}).AddRow(0))
	mock.ExpectClose()

	ep, err := c.ReportedPrimary(context.Background(), repository.Member{Host: "10.0.0.1", Port: 4001}, types.HAModeRowBased)
	require.NoError(t, err)
	assert.Equal(t, repository.Endpoint{Host: "10.0.0.1", Port: 4001}, ep)
}

func TestReportedPrimaryRowBasedReplica(t *testing.T) {
	db, mock := newMock(t)
	c := memberClientWith(db, false)

	mock.ExpectQuery("FROM mysql.slave_master_info").
		WillReturnRows(sqlmock.NewRows([]string{"host", "port"}).AddRow("10.0.0.1", 4001))
	mock.ExpectClose()

	ep, err := c.ReportedPrimary(context.Background(), repository.Member{Host: "10.0.0.2", Port: 4001}, types.HAModeRowBased)
	require.NoError(t, err)
	assert.Equal(t, repository.Endpoint{Host: "10.0.0.1", Port: 4001}, ep)
}

func TestEnsureDatabaseIsIdempotent(t *testing.T) {
	db, mock := newMock(t)
	c := memberClientWith(db, false)

	mock.ExpectExec(q("CREATE DATABASE IF NOT EXISTS `postgres_$$_public` CHARACTER SET utf8")).
		WillReturnError(&mysql.MySQLError{Number: 1007, Message: "database exists"})
	mock.ExpectClose()

	require.NoError(t, c.EnsureDatabase(context.Background(), repository.Member{Host: "10.0.0.1", Port: 4001}, "postgres_$$_public"))
	require.NoError(t, mock.ExpectationsWereMet())
}
