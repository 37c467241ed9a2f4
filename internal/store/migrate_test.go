package store

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrations "github.com/dropDatabas3/shardmeta/migrations/mysql"
)

func TestSplitStatements(t *testing.T) {
	script := `-- header comment
CREATE TABLE a (
    id INT
);

CREATE TABLE b (id INT) PARTITION BY LIST (id) (
    PARTITION p0 VALUES IN (0)
);
`
	stmts := SplitStatements(script)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.NotContains(t, stmts[0], ";")
	assert.Contains(t, stmts[1], "PARTITION p0 VALUES IN (0)")
}

func TestParseMigrationsOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"meta/0002_second.sql": {Data: []byte("SELECT 2;")},
		"meta/0001_first.sql":  {Data: []byte("SELECT 1;")},
		"meta/README.md":       {Data: []byte("ignored")},
	}
	migs, err := NewMigrator(fsys, "meta").ParseMigrations()
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, 1, migs[0].Version)
	assert.Equal(t, "first", migs[0].Name)
	assert.Equal(t, 2, migs[1].Version)
}

func TestEmbeddedMetaMigrationsParse(t *testing.T) {
	migs, err := NewMigrator(migrations.MetaFS, migrations.MetaDir).ParseMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migs)

	var all string
	for _, m := range migs {
		all += m.SQL
	}
	for _, table := range []string{"db_clusters", "shards", "shard_nodes", "comp_nodes", "comp_nodes_id_seq", "meta_db_nodes", "ddl_ops_log_template_table", "commit_log_template_table"} {
		assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}

func TestRunSkipsAppliedMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"meta/0001_first.sql":  {Data: []byte("CREATE TABLE a (id INT);")},
		"meta/0002_second.sql": {Data: []byte("CREATE TABLE b (id INT);\nCREATE TABLE c (id INT);")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS _migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM _migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id INT)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE c (id INT)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO _migrations (version, name) VALUES (?, ?)")).
		WithArgs(2, "second").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := NewMigrator(fsys, "meta").Run(context.Background(), db, "mysql")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Skipped)
	assert.Equal(t, []int{2}, res.Applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenAdapterUnknown(t *testing.T) {
	_, err := OpenAdapter(context.Background(), AdapterConfig{Name: "oracle"})
	assert.ErrorContains(t, err, `"oracle" not registered`)
}
