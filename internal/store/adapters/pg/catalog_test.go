package pg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/store"
)

func TestAdapterExposesOnlyCatalogs(t *testing.T) {
	conn, err := store.OpenAdapter(context.Background(), store.AdapterConfig{Name: "postgres"})
	require.NoError(t, err)
	defer conn.Close()

	assert.NotNil(t, conn.Catalogs())
	assert.Nil(t, conn.MetaStore())
	assert.Nil(t, conn.Members())
}

func TestPoolConfigTargetsNode(t *testing.T) {
	d := &catalogDialer{database: "postgres", timeout: 3 * time.Second}
	cfg, err := d.poolConfig(repository.ComputeNode{
		ID: 1, Host: "10.0.0.5", Port: 5401, User: "abc", Password: "p w@d",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.ConnConfig.Host)
	assert.Equal(t, uint16(5401), cfg.ConnConfig.Port)
	assert.Equal(t, "abc", cfg.ConnConfig.User)
	assert.Equal(t, "p w@d", cfg.ConnConfig.Password)
	assert.Equal(t, "postgres", cfg.ConnConfig.Database)
	assert.Equal(t, 3*time.Second, cfg.ConnConfig.ConnectTimeout)
	assert.Equal(t, int32(1), cfg.MaxConns)
	assert.NotNil(t, cfg.AfterConnect)
	assert.Contains(t, sessionSettings, "SET skip_tidsync = true")
}

func TestConnectDefaults(t *testing.T) {
	conn, err := (&postgresAdapter{}).Connect(context.Background(), store.AdapterConfig{})
	require.NoError(t, err)

	d := conn.Catalogs().(*catalogDialer)
	assert.Equal(t, defaultCatalogDatabase, d.database)
	assert.Equal(t, defaultConnectTimeout, d.timeout)
}
