// Package pg implementa el adapter PostgreSQL: el catálogo local de cada nodo
// de cómputo (pg_shard, pg_shard_node, pg_cluster_meta, ...).
// Usa pgxpool con una sola conexión por nodo.
package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/store"
)

func init() {
	store.RegisterAdapter(&postgresAdapter{})
}

const (
	defaultCatalogDatabase = "postgres"
	defaultConnectTimeout  = 10 * time.Second
)

type postgresAdapter struct{}

func (a *postgresAdapter) Name() string { return "postgres" }

// Connect no abre ninguna conexión: cada nodo de cómputo se disca en Dial.
func (a *postgresAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	d := &catalogDialer{
		database: cfg.CatalogDatabase,
		timeout:  cfg.ConnectTimeout,
	}
	if d.database == "" {
		d.database = defaultCatalogDatabase
	}
	if d.timeout <= 0 {
		d.timeout = defaultConnectTimeout
	}
	return &pgConnection{dialer: d}, nil
}

type pgConnection struct {
	dialer *catalogDialer
}

func (c *pgConnection) Name() string                       { return "postgres" }
func (c *pgConnection) Ping(ctx context.Context) error     { return nil }
func (c *pgConnection) Close() error                       { return nil }
func (c *pgConnection) MetaStore() repository.MetaStore    { return nil }
func (c *pgConnection) Members() repository.MemberClient   { return nil }
func (c *pgConnection) Catalogs() repository.CatalogDialer { return c.dialer }
