// Package mysql implementa el adapter MySQL: metadata store y miembros de shard.
// Usa database/sql con github.com/go-sql-driver/mysql.
//
// Una conexión con Host abre un pool contra el primario del cluster de
// metadata y expone MetaStore. Sin Host sólo expone Members, que abre una
// conexión corta por cada consulta a un miembro.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/store"
)

func init() {
	store.RegisterAdapter(&mysqlAdapter{})
}

const defaultConnectTimeout = 10 * time.Second

// mysqlAdapter implementa store.Adapter para MySQL.
type mysqlAdapter struct{}

func (a *mysqlAdapter) Name() string { return "mysql" }

func (a *mysqlAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	conn := &mysqlConnection{members: newMemberClient(cfg)}
	if cfg.Host == "" {
		return conn, nil
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mysql: metadata database name is required")
	}

	if cfg.CreateDatabase {
		if err := createDatabase(ctx, cfg); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("mysql", formatDSN(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(4)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping %s: %w", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), err)
	}

	conn.db = db
	conn.meta = newMetaStore(db)
	return conn, nil
}

// mysqlConnection representa una conexión activa.
// Implementa store.AdapterConnection y store.MigratableConnection.
type mysqlConnection struct {
	db      *sql.DB // nil sin metadata store
	meta    *metaStore
	members *memberClient
}

func (c *mysqlConnection) Name() string { return "mysql" }

func (c *mysqlConnection) Ping(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.PingContext(ctx)
}

func (c *mysqlConnection) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *mysqlConnection) MetaStore() repository.MetaStore {
	if c.meta == nil {
		return nil
	}
	return c.meta
}

func (c *mysqlConnection) Members() repository.MemberClient { return c.members }

// Catalogs: los catálogos de nodos de cómputo viven en PostgreSQL.
func (c *mysqlConnection) Catalogs() repository.CatalogDialer { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// Migraciones
// ─────────────────────────────────────────────────────────────────────────────

// MigrationExecutor implementa store.MigratableConnection.
func (c *mysqlConnection) MigrationExecutor() store.SQLExecutor {
	if c.db == nil {
		return nil
	}
	return c.db
}

func (c *mysqlConnection) MigrationDriver() string { return "mysql" }

// ─────────────────────────────────────────────────────────────────────────────
// DSN
// ─────────────────────────────────────────────────────────────────────────────

// formatDSN arma el DSN con mysql.Config para no escapar a mano usuario ni password.
func formatDSN(host string, port int, user, password, database string, timeout time.Duration) string {
	c := mysql.NewConfig()
	c.User = user
	c.Passwd = password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	c.DBName = database
	c.Timeout = timeout
	c.ParseTime = true
	return c.FormatDSN()
}

func createDatabase(ctx context.Context, cfg store.AdapterConfig) error {
	db, err := sql.Open("mysql", formatDSN(cfg.Host, cfg.Port, cfg.User, cfg.Password, "", cfg.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("mysql: open: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(cfg.Database)+" CHARACTER SET utf8"); err != nil {
		return fmt.Errorf("mysql: create database %s: %w", cfg.Database, mapError(err))
	}
	return nil
}
