package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/domain/types"
	"github.com/dropDatabas3/shardmeta/internal/store"
)

var _ repository.MemberClient = (*memberClient)(nil)

// memberClient consulta a cada miembro de un replica-set con una conexión
// propia que se cierra al terminar.
type memberClient struct {
	timeout       time.Duration
	checkVersion  bool
	versionMarker string

	// open abre la conexión a un miembro; reemplazable en tests.
	open func(ctx context.Context, m repository.Member, timeout time.Duration) (*sql.DB, error)
}

func newMemberClient(cfg store.AdapterConfig) *memberClient {
	return &memberClient{
		timeout:       cfg.ConnectTimeout,
		checkVersion:  cfg.CheckVersion,
		versionMarker: cfg.VersionMarker,
		open:          openMember,
	}
}

func openMember(ctx context.Context, m repository.Member, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("mysql", formatDSN(m.Host, m.Port, m.User, m.Password, "", timeout))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// ReportedPrimary retorna el primario que ve el miembro.
//
//   - mgr: el miembro ONLINE con rol PRIMARY del grupo.
//   - rbr: el master de su canal de replicación; sin canal y con
//     read_only = 0, el propio miembro.
func (c *memberClient) ReportedPrimary(ctx context.Context, m repository.Member, mode types.HAMode) (repository.Endpoint, error) {
	db, err := c.open(ctx, m, c.timeout)
	if err != nil {
		return repository.Endpoint{}, err
	}
	defer db.Close()

	if c.checkVersion {
		if err := c.verifyVersion(ctx, db, m); err != nil {
			return repository.Endpoint{}, err
		}
	}

	if mode == types.HAModeRowBased {
		return rbrPrimary(ctx, db, m)
	}
	return mgrPrimary(ctx, db)
}

func (c *memberClient) verifyVersion(ctx context.Context, db *sql.DB, m repository.Member) error {
	var version string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return err
	}
	if c.versionMarker != "" && !strings.Contains(version, c.versionMarker) {
		return fmt.Errorf("%w: %s runs %q, want %q", repository.ErrVersionMismatch, m.Addr(), version, c.versionMarker)
	}
	return nil
}

func mgrPrimary(ctx context.Context, db *sql.DB) (repository.Endpoint, error) {
	const query = `
		SELECT MEMBER_HOST, MEMBER_PORT
		FROM performance_schema.replication_group_members
		WHERE MEMBER_STATE = 'ONLINE' AND MEMBER_ROLE = 'PRIMARY' AND CHANNEL_NAME = 'group_replication_applier'
	`
	var ep repository.Endpoint
	err := db.QueryRowContext(ctx, query).Scan(&ep.Host, &ep.Port)
	if err == sql.ErrNoRows {
		return ep, repository.ErrNoPrimaryReported
	}
	return ep, err
}

func rbrPrimary(ctx context.Context, db *sql.DB, m repository.Member) (repository.Endpoint, error) {
	const query = `SELECT host, port FROM mysql.slave_master_info WHERE host <> '' ORDER BY channel_name LIMIT 1`
	var ep repository.Endpoint
	err := db.QueryRowContext(ctx, query).Scan(&ep.Host, &ep.Port)
	if err == nil {
		return ep, nil
	}
	if err != sql.ErrNoRows {
		return ep, err
	}

	var readOnly int
	if err := db.QueryRowContext(ctx, "SELECT @@read_only").Scan(&readOnly); err != nil {
		return repository.Endpoint{}, err
	}
	if readOnly != 0 {
		return repository.Endpoint{}, repository.ErrNoPrimaryReported
	}
	return repository.Endpoint{Host: m.Host, Port: m.Port}, nil
}

// EnsureDatabase crea la base en el primario; "ya existe" no es error.
func (c *memberClient) EnsureDatabase(ctx context.Context, primary repository.Member, name string) error {
	db, err := c.open(ctx, primary, c.timeout)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(name)+" CHARACTER SET utf8")
	if err = mapError(err); err != nil && !repository.IsAlreadyExists(err) {
		return err
	}
	return nil
}
