// Package store provee el registry de adaptadores de almacenamiento.
//
// Cada adapter se registra en init() y se abre por nombre desde la config.
// Una conexión expone los contratos de internal/domain/repository que su
// motor soporta; los demás retornan nil.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
)

// Adapter representa un adaptador capaz de abrir conexiones.
type Adapter interface {
	// Name retorna el nombre del adapter (ej: "mysql", "postgres", "memory").
	Name() string

	// Connect establece la conexión.
	Connect(ctx context.Context, cfg AdapterConfig) (AdapterConnection, error)
}

// AdapterConnection representa una conexión activa.
type AdapterConnection interface {
	// Name retorna el nombre del adapter.
	Name() string

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error

	// ─── Contratos (nil si no soportado) ───

	// MetaStore requiere AdapterConfig.Host (el primario del cluster de metadata).
	MetaStore() repository.MetaStore
	Members() repository.MemberClient
	Catalogs() repository.CatalogDialer
}

// MigratableConnection interfaz opcional para conexiones que pueden ejecutar migraciones.
type MigratableConnection interface {
	// MigrationExecutor retorna el ejecutor sobre el metadata store.
	MigrationExecutor() SQLExecutor
	// MigrationDriver retorna el dialecto para la tabla _migrations.
	MigrationDriver() string
}

// AdapterConfig configuración para conectar a un almacenamiento.
type AdapterConfig struct {
	// Name del adapter: "mysql", "postgres", "memory".
	Name string

	// Endpoint del metadata store. Vacío abre una conexión sin MetaStore.
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// CreateDatabase crea Database antes de conectar (bootstrap del metadata store).
	CreateDatabase bool

	ConnectTimeout time.Duration

	// Pool settings
	MaxOpenConns int
	MaxIdleConns int

	// ─── Miembros de shard ───

	// CheckVersion exige que version() contenga VersionMarker.
	CheckVersion  bool
	VersionMarker string

	// ─── Catálogos ───

	// CatalogDatabase es la base a la que se conecta en cada nodo de cómputo.
	CatalogDatabase string
}

// ─── Registry Global ───

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// RegisterAdapter registra un adapter en el registry global.
// Llamar en init() de cada adapter.
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("adapter: %q already registered", name))
	}
	adapters[name] = a
}

// GetAdapter obtiene un adapter por nombre.
func GetAdapter(name string) (Adapter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := adapters[name]
	return a, ok
}

// ListAdapters retorna los nombres de todos los adapters registrados, ordenados.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenAdapter abre una conexión usando el adapter especificado en la config.
func OpenAdapter(ctx context.Context, cfg AdapterConfig) (AdapterConnection, error) {
	a, ok := GetAdapter(cfg.Name)
	if !ok {
		return nil, fmt.Errorf("adapter: %q not registered (have %v)", cfg.Name, ListAdapters())
	}
	return a.Connect(ctx, cfg)
}
