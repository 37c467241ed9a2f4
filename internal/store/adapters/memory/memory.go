// Package memory implementa los tres contratos de repository en memoria.
//
// Un World representa un despliegue completo: metadata store, miembros de
// shard y catálogos de nodos de cómputo. Lo usan los tests del protocolo y
// el modo --dry-run del CLI. Permite inyectar fallas por nodo.
package memory

import (
	"context"
	"sync"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/store"
)

func init() {
	store.RegisterAdapter(&memoryAdapter{})
}

type memoryAdapter struct{}

func (a *memoryAdapter) Name() string { return "memory" }

// Connect crea un World vacío por conexión.
func (a *memoryAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	return &Connection{world: NewWorld()}, nil
}

// Connection expone el World detrás de store.AdapterConnection.
type Connection struct {
	world *World
}

func (c *Connection) Name() string                       { return "memory" }
func (c *Connection) Ping(ctx context.Context) error     { return nil }
func (c *Connection) Close() error                       { return nil }
func (c *Connection) MetaStore() repository.MetaStore    { return c.world.Meta }
func (c *Connection) Members() repository.MemberClient   { return c.world.Members }
func (c *Connection) Catalogs() repository.CatalogDialer { return c.world.Catalogs }

// World retorna el estado simulado.
func (c *Connection) World() *World { return c.world }

// World agrupa el estado simulado de un despliegue.
type World struct {
	Meta     *MetaStore
	Members  *Members
	Catalogs *Catalogs
}

func NewWorld() *World {
	return &World{
		Meta:     NewMetaStore(),
		Members:  NewMembers(),
		Catalogs: NewCatalogs(),
	}
}

// failures cuenta fallas inyectadas por clave: n > 0 falla n veces, n < 0 siempre.
type failures[K comparable] struct {
	mu    sync.Mutex
	left  map[K]int
	err   map[K]error
	calls map[K]int
}

func newFailures[K comparable]() *failures[K] {
	return &failures[K]{left: map[K]int{}, err: map[K]error{}, calls: map[K]int{}}
}

func (f *failures[K]) set(k K, times int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left[k] = times
	f.err[k] = err
}

// hit registra una llamada y retorna el error inyectado, si corresponde.
func (f *failures[K]) hit(k K) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[k]++
	n, ok := f.left[k]
	if !ok || n == 0 {
		return nil
	}
	if n > 0 {
		f.left[k] = n - 1
	}
	return f.err[k]
}

func (f *failures[K]) count(k K) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[k]
}
