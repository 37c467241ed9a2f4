package memory

import (
	"context"
	"sync"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/domain/types"
)

var _ repository.MemberClient = (*Members)(nil)

// Members simula los miembros de los replica-sets. Cada miembro reporta el
// primario configurado con Report o SetReplicaSet.
type Members struct {
	mu        sync.Mutex
	reports   map[repository.Endpoint]repository.Endpoint
	databases map[repository.Endpoint]map[string]bool
	queries   map[repository.Endpoint]int

	failures *failures[repository.Endpoint]
}

func NewMembers() *Members {
	return &Members{
		reports:   map[repository.Endpoint]repository.Endpoint{},
		databases: map[repository.Endpoint]map[string]bool{},
		queries:   map[repository.Endpoint]int{},
		failures:  newFailures[repository.Endpoint](),
	}
}

func endpointOf(m repository.Member) repository.Endpoint {
	return repository.Endpoint{Host: m.Host, Port: m.Port}
}

// Report fija el primario que reporta el miembro en member.
func (c *Members) Report(member, primary repository.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[member] = primary
}

// SetReplicaSet hace que todos los miembros reporten al marcado como
// primario, o al primero si ninguno lo está.
func (c *Members) SetReplicaSet(members []repository.Member) {
	if len(members) == 0 {
		return
	}
	primary := endpointOf(members[0])
	for _, m := range members {
		if m.Primary {
			primary = endpointOf(m)
			break
		}
	}
	for _, m := range members {
		c.Report(endpointOf(m), primary)
	}
}

// Fail hace fallar times veces (negativo: siempre) las conexiones al miembro.
func (c *Members) Fail(member repository.Endpoint, times int, err error) {
	c.failures.set(member, times, err)
}

func (c *Members) ReportedPrimary(ctx context.Context, m repository.Member, mode types.HAMode) (repository.Endpoint, error) {
	ep := endpointOf(m)
	if err := c.failures.hit(ep); err != nil {
		return repository.Endpoint{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries[ep]++
	reported, ok := c.reports[ep]
	if !ok {
		return repository.Endpoint{}, repository.ErrNoPrimaryReported
	}
	return reported, nil
}

// Queries retorna cuántas veces se consultó al miembro.
func (c *Members) Queries(member repository.Endpoint) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries[member]
}

func (c *Members) EnsureDatabase(ctx context.Context, primary repository.Member, name string) error {
	ep := endpointOf(primary)
	if err := c.failures.hit(ep); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	dbs := c.databases[ep]
	if dbs == nil {
		dbs = map[string]bool{}
		c.databases[ep] = dbs
	}
	dbs[name] = true
	return nil
}

// HasDatabase indica si la base fue creada en el miembro.
func (c *Members) HasDatabase(member repository.Endpoint, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.databases[member][name]
}
