package topology

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
)

// Errores del protocolo. Cada tipo concreto de abajo matchea su sentinel con errors.Is.
var (
	// ErrTopologyInconsistency: los miembros de un replica-set no coinciden en el primario.
	// Fatal, sin escrituras, sin reintento.
	ErrTopologyInconsistency = errors.New("topology inconsistency")

	// ErrPrimaryNotFound: ningún miembro coincide con el primario acordado.
	ErrPrimaryNotFound = errors.New("primary not found")

	// ErrDuplicateRegistration: colisión de nombre/id en el metadata store.
	ErrDuplicateRegistration = errors.New("duplicate registration")

	// ErrConnectivity: fallo de red/auth. Sólo la propagación lo reintenta.
	ErrConnectivity = errors.New("connectivity error")

	// ErrPartialPropagation: uno o más nodos de cómputo agotaron los reintentos.
	ErrPartialPropagation = errors.New("partial propagation failure")

	// ErrPartitionCreation: el DDL de partición falló después del commit de metadata.
	ErrPartitionCreation = errors.New("commit log partition creation failure")

	// ErrInvalidRequest: el request no pasó la validación de borde.
	ErrInvalidRequest = errors.New("invalid request")
)

// ─── TopologyInconsistency ───

// Disagreement es un miembro que reportó un primario distinto al acordado.
type Disagreement struct {
	Member   string
	Reported repository.Endpoint
}

// TopologyInconsistencyError nombra a los miembros en conflicto y a ambos candidatos.
type TopologyInconsistencyError struct {
	ReplicaSet string
	// Agreed es el primario reportado por el primer miembro (AgreedBy).
	Agreed    repository.Endpoint
	AgreedBy  string
	Conflicts []Disagreement
}

func (e *TopologyInconsistencyError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s reports primary %s", c.Member, c.Reported))
	}
	return fmt.Sprintf("%s: replica-set %q: %s reports primary %s but %s",
		ErrTopologyInconsistency, e.ReplicaSet, e.AgreedBy, e.Agreed, strings.Join(parts, ", "))
}

func (e *TopologyInconsistencyError) Is(target error) bool { return target == ErrTopologyInconsistency }

// Candidates retorna los primarios distintos reportados, el acordado primero.
func (e *TopologyInconsistencyError) Candidates() []repository.Endpoint {
	out := []repository.Endpoint{e.Agreed}
	seen := map[repository.Endpoint]bool{e.Agreed: true}
	for _, c := range e.Conflicts {
		if !seen[c.Reported] {
			seen[c.Reported] = true
			out = append(out, c.Reported)
		}
	}
	return out
}

// ─── PrimaryNotFound ───

type PrimaryNotFoundError struct {
	ReplicaSet string
	// Primary es el endpoint acordado, vacío si no se verificó en vivo.
	Primary repository.Endpoint
	Members []string
}

func (e *PrimaryNotFoundError) Error() string {
	if e.Primary.Host == "" {
		return fmt.Sprintf("%s: replica-set %q: no member flagged as primary among [%s]",
			ErrPrimaryNotFound, e.ReplicaSet, strings.Join(e.Members, ", "))
	}
	return fmt.Sprintf("%s: replica-set %q: agreed primary %s is not one of [%s]",
		ErrPrimaryNotFound, e.ReplicaSet, e.Primary, strings.Join(e.Members, ", "))
}

func (e *PrimaryNotFoundError) Is(target error) bool { return target == ErrPrimaryNotFound }

// ─── DuplicateRegistration ───

type DuplicateRegistrationError struct {
	Kind    string // "cluster" | "shard" | "shard node" | "compute node"
	Name    string
	ID      int64
	Cluster string
}

func (e *DuplicateRegistrationError) Error() string {
	target := fmt.Sprintf("%s %q", e.Kind, e.Name)
	if e.ID != 0 {
		target = fmt.Sprintf("%s %q (id %d)", e.Kind, e.Name, e.ID)
	}
	if e.Cluster != "" {
		return fmt.Sprintf("%s: %s already exists in cluster %q", ErrDuplicateRegistration, target, e.Cluster)
	}
	return fmt.Sprintf("%s: %s already exists", ErrDuplicateRegistration, target)
}

func (e *DuplicateRegistrationError) Is(target error) bool { return target == ErrDuplicateRegistration }

// ─── Connectivity ───

type ConnectivityError struct {
	Addr string
	Op   string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrConnectivity, e.Op, e.Addr, e.Err)
}

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }
func (e *ConnectivityError) Unwrap() error        { return e.Err }

// ─── PartialPropagation ───

// PartialPropagationError lista, por id de nodo de cómputo, el último error.
// Nunca implica rollback de metadata ni de otros nodos.
type PartialPropagationError struct {
	Failures map[int64]error
}

func (e *PartialPropagationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPartialPropagation, formatNodeErrors(e.Failures))
}

func (e *PartialPropagationError) Is(target error) bool { return target == ErrPartialPropagation }

// ─── PartitionCreation ───

// PartitionCreationError: los nodos quedaron registrados sin partición de commit log.
// Se sana re-invocando el mismo registro.
type PartitionCreationError struct {
	Cluster  string
	Failures map[int64]error
}

func (e *PartitionCreationError) Error() string {
	return fmt.Sprintf("%s: cluster %q: %s (nodes are registered; re-run the registration to heal)",
		ErrPartitionCreation, e.Cluster, formatNodeErrors(e.Failures))
}

func (e *PartitionCreationError) Is(target error) bool { return target == ErrPartitionCreation }

func formatNodeErrors(m map[int64]error) string {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("node %d: %v", id, m[id]))
	}
	return strings.Join(parts, "; ")
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
