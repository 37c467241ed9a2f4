package topology

import (
	"context"
	"errors"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
	"github.com/dropDatabas3/shardmeta/internal/domain/types"
	"github.com/dropDatabas3/shardmeta/internal/observability/logger"
)

// ReplicaSet es un conjunto de miembros que replican los mismos datos:
// un shard o el propio cluster de metadata.
type ReplicaSet struct {
	Name    string
	Members []repository.Member
	// Mode decide cómo cada miembro reporta su primario.
	Mode types.HAMode
}

// Discoverer identifica el primario de un replica-set.
type Discoverer struct {
	members repository.MemberClient
}

func NewDiscoverer(mc repository.MemberClient) *Discoverer {
	return &Discoverer{members: mc}
}

// Discover retorna el miembro primario de rs con Role = RolePrimary.
//
// Sin verify se confía en el flag declarado (o en el único miembro si hay uno
// solo). Con verify se consulta a cada miembro y todos deben reportar el mismo
// primario. Nunca escribe ni reintenta.
func (d *Discoverer) Discover(ctx context.Context, rs ReplicaSet, verify bool) (repository.Member, error) {
	if len(rs.Members) == 0 {
		return repository.Member{}, invalidf("replica-set %q has no members", rs.Name)
	}
	if !verify {
		return declaredPrimary(rs)
	}
	if d == nil || d.members == nil {
		return repository.Member{}, errors.New("topology: discoverer without member client")
	}

	log := logger.From(ctx).With(logger.Component("discovery"), logger.Shard(rs.Name))

	var (
		agreed    repository.Endpoint
		agreedBy  string
		conflicts []Disagreement
	)
	for i, m := range rs.Members {
		reported, err := d.members.ReportedPrimary(ctx, m, rs.Mode)
		if err != nil {
			log.Warn("member query failed", logger.Addr(m.Addr()), logger.Err(err))
			return repository.Member{}, &ConnectivityError{Addr: m.Addr(), Op: "query primary", Err: err}
		}
		if i == 0 {
			agreed, agreedBy = reported, m.Addr()
			continue
		}
		if reported != agreed {
			conflicts = append(conflicts, Disagreement{Member: m.Addr(), Reported: reported})
		}
	}
	if len(conflicts) > 0 {
		err := &TopologyInconsistencyError{
			ReplicaSet: rs.Name,
			Agreed:     agreed,
			AgreedBy:   agreedBy,
			Conflicts:  conflicts,
		}
		log.Error("members disagree on primary", logger.Err(err))
		return repository.Member{}, err
	}

	for _, m := range rs.Members {
		if agreed.Matches(m) {
			log.Debug("primary discovered", logger.Primary(m.Addr()), logger.Count(len(rs.Members)))
			return asPrimary(m), nil
		}
	}
	return repository.Member{}, &PrimaryNotFoundError{
		ReplicaSet: rs.Name,
		Primary:    agreed,
		Members:    addrs(rs.Members),
	}
}

func declaredPrimary(rs ReplicaSet) (repository.Member, error) {
	for _, m := range rs.Members {
		if m.Primary {
			return asPrimary(m), nil
		}
	}
	if len(rs.Members) == 1 {
		return asPrimary(rs.Members[0]), nil
	}
	return repository.Member{}, &PrimaryNotFoundError{ReplicaSet: rs.Name, Members: addrs(rs.Members)}
}

func asPrimary(m repository.Member) repository.Member {
	m.Primary = true
	m.Role = repository.RolePrimary
	return m
}

func addrs(ms []repository.Member) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Addr())
	}
	return out
}
