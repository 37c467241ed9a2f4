package repository

import (
	"context"

	"github.com/dropDatabas3/shardmeta/internal/domain/types"
)

// MemberClient habla con los miembros (MySQL) de un replica-set.
type MemberClient interface {
	// ReportedPrimary conecta al miembro y retorna el host:port que ese
	// miembro considera primario según el modo de replicación.
	ReportedPrimary(ctx context.Context, m Member, mode types.HAMode) (Endpoint, error)

	// EnsureDatabase crea la base lógica por defecto de un shard en su primario.
	// Es idempotente: "ya existe" no es error.
	EnsureDatabase(ctx context.Context, primary Member, name string) error
}
