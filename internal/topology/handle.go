package topology

import (
	"errors"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
)

// Handle agrupa las conexiones que usa cada operación del protocolo.
// Se construye una vez por corrida (ver internal/app) y se pasa explícito.
type Handle struct {
	Meta     repository.MetaStore
	Members  repository.MemberClient
	Catalogs repository.CatalogDialer
	// MetaPrimary es el primario del cluster de metadata; se marca is_master
	// al sembrar pg_cluster_meta_nodes.
	MetaPrimary repository.Member
}

func (h *Handle) validate() error {
	if h == nil || h.Meta == nil {
		return errors.New("topology: handle without metadata store")
	}
	if h.Members == nil {
		return errors.New("topology: handle without member client")
	}
	if h.Catalogs == nil {
		return errors.New("topology: handle without catalog dialer")
	}
	return nil
}

// Close libera el metadata store.
func (h *Handle) Close() error {
	if h == nil || h.Meta == nil {
		return nil
	}
	return h.Meta.Close()
}
