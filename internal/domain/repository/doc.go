// Package repository define las interfaces de repositorio de dominio.
//
// Estas interfaces representan contratos con los tres sistemas que el
// aprovisionamiento mantiene convergentes: el metadata store (MySQL), los
// miembros de cada replica-set (MySQL) y el catálogo local de cada nodo de
// cómputo (PostgreSQL).
//
// Las implementaciones concretas viven en internal/store/adapters/.
//
// Arquitectura:
//
//	┌─────────────────────────────────────────────────────┐
//	│      internal/topology (discovery, registrar,       │
//	│         propagator, bootstrapper)                   │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│        domain/repository (interfaces)               │
//	│  MetaStore, MemberClient, CatalogDialer             │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	         ┌──────────────┼──────────────┐
//	         ▼              ▼              ▼
//	┌─────────────┐  ┌─────────────┐  ┌─────────────┐
//	│  adapters/  │  │  adapters/  │  │  adapters/  │
//	│    mysql    │  │     pg      │  │   memory    │
//	└─────────────┘  └─────────────┘  └─────────────┘
//
// Convenciones:
//   - ClusterID se pasa explícitamente en métodos que lo requieren
//   - Context siempre es el primer parámetro
//   - Errores de dominio están en errors.go
package repository
