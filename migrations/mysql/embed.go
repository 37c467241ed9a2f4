// Package mysql embeds the SQL migrations of the metadata store.
package mysql

import "embed"

// MetaFS contains the metadata store schema and the per-cluster template tables.
//
//go:embed meta/*.sql
var MetaFS embed.FS

// MetaDir is the directory within MetaFS where migrations live.
const MetaDir = "meta"
