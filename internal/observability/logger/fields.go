package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - TOPOLOGÍA
// =================================================================================

// Cluster crea un campo para el nombre del cluster.
func Cluster(v string) zap.Field {
	return zap.String("cluster", v)
}

// ClusterID crea un campo para el id del cluster en el metadata store.
func ClusterID(v int64) zap.Field {
	return zap.Int64("cluster_id", v)
}

// Shard crea un campo para el nombre del shard.
func Shard(v string) zap.Field {
	return zap.String("shard", v)
}

// ShardID crea un campo para el id del shard.
func ShardID(v int64) zap.Field {
	return zap.Int64("shard_id", v)
}

// NodeID crea un campo para el id de un nodo (shard node o nodo de cómputo).
func NodeID(v int64) zap.Field {
	return zap.Int64("node_id", v)
}

// Addr crea un campo para un host:port.
func Addr(v string) zap.Field {
	return zap.String("addr", v)
}

// Primary crea un campo para el host:port del primario.
func Primary(v string) zap.Field {
	return zap.String("primary", v)
}

// Attempt crea un campo para el número de intento.
func Attempt(v int) zap.Field {
	return zap.Int("attempt", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// OpID crea un campo para el id de la corrida de aprovisionamiento.
func OpID(v string) zap.Field {
	return zap.String("op_id", v)
}

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
