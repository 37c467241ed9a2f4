// Package logger provides a singleton Zap logger with context-based scoping.
//
// # Design Decisions
//
//   - Singleton: Una sola instancia global inicializada con Init().
//   - Context Scoping: cada operación de aprovisionamiento lleva su propio
//     logger "scoped" (op_id, cluster, shard, node) sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Levels: debug, info, warn, error (configurable via SHARDMETA_LOG_LEVEL).
//   - Salida a stderr por defecto: stdout queda libre para resultados del CLI.
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{
//	    Env:   cfg.Log.Env,   // "dev" o "prod"
//	    Level: cfg.Log.Level, // "debug", "info", "warn", "error"
//	})
//	defer logger.Sync()
//
// En el protocolo (con contexto):
//
//	log := logger.From(ctx)
//	log.Info("shard registered", logger.Shard(name), logger.ShardID(id))
package logger
