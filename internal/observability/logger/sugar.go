package logger

import (
	"context"

	"go.uber.org/zap"
)

// SFrom extrae el SugaredLogger del contexto. El CLI lo usa para los mensajes
// de progreso por paso, que así llevan el op id de la corrida.
//
// Ejemplo:
//
//	logger.SFrom(ctx).Infof("Step 1. Inserting metadata row for cluster %s", name)
func SFrom(ctx context.Context) *zap.SugaredLogger {
	return From(ctx).Sugar()
}
