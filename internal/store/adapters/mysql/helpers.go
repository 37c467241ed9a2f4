package mysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/dropDatabas3/shardmeta/internal/domain/repository"
)

// ─────────────────────────────────────────────────────────────────────────────
// Errores del servidor
// ─────────────────────────────────────────────────────────────────────────────

// Códigos de error de MySQL que el protocolo distingue.
const (
	erDupEntry          = 1062
	erTableExists       = 1050
	erDBCreateExists    = 1007
	erSameNamePartition = 1517
)

// mapError traduce errores del servidor a errores de dominio. El error
// original queda en la cadena para el log.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case erDupEntry:
		return fmt.Errorf("%w: %v", repository.ErrConflict, err)
	case erTableExists, erDBCreateExists, erSameNamePartition:
		return fmt.Errorf("%w: %v", repository.ErrAlreadyExists, err)
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Identificadores
// ─────────────────────────────────────────────────────────────────────────────

// quoteIdent cita un identificador con backticks. Los nombres de cluster ya
// vienen validados; la cita cubre nombres como postgres_$$_public.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
