package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (ej: duplicado, constraint violation).
	ErrConflict = errors.New("conflict")

	// ErrAlreadyExists indica que un objeto DDL (tabla, partición, base) ya existe.
	// Los llamadores idempotentes lo tratan como éxito.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indica que la operación no está implementada por este driver.
	ErrNotImplemented = errors.New("not implemented")

	// ErrVersionMismatch indica que un nodo de storage no corre la versión esperada.
	ErrVersionMismatch = errors.New("storage version mismatch")

	// ErrNoPrimaryReported indica que un miembro no conoce ningún primario ONLINE.
	ErrNoPrimaryReported = errors.New("member reports no online primary")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsAlreadyExists verifica si el error es ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
