package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound            = errors.New("registro no encontrado")
	ErrInvalidInput        = errors.New("entrada inválida")
	ErrDuplicate           = errors.New("registro duplicado")
	ErrConflict            = errors.New("conflicto con el estado actual")
	ErrRegistroInmutable   = errors.New("el registro ya fue aceptado y es de solo lectura")
	ErrCadenaInconsistente = errors.New("encadenamiento inconsistente: falta la huella anterior")
	ErrFirmaFallida        = errors.New("el proceso de firma externo falló")
)
