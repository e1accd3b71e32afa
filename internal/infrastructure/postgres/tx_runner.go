package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tu-usuario/verifactu-engine/internal/domain/repository"
)

var _ repository.ChainTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunChained abre una transacción, toma el advisory lock de la cadena del
// emisor y ejecuta fn con un repositorio atado a la tx. El lock serializa la
// secuencia "¿es el primero? + escribir" entre escritores concurrentes del
// mismo emisor; emisores distintos no se bloquean entre sí. El lock se libera
// al terminar la transacción (commit o rollback).
func (r *TxRunner) RunChained(ctx context.Context, issuerNIF string, fn func(repo repository.FiscalRecordRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, issuerNIF); err != nil {
		return fmt.Errorf("advisory lock cadena %s: %w", issuerNIF, err)
	}

	if err := fn(NewFiscalRecordRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
