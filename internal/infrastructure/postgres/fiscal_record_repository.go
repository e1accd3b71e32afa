package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tu-usuario/verifactu-engine/internal/domain"
	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
	"github.com/tu-usuario/verifactu-engine/internal/domain/repository"
	domverifactu "github.com/tu-usuario/verifactu-engine/internal/domain/verifactu"
)

var _ repository.FiscalRecordRepository = (*FiscalRecordRepo)(nil)

// FiscalRecordRepo implementación pgx de FiscalRecordRepository (usable con pool o tx).
type FiscalRecordRepo struct {
	q Querier
}

// NewFiscalRecordRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFiscalRecordRepository(q Querier) *FiscalRecordRepo {
	return &FiscalRecordRepo{q: q}
}

const fiscalRecordColumns = `
	id, issuer_nif, serie, numero, tipo_factura,
	fecha_expedicion, cuota_total, importe_total, generado_en,
	nombre_razon_emisor, descripcion, destinatario_nombre, destinatario_nif,
	clave_regimen, calificacion, tipo_impositivo, base_imponible,
	huella, huella_anterior, primer_registro,
	estado, csv, respuesta_raw, errores, created_at, updated_at`

// Upsert inserta o actualiza por la clave natural (emisor, serie, número).
// Un reenvío del mismo registro actualiza la fila existente, nunca duplica.
func (r *FiscalRecordRepo) Upsert(ctx context.Context, rec *entity.FiscalRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	erroresJSON, err := json.Marshal(rec.Errores)
	if err != nil {
		return fmt.Errorf("serializar errores: %w", err)
	}

	query := `
		INSERT INTO fiscal_records (` + fiscalRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		ON CONFLICT (issuer_nif, serie, numero) DO UPDATE SET
			tipo_factura     = EXCLUDED.tipo_factura,
			fecha_expedicion = EXCLUDED.fecha_expedicion,
			cuota_total      = EXCLUDED.cuota_total,
			importe_total    = EXCLUDED.importe_total,
			generado_en      = EXCLUDED.generado_en,
			nombre_razon_emisor = EXCLUDED.nombre_razon_emisor,
			descripcion      = EXCLUDED.descripcion,
			destinatario_nombre = EXCLUDED.destinatario_nombre,
			destinatario_nif = EXCLUDED.destinatario_nif,
			clave_regimen    = EXCLUDED.clave_regimen,
			calificacion     = EXCLUDED.calificacion,
			tipo_impositivo  = EXCLUDED.tipo_impositivo,
			base_imponible   = EXCLUDED.base_imponible,
			huella           = EXCLUDED.huella,
			huella_anterior  = EXCLUDED.huella_anterior,
			primer_registro  = EXCLUDED.primer_registro,
			estado           = EXCLUDED.estado,
			updated_at       = EXCLUDED.updated_at`
	_, err = r.q.Exec(ctx, query,
		rec.ID, rec.IssuerNIF, rec.Serie, rec.Numero, rec.TipoFactura,
		rec.FechaExpedicion, rec.CuotaTotal, rec.ImporteTotal, rec.GeneradoEn,
		nullIfEmpty(rec.NombreRazonEmisor), nullIfEmpty(rec.Descripcion),
		nullIfEmpty(rec.DestinatarioNombre), nullIfEmpty(rec.DestinatarioNIF),
		rec.ClaveRegimen, rec.Calificacion, rec.TipoImpositivo, rec.BaseImponible,
		nullIfEmpty(rec.Huella), nullIfEmpty(rec.HuellaAnterior), rec.PrimerRegistro,
		rec.Estado, nullIfEmpty(rec.CSV), nullIfEmpty(rec.RespuestaRaw), erroresJSON,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("registro duplicado para %s %s%s: %w", rec.IssuerNIF, rec.Serie, rec.Numero, err)
		}
		return fmt.Errorf("upsert fiscal_record: %w", err)
	}
	return nil
}

// GetByID obtiene un registro completo por ID; domain.ErrNotFound si no existe.
func (r *FiscalRecordRepo) GetByID(ctx context.Context, id string) (*entity.FiscalRecord, error) {
	query := `SELECT ` + fiscalRecordColumns + ` FROM fiscal_records WHERE id = $1`
	rec, err := r.scanOne(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

// GetByInvoice localiza el registro por su clave natural (emisor, serie, número).
func (r *FiscalRecordRepo) GetByInvoice(ctx context.Context, issuerNIF, serie, numero string) (*entity.FiscalRecord, error) {
	query := `SELECT ` + fiscalRecordColumns + `
		FROM fiscal_records
		WHERE issuer_nif = $1 AND serie = $2 AND numero = $3`
	rec, err := r.scanOne(r.q.QueryRow(ctx, query, issuerNIF, serie, numero))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

// ListResubmittable devuelve los registros en estado reenviable (PENDING,
// TRANSPORT_ERROR o un SUBMITTING huérfano de un proceso caído), los más
// antiguos primero, hasta limit.
func (r *FiscalRecordRepo) ListResubmittable(ctx context.Context, limit int) ([]*entity.FiscalRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + fiscalRecordColumns + `
		FROM fiscal_records
		WHERE estado IN ($1, $2, $3)
		ORDER BY generado_en ASC
		LIMIT $4`
	rows, err := r.q.Query(ctx, query, entity.EstadoPendiente, entity.EstadoEnviando, entity.EstadoErrorTransporte, limit)
	if err != nil {
		return nil, fmt.Errorf("list resubmittable: %w", err)
	}
	defer rows.Close()

	var out []*entity.FiscalRecord
	for rows.Next() {
		rec, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list resubmittable: %w", err)
	}
	return out, nil
}

// IsFirstRecord responde si el emisor aún no tiene ningún registro aceptado con huella.
func (r *FiscalRecordRepo) IsFirstRecord(ctx context.Context, issuerNIF string) (bool, error) {
	const query = `
		SELECT NOT EXISTS (
			SELECT 1 FROM fiscal_records
			WHERE issuer_nif = $1 AND huella IS NOT NULL AND estado IN ($2, $3)
		)`
	var first bool
	err := r.q.QueryRow(ctx, query, issuerNIF, entity.EstadoAceptado, entity.EstadoParcial).Scan(&first)
	if err != nil {
		return false, fmt.Errorf("is first record: %w", err)
	}
	return first, nil
}

// LastAcceptedHuella devuelve la huella del último registro aceptado del emisor
// según la política de encadenamiento; "" si no hay ninguno.
func (r *FiscalRecordRepo) LastAcceptedHuella(ctx context.Context, issuerNIF string, scope domverifactu.ChainScope, refDate time.Time) (string, error) {
	rec, err := r.LastAcceptedRecord(ctx, issuerNIF, scope, refDate)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.Huella, nil
}

// LastAcceptedRecord devuelve el último registro aceptado completo (para el
// bloque RegistroAnterior); nil si no existe.
func (r *FiscalRecordRepo) LastAcceptedRecord(ctx context.Context, issuerNIF string, scope domverifactu.ChainScope, refDate time.Time) (*entity.FiscalRecord, error) {
	query := `SELECT ` + fiscalRecordColumns + `
		FROM fiscal_records
		WHERE issuer_nif = $1 AND huella IS NOT NULL AND estado IN ($2, $3)`
	args := []any{issuerNIF, entity.EstadoAceptado, entity.EstadoParcial}
	if scope == domverifactu.ChainScopePerIssuerPerDay {
		query += ` AND generado_en::date = $4::date`
		args = append(args, refDate)
	}
	query += ` ORDER BY generado_en DESC, updated_at DESC LIMIT 1`
	return r.scanOne(r.q.QueryRow(ctx, query, args...))
}

// MarkState actualiza estado, CSV, errores y respuesta cruda del registro.
// La respuesta cruda se escribe siempre que venga informada, también en
// aceptaciones: es la constancia legal de la respuesta de la AEAT.
func (r *FiscalRecordRepo) MarkState(ctx context.Context, id, estado, csv string, errores []entity.LineError, respuestaRaw string) error {
	erroresJSON, err := json.Marshal(errores)
	if err != nil {
		return fmt.Errorf("serializar errores: %w", err)
	}
	const query = `
		UPDATE fiscal_records
		SET estado        = $2,
		    csv           = COALESCE($3, csv),
		    errores       = $4,
		    respuesta_raw = COALESCE($5, respuesta_raw),
		    updated_at    = $6
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, estado, nullIfEmpty(csv), erroresJSON,
		nullIfEmpty(respuestaRaw), time.Now())
	if err != nil {
		return fmt.Errorf("mark state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark state: registro %s no encontrado", id)
	}
	return nil
}

// SetPrimerRegistro corrige la marca "S"/"N" del registro. Se invoca cuando la
// AEAT desmiente la suposición local de primer registro.
func (r *FiscalRecordRepo) SetPrimerRegistro(ctx context.Context, id, flag string) error {
	const query = `UPDATE fiscal_records SET primer_registro = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, flag, time.Now())
	if err != nil {
		return fmt.Errorf("set primer_registro: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set primer_registro: registro %s no encontrado", id)
	}
	return nil
}

// HuellaFor devuelve la huella almacenada del registro; "" si la fila no tiene huella.
func (r *FiscalRecordRepo) HuellaFor(ctx context.Context, id string) (string, error) {
	const query = `SELECT COALESCE(huella, '') FROM fiscal_records WHERE id = $1`
	var huella string
	err := r.q.QueryRow(ctx, query, id).Scan(&huella)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("huella for: %w", err)
	}
	return huella, nil
}

// scanOne mapea una fila completa a entity.FiscalRecord; nil si no hay filas.
func (r *FiscalRecordRepo) scanOne(row pgx.Row) (*entity.FiscalRecord, error) {
	var rec entity.FiscalRecord
	var nombreRazon, descripcion, destNombre, destNIF *string
	var huella, huellaAnterior, csv, respuestaRaw *string
	var erroresJSON []byte

	err := row.Scan(
		&rec.ID, &rec.IssuerNIF, &rec.Serie, &rec.Numero, &rec.TipoFactura,
		&rec.FechaExpedicion, &rec.CuotaTotal, &rec.ImporteTotal, &rec.GeneradoEn,
		&nombreRazon, &descripcion, &destNombre, &destNIF,
		&rec.ClaveRegimen, &rec.Calificacion, &rec.TipoImpositivo, &rec.BaseImponible,
		&huella, &huellaAnterior, &rec.PrimerRegistro,
		&rec.Estado, &csv, &respuestaRaw, &erroresJSON,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan fiscal_record: %w", err)
	}

	rec.NombreRazonEmisor = derefStr(nombreRazon)
	rec.Descripcion = derefStr(descripcion)
	rec.DestinatarioNombre = derefStr(destNombre)
	rec.DestinatarioNIF = derefStr(destNIF)
	rec.Huella = derefStr(huella)
	rec.HuellaAnterior = derefStr(huellaAnterior)
	rec.CSV = derefStr(csv)
	rec.RespuestaRaw = derefStr(respuestaRaw)

	if len(erroresJSON) > 0 {
		if err := json.Unmarshal(erroresJSON, &rec.Errores); err != nil {
			return nil, fmt.Errorf("deserializar errores: %w", err)
		}
	}
	return &rec, nil
}
