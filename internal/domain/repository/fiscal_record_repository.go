package repository

import (
	"context"
	"time"

	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
	"github.com/tu-usuario/verifactu-engine/internal/domain/verifactu"
)

// FiscalRecordRepository define el puerto de persistencia de la cadena de
// registros de facturación. Existe exactamente una fila por
// (emisor, serie, número); un reenvío actualiza, nunca duplica.
type FiscalRecordRepository interface {
	GetByID(ctx context.Context, id string) (*entity.FiscalRecord, error)
	// GetByInvoice localiza el registro por su clave natural.
	GetByInvoice(ctx context.Context, issuerNIF, serie, numero string) (*entity.FiscalRecord, error)
	// Upsert inserta o actualiza por (emisor, serie, número).
	Upsert(ctx context.Context, rec *entity.FiscalRecord) error

	// IsFirstRecord responde si aún no existe ningún registro con huella no
	// nula para el emisor ("S" en el bloque Encadenamiento).
	IsFirstRecord(ctx context.Context, issuerNIF string) (bool, error)
	// LastAcceptedHuella devuelve la huella del último registro aceptado del
	// emisor según la política de encadenamiento; "" si no hay ninguno.
	// refDate solo se consulta con ChainScopePerIssuerPerDay.
	LastAcceptedHuella(ctx context.Context, issuerNIF string, scope verifactu.ChainScope, refDate time.Time) (string, error)
	// LastAcceptedRecord devuelve el registro completo del último aceptado,
	// necesario para el bloque RegistroAnterior del envelope; nil si no hay.
	LastAcceptedRecord(ctx context.Context, issuerNIF string, scope verifactu.ChainScope, refDate time.Time) (*entity.FiscalRecord, error)

	// MarkState actualiza estado, CSV, errores de línea y respuesta cruda.
	// La respuesta cruda se persiste siempre, también en aceptaciones:
	// es el registro legal de lo acordado con la AEAT.
	MarkState(ctx context.Context, id, estado, csv string, errores []entity.LineError, respuestaRaw string) error
	// SetPrimerRegistro corrige la marca "S"/"N" cuando la AEAT desmiente la
	// suposición local de posición en la cadena.
	SetPrimerRegistro(ctx context.Context, id, flag string) error
	// HuellaFor devuelve la huella almacenada del registro; "" si no tiene.
	HuellaFor(ctx context.Context, id string) (string, error)
	// ListResubmittable devuelve los registros reenviables (PENDING,
	// TRANSPORT_ERROR o SUBMITTING huérfano), los más antiguos primero,
	// hasta limit.
	ListResubmittable(ctx context.Context, limit int) ([]*entity.FiscalRecord, error)
}

// ChainTxRunner ejecuta fn dentro de la sección crítica de la cadena de un
// emisor: la comprobación "¿es el primero?" y la escritura posterior deben ser
// atómicas para que dos registros no reciban la misma huella anterior.
type ChainTxRunner interface {
	RunChained(ctx context.Context, issuerNIF string, fn func(repo FiscalRecordRepository) error) error
}
