// Package fiscal orquesta el ciclo de vida completo de un registro de
// facturación: encadenamiento de huella, construcción del envelope, firma
// opcional, presentación ante la AEAT e interpretación del resultado.
package fiscal

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tu-usuario/verifactu-engine/internal/domain"
	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
	"github.com/tu-usuario/verifactu-engine/internal/domain/repository"
	domverifactu "github.com/tu-usuario/verifactu-engine/internal/domain/verifactu"
	"github.com/tu-usuario/verifactu-engine/internal/infrastructure/aeat"
	"github.com/tu-usuario/verifactu-engine/pkg/logger"
	"github.com/tu-usuario/verifactu-engine/pkg/verifactu"
)

// SubmissionResult es el resultado de un Submit: el registro con su estado
// final, el outcome crudo del intento y, si hubo aceptación, el QR de cotejo.
type SubmissionResult struct {
	Record  *entity.FiscalRecord
	Outcome *aeat.SubmissionOutcome
	Attempt entity.SubmissionAttempt // Traza del intento (para el log del caller)
	QRPNG   []byte
	QRURL   string
}

// Orchestrator coordina los puertos del motor. La presentación es síncrona:
// Submit no retorna hasta conocer el desenlace del intento.
type Orchestrator struct {
	runner  repository.ChainTxRunner
	repo    repository.FiscalRecordRepository // lecturas fuera de la sección crítica
	huellas *domverifactu.HuellaService
	builder EnvelopeBuilder
	client  Submitter
	signer  Signer     // nil si la firma no está configurada
	qr      QRRenderer // nil si el QR no está configurado

	sistema aeat.SistemaInformatico
	scope   domverifactu.ChainScope
	log     *logger.Logger

	// Serialización en proceso por emisor, además del advisory lock de
	// Postgres: evita que dos goroutines del mismo proceso compitan por la
	// transacción de la cadena.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewOrchestrator crea el orquestador. signer y qr pueden ser nil.
func NewOrchestrator(
	runner repository.ChainTxRunner,
	repo repository.FiscalRecordRepository,
	builder EnvelopeBuilder,
	client Submitter,
	signer Signer,
	qr QRRenderer,
	sistema aeat.SistemaInformatico,
	scope domverifactu.ChainScope,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		runner:  runner,
		repo:    repo,
		huellas: domverifactu.NewHuellaService(),
		builder: builder,
		client:  client,
		signer:  signer,
		qr:      qr,
		sistema: sistema,
		scope:   scope,
		log:     log,
		locks:   map[string]*sync.Mutex{},
	}
}

func (o *Orchestrator) issuerLock(nif string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	mu, ok := o.locks[nif]
	if !ok {
		mu = &sync.Mutex{}
		o.locks[nif] = mu
	}
	return mu
}

// Submit presenta un registro de facturación. El flujo completo:
//
//  1. Sección crítica de la cadena del emisor: resolver posición (primer
//     registro o huella anterior), calcular la huella y persistir PENDING.
//  2. Construir el envelope; un registro mal formado falla aquí, sin red.
//  3. Firmar (si hay firmador configurado); el fallo de firma deja el
//     registro PENDING y reenviable.
//  4. Marcar SUBMITTING, enviar e interpretar; persistir el desenlace con la
//     respuesta cruda íntegra.
//
// Reenviar un registro ya aceptado es un no-op que devuelve el estado
// almacenado; reenviar uno reenviable reutiliza su identidad y produce la
// misma huella.
func (o *Orchestrator) Submit(ctx context.Context, rec *entity.FiscalRecord) (*SubmissionResult, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: registro es obligatorio", domain.ErrInvalidInput)
	}
	nif := verifactu.NormalizeNIF(rec.IssuerNIF)
	if err := verifactu.ValidateNIF(nif); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	rec.IssuerNIF = nif

	mu := o.issuerLock(nif)
	mu.Lock()
	defer mu.Unlock()

	var anterior *entity.FiscalRecord
	var yaAceptado bool

	err := o.runner.RunChained(ctx, nif, func(repo repository.FiscalRecordRepository) error {
		existente, err := repo.GetByInvoice(ctx, nif, rec.Serie, rec.Numero)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existente != nil {
			if existente.EsTerminal() {
				*rec = *existente
				yaAceptado = true
				return nil
			}
			// Reenvío: conservar identidad, encadenamiento e instante de
			// generación para que la huella resultante sea idéntica.
			rec.ID = existente.ID
			rec.HuellaAnterior = existente.HuellaAnterior
			rec.PrimerRegistro = existente.PrimerRegistro
			rec.GeneradoEn = existente.GeneradoEn
			rec.CreatedAt = existente.CreatedAt
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.GeneradoEn.IsZero() {
			rec.GeneradoEn = time.Now()
		}

		if rec.PrimerRegistro == "" {
			primero, err := repo.IsFirstRecord(ctx, nif)
			if err != nil {
				return err
			}
			if primero {
				rec.PrimerRegistro = entity.PrimerRegistroSi
			} else {
				rec.PrimerRegistro = entity.PrimerRegistroNo
			}
		}

		if rec.PrimerRegistro == entity.PrimerRegistroNo {
			anterior, err = repo.LastAcceptedRecord(ctx, nif, o.scope, rec.GeneradoEn)
			if err != nil {
				return err
			}
			if anterior == nil {
				return fmt.Errorf("%w: el registro no es el primero pero no hay anterior aceptado para %s",
					domain.ErrCadenaInconsistente, nif)
			}
			rec.HuellaAnterior = anterior.Huella
		} else {
			rec.HuellaAnterior = ""
		}

		huella, err := o.huellas.ComputeOrReuse(rec)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		rec.Huella = huella
		rec.Estado = entity.EstadoPendiente
		return repo.Upsert(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	if yaAceptado {
		o.log.Debug().Str("nif", nif).Str("numserie", rec.NumSerieFactura()).
			Msg("registro ya aceptado; reenvío ignorado")
		return o.resultado(rec, &aeat.SubmissionOutcome{
			Estado: rec.Estado,
			CSV:    rec.CSV,
		}), nil
	}

	buildCtx := &aeat.RegistroBuildContext{
		Record:   rec,
		Anterior: anterior,
		Sistema:  o.sistema,
	}

	// La firma se resuelve antes de construir el envelope definitivo, para
	// poder adjuntarla. Su fallo es independiente del envío: el registro
	// queda PENDING y reenviable.
	if o.signer != nil {
		preliminar, err := o.builder.Build(buildCtx)
		if err != nil {
			return nil, err
		}
		firmado, err := o.signer.Sign(ctx, preliminar)
		if err != nil {
			o.log.Warn().Err(err).Str("numserie", rec.NumSerieFactura()).
				Msg("firma fallida; el registro queda pendiente")
			return nil, err
		}
		buildCtx.FirmaB64 = base64.StdEncoding.EncodeToString(firmado)
	}

	envelope, err := o.builder.Build(buildCtx)
	if err != nil {
		return nil, err
	}

	if err := o.marcar(ctx, nif, rec.ID, entity.EstadoEnviando, "", nil, ""); err != nil {
		return nil, err
	}
	rec.Estado = entity.EstadoEnviando

	out, err := o.client.Submit(ctx, envelope)
	if err != nil {
		return nil, err
	}

	if out.FlipPrimerRegistro {
		// Los códigos de encadenamiento (1452/1453) significan que la AEAT ya
		// tiene registros previos del emisor: la marca pasa a "N" siempre. Si ya
		// estaba en "N" (huella anterior desfasada), la corrección real es
		// re-resolver el RegistroAnterior, cosa que hace el propio reenvío.
		if err := o.flipPrimerRegistro(ctx, nif, rec.ID, entity.PrimerRegistroNo); err != nil {
			return nil, err
		}
		rec.PrimerRegistro = entity.PrimerRegistroNo
	}

	if err := o.marcar(ctx, nif, rec.ID, out.Estado, out.CSV, out.Errores, out.RawBody); err != nil {
		return nil, err
	}
	rec.Estado = out.Estado
	rec.CSV = out.CSV
	rec.Errores = out.Errores
	rec.RespuestaRaw = out.RawBody

	o.log.Info().
		Str("nif", nif).
		Str("numserie", rec.NumSerieFactura()).
		Str("estado", out.Estado).
		Str("csv", out.CSV).
		Str("error_transporte", out.TransportError).
		Msg("intento de presentación finalizado")

	return o.resultado(rec, out), nil
}

// resultado ensambla el SubmissionResult, generando el QR si el registro
// quedó aceptado. Un fallo al renderizar el QR se registra pero no degrada
// una aceptación ya persistida.
func (o *Orchestrator) resultado(rec *entity.FiscalRecord, out *aeat.SubmissionOutcome) *SubmissionResult {
	res := &SubmissionResult{
		Record:  rec,
		Outcome: out,
		Attempt: entity.SubmissionAttempt{
			Timestamp:      time.Now(),
			Estado:         out.Estado,
			TransportError: out.TransportError,
			ResponseBody:   out.RawBody,
		},
	}
	if o.qr == nil || !rec.EsAceptado() {
		return res
	}
	png, url, err := o.qr.Render(rec)
	if err != nil {
		o.log.Warn().Err(err).Str("numserie", rec.NumSerieFactura()).
			Msg("no se pudo generar el QR de cotejo")
		return res
	}
	res.QRPNG = png
	res.QRURL = url
	return res
}

// DrainPending reenvía los registros reenviables (PENDING, TRANSPORT_ERROR o
// SUBMITTING huérfanos de una caída anterior), los más antiguos primero.
// Devuelve cuántos quedaron aceptados. Los fallos de
// registros individuales se registran y no detienen el resto; la cancelación
// del contexto sí detiene el drenaje.
func (o *Orchestrator) DrainPending(ctx context.Context, limit int) (int, error) {
	pendientes, err := o.repo.ListResubmittable(ctx, limit)
	if err != nil {
		return 0, err
	}

	aceptados := 0
	for _, rec := range pendientes {
		if ctx.Err() != nil {
			return aceptados, ctx.Err()
		}
		res, err := o.Submit(ctx, rec)
		if err != nil {
			o.log.Error().Err(err).Str("numserie", rec.NumSerieFactura()).
				Msg("reenvío fallido durante el drenaje")
			continue
		}
		if res.Record.EsAceptado() {
			aceptados++
		}
	}
	o.log.Info().Int("pendientes", len(pendientes)).Int("aceptados", aceptados).
		Msg("drenaje de registros pendientes finalizado")
	return aceptados, nil
}

func (o *Orchestrator) marcar(ctx context.Context, nif, id, estado, csv string, errores []entity.LineError, raw string) error {
	return o.runner.RunChained(ctx, nif, func(repo repository.FiscalRecordRepository) error {
		return repo.MarkState(ctx, id, estado, csv, errores, raw)
	})
}

func (o *Orchestrator) flipPrimerRegistro(ctx context.Context, nif, id, flag string) error {
	o.log.Warn().Str("nif", nif).Str("primer_registro", flag).
		Msg("la AEAT desmintió la posición en la cadena; corrigiendo marca")
	return o.runner.RunChained(ctx, nif, func(repo repository.FiscalRecordRepository) error {
		return repo.SetPrimerRegistro(ctx, id, flag)
	})
}
