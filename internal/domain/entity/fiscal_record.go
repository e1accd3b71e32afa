package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de presentación de un registro de facturación ante la AEAT.
// Transiciones: PENDING -> SUBMITTING -> {ACCEPTED, PARTIALLY_ACCEPTED, REJECTED, TRANSPORT_ERROR}.
// ACCEPTED y PARTIALLY_ACCEPTED son terminales; TRANSPORT_ERROR es reintentable
// tal cual; REJECTED solo tras corregir la causa (ej: posición en la cadena).
const (
	EstadoPendiente       = "PENDING"            // Huella calculada, aún sin enviar
	EstadoEnviando        = "SUBMITTING"         // Llamada al WS en curso
	EstadoAceptado        = "ACCEPTED"           // Aceptado por la AEAT (CSV emitido)
	EstadoParcial         = "PARTIALLY_ACCEPTED" // Aceptado con errores de línea (CSV emitido)
	EstadoRechazado       = "REJECTED"           // Rechazo semántico de la AEAT
	EstadoErrorTransporte = "TRANSPORT_ERROR"    // Fallo de red/TLS/HTTP o respuesta ilegible
)

// Marcas del campo PrimerRegistro del bloque Encadenamiento.
const (
	PrimerRegistroSi = "S"
	PrimerRegistroNo = "N"
)

// LineError error estructurado de una línea de la respuesta AEAT.
type LineError struct {
	Estado      string // EstadoRegistro de la línea
	Codigo      string // CodigoErrorRegistro
	Descripcion string // DescripcionErrorRegistro
}

// SubmissionAttempt traza de un intento de envío (dato de log, no elemento
// durable de la cadena). El cuerpo crudo del último intento se persiste en el
// FiscalRecord como registro legal de lo acordado con la AEAT.
type SubmissionAttempt struct {
	Timestamp      time.Time
	Estado         string // Estado resultante del intento
	TransportError string // Mensaje del error de transporte, si lo hubo
	ResponseBody   string // Cuerpo crudo de la respuesta
}

// FiscalRecord es un registro de facturación: una entrada de la cadena de
// huellas por emisor, con una fila por (emisor, serie, número).
type FiscalRecord struct {
	ID        string
	IssuerNIF string // NIF del obligado de emisión (normalizado)

	// Identidad de la factura
	Serie       string
	Numero      string
	TipoFactura string // F1, F2, R1... (F2/R5 = simplificada, sin destinatario)

	// Contenido que participa en la huella
	FechaExpedicion time.Time       // Fecha de expedición de la factura
	CuotaTotal      decimal.Decimal // Cuota tributaria total
	ImporteTotal    decimal.Decimal // Importe total de la factura
	GeneradoEn      time.Time       // FechaHoraHusoGenRegistro (con huso horario)

	// Datos del envelope que no participan en la huella
	NombreRazonEmisor  string
	Descripcion        string // DescripcionOperacion
	DestinatarioNombre string // Solo facturas con destinatario
	DestinatarioNIF    string
	ClaveRegimen       string
	Calificacion       string
	TipoImpositivo     decimal.Decimal
	BaseImponible      decimal.Decimal

	// Encadenamiento
	Huella         string // Huella propia; inmutable una vez aceptada por la AEAT
	HuellaAnterior string // Huella del registro anterior del mismo emisor; vacía si primero
	PrimerRegistro string // "S" si no existe registro previo con huella para el emisor

	// Estado de presentación
	Estado       string
	CSV          string      // Código Seguro de Verificación emitido por la AEAT
	RespuestaRaw string      // Última respuesta cruda, persistida siempre (auditoría)
	Errores      []LineError // Errores por línea de la última respuesta

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NumSerieFactura devuelve serie+número sin separadores, como exige la AEAT.
func (r *FiscalRecord) NumSerieFactura() string {
	return r.Serie + r.Numero
}

// EsAceptado indica si el registro quedó en un estado de aceptación (con CSV).
func (r *FiscalRecord) EsAceptado() bool {
	return r.Estado == EstadoAceptado || r.Estado == EstadoParcial
}

// EsTerminal indica si el estado no admite más envíos sin intervención.
func (r *FiscalRecord) EsTerminal() bool {
	return r.EsAceptado()
}

// EsReintentable indica si el registro puede reenviarse tal cual (mismo envelope,
// misma huella). Un SUBMITTING cuenta: si el proceso murió entre marcar el envío
// y persistir el desenlace, la fila quedó ahí y el reenvío es la única salida.
// Un REJECTED requiere corrección previa; no es reintentable directo.
func (r *FiscalRecord) EsReintentable() bool {
	return r.Estado == EstadoPendiente || r.Estado == EstadoEnviando || r.Estado == EstadoErrorTransporte
}
