// Package aeat implementa la generación del envelope SOAP y el cliente del WS
// de suministro de registros de facturación Veri*Factu de la AEAT.
package aeat

import (
	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
)

// SistemaInformatico identifica al sistema informático de facturación (SIF)
// emisor del registro. Bloque obligatorio del RegistroAlta.
type SistemaInformatico struct {
	NombreRazon       string // Nombre o razón social del productor del SIF
	NIF               string // NIF del productor
	Nombre            string // Nombre comercial del SIF
	ID                string // IdSistemaInformatico (dos caracteres)
	Version           string
	NumeroInstalacion string
}

// RegistroBuildContext agrupa los datos necesarios para construir el envelope
// de un RegistroAlta: el registro a presentar, el registro anterior aceptado
// (nil si primer registro) y la identificación del SIF.
type RegistroBuildContext struct {
	Record   *entity.FiscalRecord
	Anterior *entity.FiscalRecord // Referencia del bloque RegistroAnterior; nil si primero
	Sistema  SistemaInformatico

	// FirmaB64 es el documento firmado adjunto en Base64 (opcional). Se omite
	// del envelope cuando está vacío.
	FirmaB64 string
}

// SubmissionOutcome es el resultado tipado de un intento de presentación,
// combinando transporte e interpretación de la respuesta de la AEAT.
type SubmissionOutcome struct {
	Estado         string             // Estado destino del registro (entity.Estado*)
	EstadoEnvio    string             // EstadoEnvio crudo de la AEAT ("" si no hubo respuesta legible)
	CSV            string             // Código Seguro de Verificación; "" hasta aceptación
	Errores        []entity.LineError // Errores estructurados por línea
	RawBody        string             // Cuerpo crudo de la respuesta (se persiste siempre)
	TransportError string             // Detalle del fallo de transporte, si lo hubo

	// FlipPrimerRegistro indica que la AEAT desmintió la suposición de primer
	// registro: el registro debe pasar a PrimerRegistro="N" antes de reintentar.
	FlipPrimerRegistro bool
}

// Aceptado indica si el intento produjo un CSV utilizable (aceptación plena o parcial).
func (o *SubmissionOutcome) Aceptado() bool {
	return o.Estado == entity.EstadoAceptado || o.Estado == entity.EstadoParcial
}
