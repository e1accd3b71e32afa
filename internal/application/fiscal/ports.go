package fiscal

import (
	"context"

	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
	"github.com/tu-usuario/verifactu-engine/internal/infrastructure/aeat"
)

// EnvelopeBuilder construye el envelope SOAP de un RegistroAlta.
type EnvelopeBuilder interface {
	Build(ctx *aeat.RegistroBuildContext) ([]byte, error)
}

// Submitter presenta un envelope ante la AEAT. Los fallos de transporte se
// devuelven dentro del outcome; err queda para fallos de programa.
type Submitter interface {
	Submit(ctx context.Context, envelope []byte) (*aeat.SubmissionOutcome, error)
}

// Signer firma un fragmento XML mediante la herramienta externa. Opcional.
type Signer interface {
	Sign(ctx context.Context, xmlFragment []byte) ([]byte, error)
}

// QRRenderer genera la imagen de cotejo de un registro aceptado. Opcional.
type QRRenderer interface {
	Render(rec *entity.FiscalRecord) (png []byte, url string, err error)
}
