package aeat

import (
	"encoding/xml"
	"fmt"

	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
	pkgverifactu "github.com/tu-usuario/verifactu-engine/pkg/verifactu"
)

// ── Estructuras de respuesta SOAP ─────────────────────────────────────────────

type respuestaEnvelope struct {
	Body respuestaBody `xml:"Body"`
}

type respuestaBody struct {
	Respuesta *respuestaRegFactu `xml:"RespuestaRegFactuSistemaFacturacion"`
	Fault     *soapFault         `xml:"Fault"`
}

type respuestaRegFactu struct {
	CSV            string           `xml:"CSV"`
	EstadoEnvio    string           `xml:"EstadoEnvio"`
	RespuestaLinea []respuestaLinea `xml:"RespuestaLinea"`
}

type respuestaLinea struct {
	IDFactura                idFacturaRespuesta `xml:"IDFactura"`
	EstadoRegistro           string             `xml:"EstadoRegistro"`
	CodigoErrorRegistro      string             `xml:"CodigoErrorRegistro"`
	DescripcionErrorRegistro string             `xml:"DescripcionErrorRegistro"`
}

type idFacturaRespuesta struct {
	IDEmisorFactura        string `xml:"IDEmisorFactura"`
	NumSerieFactura        string `xml:"NumSerieFactura"`
	FechaExpedicionFactura string `xml:"FechaExpedicionFactura"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Intérprete ────────────────────────────────────────────────────────────────

// Interpret clasifica la respuesta cruda de la AEAT en un resultado tipado.
//
// Regla de éxito: EstadoEnvio "Correcto" o "ParcialmenteCorrecto", o cualquier
// línea con EstadoRegistro "AceptadoConErrores" — el modelo de aceptación
// parcial emite CSV aunque haya líneas con errores, y esos errores se
// conservan para auditoría.
//
// Los códigos de error de encadenamiento marcan FlipPrimerRegistro: la AEAT es
// la fuente de verdad sobre la posición en la cadena, no el almacén local.
func Interpret(rawBody []byte) *SubmissionOutcome {
	out := &SubmissionOutcome{RawBody: string(rawBody)}

	var env respuestaEnvelope
	if err := xml.Unmarshal(rawBody, &env); err != nil {
		out.Estado = entity.EstadoErrorTransporte
		out.TransportError = fmt.Sprintf("respuesta SOAP ilegible: %v", err)
		return out
	}

	// SOAP Fault: rechazo a nivel de protocolo/autoridad, con el texto del fault como error.
	if env.Body.Fault != nil {
		out.Estado = entity.EstadoRechazado
		out.Errores = []entity.LineError{{
			Estado:      pkgverifactu.EstadoRegistroIncorrecto,
			Codigo:      env.Body.Fault.FaultCode,
			Descripcion: env.Body.Fault.FaultString,
		}}
		return out
	}

	if env.Body.Respuesta == nil {
		out.Estado = entity.EstadoErrorTransporte
		out.TransportError = "respuesta SOAP vacía o inesperada"
		return out
	}

	resp := env.Body.Respuesta
	out.EstadoEnvio = resp.EstadoEnvio
	out.CSV = resp.CSV

	algunaAceptadaConErrores := false
	for _, linea := range resp.RespuestaLinea {
		if linea.EstadoRegistro == pkgverifactu.EstadoRegistroAceptadoConErrores {
			algunaAceptadaConErrores = true
		}
		if linea.CodigoErrorRegistro != "" || linea.EstadoRegistro == pkgverifactu.EstadoRegistroIncorrecto {
			out.Errores = append(out.Errores, entity.LineError{
				Estado:      linea.EstadoRegistro,
				Codigo:      linea.CodigoErrorRegistro,
				Descripcion: linea.DescripcionErrorRegistro,
			})
		}
		if pkgverifactu.ChainPositionErrorCodes[linea.CodigoErrorRegistro] {
			out.FlipPrimerRegistro = true
		}
	}

	switch {
	case resp.EstadoEnvio == pkgverifactu.EstadoEnvioCorrecto:
		out.Estado = entity.EstadoAceptado
	case resp.EstadoEnvio == pkgverifactu.EstadoEnvioParcialmenteCorrecto,
		algunaAceptadaConErrores:
		out.Estado = entity.EstadoParcial
	default:
		out.Estado = entity.EstadoRechazado
	}
	return out
}
