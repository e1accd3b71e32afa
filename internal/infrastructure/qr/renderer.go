// Package qr genera el código QR de cotejo de facturas Veri*Factu: la URL de
// validación de la AEAT con los datos de la factura como parámetros.
package qr

import (
	"bytes"
	"fmt"
	"image/png"
	"net/url"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"

	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
	domverifactu "github.com/tu-usuario/verifactu-engine/internal/domain/verifactu"
)

// Renderer construye la URL de cotejo y la renderiza como QR.
// Determinista y sin I/O: mismo input, mismos bytes.
type Renderer struct {
	baseURL string
	pixels  int
}

// NewRenderer crea el renderer. pixels es el lado de la imagen; con la
// densidad habitual de impresión queda dentro del cuadrado físico de
// 30 a 40 mm que exige la normativa.
func NewRenderer(baseURL string, pixels int) *Renderer {
	if pixels <= 0 {
		pixels = 300
	}
	return &Renderer{baseURL: baseURL, pixels: pixels}
}

// BuildURL construye la URL de cotejo con los campos de la factura como
// query parameters, en el formato literal de la huella y el envelope:
// fecha DD-MM-YYYY e importe con dos decimales. csv se añade solo si existe.
func (r *Renderer) BuildURL(rec *entity.FiscalRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("qr: registro es obligatorio")
	}
	if rec.IssuerNIF == "" || rec.NumSerieFactura() == "" {
		return "", fmt.Errorf("qr: NIF y serie+número son obligatorios")
	}

	q := url.Values{}
	q.Set("nif", rec.IssuerNIF)
	q.Set("numserie", rec.NumSerieFactura())
	q.Set("fecha", rec.FechaExpedicion.Format(domverifactu.FormatoFechaExpedicion))
	q.Set("importe", rec.ImporteTotal.Round(2).StringFixed(2))
	if rec.CSV != "" {
		q.Set("csv", rec.CSV)
	}
	return r.baseURL + "?" + q.Encode(), nil
}

// Render devuelve los bytes PNG del QR de cotejo de la factura, con nivel de
// corrección de errores medio (M).
func (r *Renderer) Render(rec *entity.FiscalRecord) ([]byte, string, error) {
	u, err := r.BuildURL(rec)
	if err != nil {
		return nil, "", err
	}

	code, err := qr.Encode(u, qr.M, qr.Auto)
	if err != nil {
		return nil, "", fmt.Errorf("qr: codificar %q: %w", u, err)
	}
	scaled, err := barcode.Scale(code, r.pixels, r.pixels)
	if err != nil {
		return nil, "", fmt.Errorf("qr: escalar a %dpx: %w", r.pixels, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, "", fmt.Errorf("qr: serializar PNG: %w", err)
	}
	return buf.Bytes(), u, nil
}
