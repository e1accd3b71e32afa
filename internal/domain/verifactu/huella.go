// Package verifactu: cálculo de la huella de los registros de facturación
// según el documento de especificaciones técnicas de la AEAT (Veri*Factu).
// Algoritmo "01": SHA-256 en mayúsculas sobre la cadena de campos en orden estricto.

package verifactu

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
)

// Formatos normativos de fecha y de instante de generación.
const (
	FormatoFechaExpedicion = "02-01-2006"                // DD-MM-YYYY
	FormatoFechaHoraHuso   = "2006-01-02T15:04:05-07:00" // ISO-8601 con offset
)

// HuellaParams contiene los campos de la cadena de huella en el orden exigido por la AEAT.
// Todos los valores van ya formateados salvo los importes, que se normalizan aquí.
type HuellaParams struct {
	IDEmisorFactura          string          // NIF del obligado de emisión
	NumSerieFactura          string          // Serie + número, sin separadores
	FechaExpedicionFactura   string          // DD-MM-YYYY
	TipoFactura              string          // F1, F2, R1...
	CuotaTotal               decimal.Decimal // Cuota tributaria total
	ImporteTotal             decimal.Decimal // Importe total
	Huella                   string          // Huella del registro anterior; vacía si primero
	FechaHoraHusoGenRegistro string          // Instante de generación ISO-8601 con offset
}

// HuellaService calcula la huella encadenada de un registro de facturación.
// Función pura: sin I/O ni estado.
type HuellaService struct{}

// NewHuellaService crea el servicio.
func NewHuellaService() *HuellaService {
	return &HuellaService{}
}

// Calculate genera la huella (SHA-256, hexadecimal en mayúsculas) a partir de los parámetros.
// Cadena normativa, con los valores recortados de espacios:
//
//	IDEmisorFactura=...&NumSerieFactura=...&FechaExpedicionFactura=...&TipoFactura=...
//	&CuotaTotal=...&ImporteTotal=...&Huella=...&FechaHoraHusoGenRegistro=...
//
// Cualquier desviación en orden o formato produce una huella que la AEAT rechaza.
func (s *HuellaService) Calculate(p *HuellaParams) (string, error) {
	if p == nil {
		return "", fmt.Errorf("verifactu: HuellaParams es obligatorio")
	}
	nif := strings.TrimSpace(p.IDEmisorFactura)
	numSerie := strings.TrimSpace(p.NumSerieFactura)
	fecha := strings.TrimSpace(p.FechaExpedicionFactura)
	tipo := strings.TrimSpace(p.TipoFactura)
	genRegistro := strings.TrimSpace(p.FechaHoraHusoGenRegistro)

	if nif == "" {
		return "", fmt.Errorf("verifactu: IDEmisorFactura es obligatorio")
	}
	if numSerie == "" {
		return "", fmt.Errorf("verifactu: NumSerieFactura es obligatorio")
	}
	if fecha == "" {
		return "", fmt.Errorf("verifactu: FechaExpedicionFactura es obligatoria (DD-MM-YYYY)")
	}
	if tipo == "" {
		return "", fmt.Errorf("verifactu: TipoFactura es obligatorio")
	}
	if genRegistro == "" {
		return "", fmt.Errorf("verifactu: FechaHoraHusoGenRegistro es obligatorio")
	}

	cadena := "IDEmisorFactura=" + nif +
		"&NumSerieFactura=" + numSerie +
		"&FechaExpedicionFactura=" + fecha +
		"&TipoFactura=" + tipo +
		"&CuotaTotal=" + formatAmount(p.CuotaTotal) +
		"&ImporteTotal=" + formatAmount(p.ImporteTotal) +
		"&Huella=" + strings.TrimSpace(p.Huella) +
		"&FechaHoraHusoGenRegistro=" + genRegistro

	hash := sha256.Sum256([]byte(cadena))
	return strings.ToUpper(hex.EncodeToString(hash[:])), nil
}

// ComputeOrReuse devuelve la huella del registro aplicando el invariante de
// inmutabilidad: si el registro ya fue aceptado por la AEAT, la huella
// almacenada se reutiliza tal cual (la AEAT vincula la aceptación al valor
// exacto que recibió); en cualquier otro caso se calcula desde los campos.
func (s *HuellaService) ComputeOrReuse(rec *entity.FiscalRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("verifactu: registro es obligatorio")
	}
	if rec.Huella != "" && rec.EsAceptado() {
		return rec.Huella, nil
	}
	return s.Calculate(&HuellaParams{
		IDEmisorFactura:          rec.IssuerNIF,
		NumSerieFactura:          rec.NumSerieFactura(),
		FechaExpedicionFactura:   rec.FechaExpedicion.Format(FormatoFechaExpedicion),
		TipoFactura:              rec.TipoFactura,
		CuotaTotal:               rec.CuotaTotal,
		ImporteTotal:             rec.ImporteTotal,
		Huella:                   rec.HuellaAnterior,
		FechaHoraHusoGenRegistro: rec.GeneradoEn.Format(FormatoFechaHoraHuso),
	})
}

// formatAmount formatea importes para la cadena de huella: sin separador de
// miles, punto decimal, 2 decimales (ej: 121.00).
func formatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
