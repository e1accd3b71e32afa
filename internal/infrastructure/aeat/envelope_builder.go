package aeat

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/shopspring/decimal"

	domverifactu "github.com/tu-usuario/verifactu-engine/internal/domain/verifactu"
	pkgverifactu "github.com/tu-usuario/verifactu-engine/pkg/verifactu"
)

// Namespaces oficiales del WS de suministro Veri*Factu.
const (
	nsSoapEnv = "http://schemas.xmlsoap.org/soap/envelope/"
	nsSum     = "https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/SuministroLR.xsd"
	nsSum1    = "https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/SuministroInformacion.xsd"
)

// EnvelopeBuilder construye el envelope SOAP RegFactuSistemaFacturacion con el
// orden de elementos fijo que exige el esquema de la AEAT. No realiza I/O.
type EnvelopeBuilder struct{}

// NewEnvelopeBuilder crea el servicio.
func NewEnvelopeBuilder() *EnvelopeBuilder {
	return &EnvelopeBuilder{}
}

// Build genera los bytes del envelope para un RegistroAlta.
// Valida los campos antes de serializar: un dato malformado falla aquí,
// sin llegar nunca a la red, y el registro queda en PENDING.
func (b *EnvelopeBuilder) Build(ctx *RegistroBuildContext) ([]byte, error) {
	if err := b.validate(ctx); err != nil {
		return nil, err
	}
	rec := ctx.Record

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	// Elementos con nombre prefijado literal: los prefijos se declaran una vez
	// en el root y el encoder respeta el orden exacto de escritura.
	root := xml.StartElement{
		Name: xml.Name{Local: "soapenv:Envelope"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:soapenv"}, Value: nsSoapEnv},
			{Name: xml.Name{Local: "xmlns:sum"}, Value: nsSum},
			{Name: xml.Name{Local: "xmlns:sum1"}, Value: nsSum1},
		},
	}
	w := &tokenWriter{enc: enc}
	w.token(root)
	w.open("soapenv:Header")
	w.close("soapenv:Header")
	w.open("soapenv:Body")
	w.open("sum:RegFactuSistemaFacturacion")

	// ---- sum:Cabecera (obligado de emisión)
	w.open("sum:Cabecera")
	w.open("sum1:ObligadoEmision")
	w.write("sum1:NombreRazon", rec.NombreRazonEmisor)
	w.write("sum1:NIF", rec.IssuerNIF)
	w.close("sum1:ObligadoEmision")
	w.close("sum:Cabecera")

	// ---- sum:RegistroFactura > RegistroAlta (orden fijo del esquema)
	w.open("sum:RegistroFactura")
	w.open("sum1:RegistroAlta")

	w.write("sum1:IDVersion", pkgverifactu.IDVersion)

	w.open("sum1:IDFactura")
	w.write("sum1:IDEmisorFactura", rec.IssuerNIF)
	w.write("sum1:NumSerieFactura", rec.NumSerieFactura())
	w.write("sum1:FechaExpedicionFactura", rec.FechaExpedicion.Format(domverifactu.FormatoFechaExpedicion))
	w.close("sum1:IDFactura")

	w.write("sum1:NombreRazonEmisor", rec.NombreRazonEmisor)
	w.write("sum1:TipoFactura", rec.TipoFactura)
	w.write("sum1:DescripcionOperacion", rec.Descripcion)

	// Bloque Destinatarios: presente en facturas completas, se omite entero
	// en simplificadas (F2/R5).
	if !pkgverifactu.EsSimplificada(rec.TipoFactura) {
		w.open("sum1:Destinatarios")
		w.open("sum1:IDDestinatario")
		w.write("sum1:NombreRazon", rec.DestinatarioNombre)
		w.write("sum1:NIF", rec.DestinatarioNIF)
		w.close("sum1:IDDestinatario")
		w.close("sum1:Destinatarios")
	}

	// ---- Desglose de la operación
	w.open("sum1:Desglose")
	w.open("sum1:DetalleDesglose")
	w.write("sum1:ClaveRegimen", rec.ClaveRegimen)
	w.write("sum1:CalificacionOperacion", rec.Calificacion)
	w.write("sum1:TipoImpositivo", formatAmount(rec.TipoImpositivo))
	w.write("sum1:BaseImponibleOimporteNoSujeto", formatAmount(rec.BaseImponible))
	w.write("sum1:CuotaRepercutida", formatAmount(rec.CuotaTotal))
	w.close("sum1:DetalleDesglose")
	w.close("sum1:Desglose")

	w.write("sum1:CuotaTotal", formatAmount(rec.CuotaTotal))
	w.write("sum1:ImporteTotal", formatAmount(rec.ImporteTotal))

	// ---- Encadenamiento: marcador de primer registro o referencia al anterior
	w.open("sum1:Encadenamiento")
	if rec.PrimerRegistro == "S" {
		w.write("sum1:PrimerRegistro", "S")
	} else {
		w.open("sum1:RegistroAnterior")
		w.write("sum1:IDEmisorFactura", ctx.Anterior.IssuerNIF)
		w.write("sum1:NumSerieFactura", ctx.Anterior.NumSerieFactura())
		w.write("sum1:FechaExpedicionFactura", ctx.Anterior.FechaExpedicion.Format(domverifactu.FormatoFechaExpedicion))
		w.write("sum1:Huella", ctx.Anterior.Huella)
		w.close("sum1:RegistroAnterior")
	}
	w.close("sum1:Encadenamiento")

	// ---- Identificación del sistema informático de facturación
	w.open("sum1:SistemaInformatico")
	w.write("sum1:NombreRazon", ctx.Sistema.NombreRazon)
	w.write("sum1:NIF", ctx.Sistema.NIF)
	w.write("sum1:NombreSistemaInformatico", ctx.Sistema.Nombre)
	w.write("sum1:IdSistemaInformatico", ctx.Sistema.ID)
	w.write("sum1:Version", ctx.Sistema.Version)
	w.write("sum1:NumeroInstalacion", ctx.Sistema.NumeroInstalacion)
	w.write("sum1:TipoUsoPosibleSoloVerifactu", "S")
	w.write("sum1:TipoUsoPosibleMultiOT", "N")
	w.write("sum1:IndicadorMultiplesOT", "N")
	w.close("sum1:SistemaInformatico")

	w.write("sum1:FechaHoraHusoGenRegistro", rec.GeneradoEn.Format(domverifactu.FormatoFechaHoraHuso))
	w.write("sum1:TipoHuella", pkgverifactu.TipoHuellaSHA256)
	w.write("sum1:Huella", rec.Huella)

	// Documento firmado adjunto (opcional)
	if ctx.FirmaB64 != "" {
		w.write("sum1:Firma", ctx.FirmaB64)
	}

	w.close("sum1:RegistroAlta")
	w.close("sum:RegistroFactura")
	w.close("sum:RegFactuSistemaFacturacion")
	w.close("soapenv:Body")

	w.token(root.End())
	if w.err != nil {
		return nil, fmt.Errorf("aeat: serializar envelope: %w", w.err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("aeat: serializar envelope: %w", err)
	}
	return buf.Bytes(), nil
}

// validate aplica las comprobaciones de construcción (taxonomía de errores de
// formato: fallan antes de cualquier llamada de red).
func (b *EnvelopeBuilder) validate(ctx *RegistroBuildContext) error {
	if ctx == nil || ctx.Record == nil {
		return fmt.Errorf("aeat: se requiere el registro de facturación")
	}
	rec := ctx.Record
	if rec.IssuerNIF == "" {
		return fmt.Errorf("aeat: NIF del obligado de emisión vacío")
	}
	if err := pkgverifactu.ValidateNIF(rec.IssuerNIF); err != nil {
		return fmt.Errorf("aeat: NIF del emisor inválido: %w", err)
	}
	if rec.NumSerieFactura() == "" {
		return fmt.Errorf("aeat: serie+número de factura vacío")
	}
	if rec.FechaExpedicion.IsZero() {
		return fmt.Errorf("aeat: fecha de expedición vacía")
	}
	if rec.GeneradoEn.IsZero() {
		return fmt.Errorf("aeat: instante de generación del registro vacío")
	}
	if !pkgverifactu.ValidTipoFactura[rec.TipoFactura] {
		return fmt.Errorf("aeat: TipoFactura desconocido %q", rec.TipoFactura)
	}
	if rec.Huella == "" {
		return fmt.Errorf("aeat: el registro no tiene huella calculada")
	}
	if !pkgverifactu.EsSimplificada(rec.TipoFactura) && rec.DestinatarioNIF == "" {
		return fmt.Errorf("aeat: factura %s requiere destinatario identificado", rec.TipoFactura)
	}
	if rec.PrimerRegistro != "S" {
		if ctx.Anterior == nil || ctx.Anterior.Huella == "" {
			return fmt.Errorf("aeat: registro no-primero sin referencia al registro anterior")
		}
	}
	return nil
}

// formatAmount serializa importes con dos decimales y punto decimal,
// independientemente del locale.
func formatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// tokenWriter escribe tokens con nombres prefijados literales (orden
// garantizado) y retiene el primer error del encoder; las escrituras
// posteriores son no-ops y Build lo reporta al final.
type tokenWriter struct {
	enc *xml.Encoder
	err error
}

func (w *tokenWriter) token(t xml.Token) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(t)
	}
}

func (w *tokenWriter) open(name string) {
	w.token(xml.StartElement{Name: xml.Name{Local: name}})
}

func (w *tokenWriter) close(name string) {
	w.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func (w *tokenWriter) write(name, value string) {
	w.open(name)
	w.token(xml.CharData(value))
	w.close(name)
}
