package aeat_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
	"github.com/tu-usuario/verifactu-engine/internal/infrastructure/aeat"
)

func buildRecord() *entity.FiscalRecord {
	madrid := time.FixedZone("CEST", 2*60*60)
	return &entity.FiscalRecord{
		ID:                 "rec-1",
		IssuerNIF:          "B13523846",
		NombreRazonEmisor:  "Talleres Demo SL",
		Serie:              "F25",
		Numero:             "0001",
		TipoFactura:        "F1",
		Descripcion:        "Venta de mercancías",
		DestinatarioNombre: "Cliente Ejemplo SA",
		DestinatarioNIF:    "A58818501",
		ClaveRegimen:       "01",
		Calificacion:       "S1",
		TipoImpositivo:     decimal.NewFromInt(21),
		BaseImponible:      decimal.NewFromInt(100),
		CuotaTotal:         decimal.NewFromInt(21),
		ImporteTotal:       decimal.NewFromInt(121),
		FechaExpedicion:    time.Date(2025, 8, 25, 0, 0, 0, 0, madrid),
		GeneradoEn:         time.Date(2025, 8, 25, 10, 30, 0, 0, madrid),
		PrimerRegistro:     entity.PrimerRegistroSi,
		Huella:             strings.Repeat("A", 64),
		Estado:             entity.EstadoPendiente,
	}
}

func buildCtx() *aeat.RegistroBuildContext {
	return &aeat.RegistroBuildContext{
		Record: buildRecord(),
		Sistema: aeat.SistemaInformatico{
			NombreRazon:       "Software Demo SL",
			NIF:               "B70753877",
			Nombre:            "verifactu-engine",
			ID:                "VE",
			Version:           "1.0",
			NumeroInstalacion: "1",
		},
	}
}

// assertOrden verifica que los fragmentos aparecen en el XML en el orden dado:
// el esquema de la AEAT exige orden fijo de elementos, no solo presencia.
func assertOrden(t *testing.T, xml string, fragmentos ...string) {
	t.Helper()
	pos := -1
	for _, f := range fragmentos {
		idx := strings.Index(xml, f)
		require.GreaterOrEqual(t, idx, 0, "falta el fragmento %q", f)
		assert.Greater(t, idx, pos, "el fragmento %q está fuera de orden", f)
		pos = idx
	}
}

func TestBuild_OrdenDeElementos(t *testing.T) {
	builder := aeat.NewEnvelopeBuilder()
	out, err := builder.Build(buildCtx())
	require.NoError(t, err)

	xml := string(out)
	assertOrden(t, xml,
		"<sum:Cabecera>",
		"<sum1:ObligadoEmision>",
		"<sum1:RegistroAlta>",
		"<sum1:IDVersion>",
		"<sum1:IDFactura>",
		"<sum1:IDEmisorFactura>B13523846</sum1:IDEmisorFactura>",
		"<sum1:NumSerieFactura>F250001</sum1:NumSerieFactura>",
		"<sum1:FechaExpedicionFactura>25-08-2025</sum1:FechaExpedicionFactura>",
		"<sum1:NombreRazonEmisor>",
		"<sum1:TipoFactura>F1</sum1:TipoFactura>",
		"<sum1:DescripcionOperacion>",
		"<sum1:Destinatarios>",
		"<sum1:Desglose>",
		"<sum1:ClaveRegimen>01</sum1:ClaveRegimen>",
		"<sum1:CuotaTotal>21.00</sum1:CuotaTotal>",
		"<sum1:ImporteTotal>121.00</sum1:ImporteTotal>",
		"<sum1:Encadenamiento>",
		"<sum1:PrimerRegistro>S</sum1:PrimerRegistro>",
		"<sum1:SistemaInformatico>",
		"<sum1:FechaHoraHusoGenRegistro>2025-08-25T10:30:00+02:00</sum1:FechaHoraHusoGenRegistro>",
		"<sum1:TipoHuella>01</sum1:TipoHuella>",
		"<sum1:Huella>"+strings.Repeat("A", 64)+"</sum1:Huella>",
	)
}

func TestBuild_SimplificadaOmiteDestinatarios(t *testing.T) {
	builder := aeat.NewEnvelopeBuilder()
	ctx := buildCtx()
	ctx.Record.TipoFactura = "F2"
	ctx.Record.DestinatarioNombre = ""
	ctx.Record.DestinatarioNIF = ""

	out, err := builder.Build(ctx)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<sum1:Destinatarios>",
		"las facturas simplificadas van sin bloque Destinatarios")
}

func TestBuild_RegistroAnterior(t *testing.T) {
	builder := aeat.NewEnvelopeBuilder()
	ctx := buildCtx()
	ctx.Record.PrimerRegistro = entity.PrimerRegistroNo
	ctx.Record.HuellaAnterior = strings.Repeat("B", 64)
	anterior := buildRecord()
	anterior.Numero = "0000"
	anterior.Huella = strings.Repeat("B", 64)
	ctx.Anterior = anterior

	out, err := builder.Build(ctx)
	require.NoError(t, err)

	xml := string(out)
	assert.NotContains(t, xml, "<sum1:PrimerRegistro>")
	assertOrden(t, xml,
		"<sum1:RegistroAnterior>",
		"<sum1:NumSerieFactura>F250000</sum1:NumSerieFactura>",
		"<sum1:Huella>"+strings.Repeat("B", 64)+"</sum1:Huella>",
	)
}

func TestBuild_ImportesConPuntoYDosDecimales(t *testing.T) {
	builder := aeat.NewEnvelopeBuilder()
	ctx := buildCtx()
	ctx.Record.ImporteTotal = decimal.RequireFromString("1234.5")

	out, err := builder.Build(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<sum1:ImporteTotal>1234.50</sum1:ImporteTotal>",
		"los importes se serializan con dos decimales y punto, sin locale")
}

func TestBuild_FirmaAdjuntaOpcional(t *testing.T) {
	builder := aeat.NewEnvelopeBuilder()

	ctx := buildCtx()
	out, err := builder.Build(ctx)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<sum1:Firma>")

	ctx.FirmaB64 = "ZmlybWE="
	out, err = builder.Build(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<sum1:Firma>ZmlybWE=</sum1:Firma>")
}

// ── Errores de construcción: fallan rápido, sin tocar la red ─────────────────

func TestBuild_Validaciones(t *testing.T) {
	builder := aeat.NewEnvelopeBuilder()

	casos := []struct {
		nombre string
		mutar  func(*aeat.RegistroBuildContext)
	}{
		{"sin registro", func(c *aeat.RegistroBuildContext) { c.Record = nil }},
		{"NIF inválido", func(c *aeat.RegistroBuildContext) { c.Record.IssuerNIF = "X99" }},
		{"sin serie ni número", func(c *aeat.RegistroBuildContext) { c.Record.Serie, c.Record.Numero = "", "" }},
		{"sin fecha", func(c *aeat.RegistroBuildContext) { c.Record.FechaExpedicion = time.Time{} }},
		{"tipo desconocido", func(c *aeat.RegistroBuildContext) { c.Record.TipoFactura = "F9" }},
		{"sin huella", func(c *aeat.RegistroBuildContext) { c.Record.Huella = "" }},
		{"completa sin destinatario", func(c *aeat.RegistroBuildContext) { c.Record.DestinatarioNIF = "" }},
		{"no-primero sin anterior", func(c *aeat.RegistroBuildContext) {
			c.Record.PrimerRegistro = entity.PrimerRegistroNo
			c.Anterior = nil
		}},
	}
	for _, c := range casos {
		t.Run(c.nombre, func(t *testing.T) {
			ctx := buildCtx()
			c.mutar(ctx)
			_, err := builder.Build(ctx)
			assert.Error(t, err)
		})
	}
}
