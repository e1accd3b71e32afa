package aeat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
	"github.com/tu-usuario/verifactu-engine/internal/infrastructure/aeat"
)

const respuestaCorrecta = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <tikR:RespuestaRegFactuSistemaFacturacion xmlns:tikR="https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/RespuestaSuministro.xsd">
      <tikR:CSV>A-7CVE8LUXYPJRTT</tikR:CSV>
      <tikR:EstadoEnvio>Correcto</tikR:EstadoEnvio>
      <tikR:RespuestaLinea>
        <tikR:EstadoRegistro>Correcto</tikR:EstadoRegistro>
      </tikR:RespuestaLinea>
    </tikR:RespuestaRegFactuSistemaFacturacion>
  </env:Body>
</env:Envelope>`

const respuestaParcial = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <tikR:RespuestaRegFactuSistemaFacturacion xmlns:tikR="https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/RespuestaSuministro.xsd">
      <tikR:CSV>A-7CVE8LUXYPJRTT</tikR:CSV>
      <tikR:EstadoEnvio>ParcialmenteCorrecto</tikR:EstadoEnvio>
      <tikR:RespuestaLinea>
        <tikR:EstadoRegistro>AceptadoConErrores</tikR:EstadoRegistro>
        <tikR:CodigoErrorRegistro>2001</tikR:CodigoErrorRegistro>
        <tikR:DescripcionErrorRegistro>Valor de DescripcionOperacion truncado</tikR:DescripcionErrorRegistro>
      </tikR:RespuestaLinea>
    </tikR:RespuestaRegFactuSistemaFacturacion>
  </env:Body>
</env:Envelope>`

const respuestaPrimerRegistroErroneo = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <tikR:RespuestaRegFactuSistemaFacturacion xmlns:tikR="https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/RespuestaSuministro.xsd">
      <tikR:EstadoEnvio>Incorrecto</tikR:EstadoEnvio>
      <tikR:RespuestaLinea>
        <tikR:EstadoRegistro>Incorrecto</tikR:EstadoRegistro>
        <tikR:CodigoErrorRegistro>1452</tikR:CodigoErrorRegistro>
        <tikR:DescripcionErrorRegistro>El registro no es el primero de la cadena del emisor</tikR:DescripcionErrorRegistro>
      </tikR:RespuestaLinea>
    </tikR:RespuestaRegFactuSistemaFacturacion>
  </env:Body>
</env:Envelope>`

const respuestaFault = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <env:Fault>
      <faultcode>env:Client</faultcode>
      <faultstring>Certificado no admitido para el NIF indicado</faultstring>
    </env:Fault>
  </env:Body>
</env:Envelope>`

func TestInterpret_Correcto(t *testing.T) {
	out := aeat.Interpret([]byte(respuestaCorrecta))

	assert.Equal(t, entity.EstadoAceptado, out.Estado)
	assert.True(t, out.Aceptado())
	assert.Equal(t, "A-7CVE8LUXYPJRTT", out.CSV)
	assert.Empty(t, out.Errores)
	assert.Equal(t, respuestaCorrecta, out.RawBody,
		"la respuesta cruda se conserva íntegra para auditoría")
}

// TestInterpret_ParcialmenteCorrecto: el envío parcial sigue emitiendo CSV
// utilizable, con exactamente un error de línea registrado.
func TestInterpret_ParcialmenteCorrecto(t *testing.T) {
	out := aeat.Interpret([]byte(respuestaParcial))

	assert.Equal(t, entity.EstadoParcial, out.Estado)
	assert.True(t, out.Aceptado(), "la aceptación parcial cuenta como éxito a efectos de CSV")
	assert.NotEmpty(t, out.CSV)
	require.Len(t, out.Errores, 1)
	assert.Equal(t, "2001", out.Errores[0].Codigo)
	assert.Equal(t, "AceptadoConErrores", out.Errores[0].Estado)
}

// TestInterpret_PrimerRegistroErroneo: el código de encadenamiento marca
// FlipPrimerRegistro, con independencia de si este intento se reintenta.
func TestInterpret_PrimerRegistroErroneo(t *testing.T) {
	out := aeat.Interpret([]byte(respuestaPrimerRegistroErroneo))

	assert.Equal(t, entity.EstadoRechazado, out.Estado)
	assert.False(t, out.Aceptado())
	assert.True(t, out.FlipPrimerRegistro,
		"la AEAT desmintió la suposición de primer registro")
	require.Len(t, out.Errores, 1)
	assert.Equal(t, "1452", out.Errores[0].Codigo)
}

func TestInterpret_Fault(t *testing.T) {
	out := aeat.Interpret([]byte(respuestaFault))

	assert.Equal(t, entity.EstadoRechazado, out.Estado)
	require.Len(t, out.Errores, 1)
	assert.Contains(t, out.Errores[0].Descripcion, "Certificado no admitido")
}

func TestInterpret_RespuestaIlegible(t *testing.T) {
	out := aeat.Interpret([]byte("esto no es XML"))

	assert.Equal(t, entity.EstadoErrorTransporte, out.Estado)
	assert.NotEmpty(t, out.TransportError)
	assert.Equal(t, "esto no es XML", out.RawBody)
}

func TestInterpret_EnvelopeVacio(t *testing.T) {
	out := aeat.Interpret([]byte(`<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/"><env:Body/></env:Envelope>`))

	assert.Equal(t, entity.EstadoErrorTransporte, out.Estado)
}
