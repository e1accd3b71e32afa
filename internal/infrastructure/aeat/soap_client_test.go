package aeat

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
)

const respuestaOK = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <tikR:RespuestaRegFactuSistemaFacturacion xmlns:tikR="https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/RespuestaSuministro.xsd">
      <tikR:CSV>A-XYZ123</tikR:CSV>
      <tikR:EstadoEnvio>Correcto</tikR:EstadoEnvio>
    </tikR:RespuestaRegFactuSistemaFacturacion>
  </env:Body>
</env:Envelope>`

// clientePara construye un Client apuntando al servidor de test, confiando en
// su certificado autofirmado.
func clientePara(srv *httptest.Server) *Client {
	return &Client{httpClient: srv.Client(), endpoint: srv.URL}
}

func TestSubmit_RespuestaCorrecta(t *testing.T) {
	var gotAction, gotContentType string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.Header.Get("SOAPAction")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		_, _ = w.Write([]byte(respuestaOK))
	}))
	defer srv.Close()

	out, err := clientePara(srv).Submit(context.Background(), []byte("<envelope/>"))
	require.NoError(t, err)
	assert.Equal(t, entity.EstadoAceptado, out.Estado)
	assert.Equal(t, "A-XYZ123", out.CSV)
	assert.Equal(t, soapActionRegFactu, gotAction)
	assert.Contains(t, gotContentType, "text/xml")
}

func TestSubmit_RespuestaISO88591(t *testing.T) {
	// "Descripción" con la ó codificada en Latin-1 (byte 0xF3)
	cuerpo := []byte(`<?xml version="1.0" encoding="ISO-8859-1"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/"><env:Body>
<tikR:RespuestaRegFactuSistemaFacturacion xmlns:tikR="ns">
<tikR:EstadoEnvio>Incorrecto</tikR:EstadoEnvio>
<tikR:RespuestaLinea><tikR:EstadoRegistro>Incorrecto</tikR:EstadoRegistro>
<tikR:CodigoErrorRegistro>2002</tikR:CodigoErrorRegistro>
<tikR:DescripcionErrorRegistro>Descripci` + "\xf3" + `n no admitida</tikR:DescripcionErrorRegistro>
</tikR:RespuestaLinea>
</tikR:RespuestaRegFactuSistemaFacturacion>
</env:Body></env:Envelope>`)

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=ISO-8859-1")
		_, _ = w.Write(cuerpo)
	}))
	defer srv.Close()

	out, err := clientePara(srv).Submit(context.Background(), []byte("<envelope/>"))
	require.NoError(t, err)
	assert.Equal(t, entity.EstadoRechazado, out.Estado)
	require.Len(t, out.Errores, 1)
	assert.Contains(t, out.Errores[0].Descripcion, "Descripción no admitida",
		"el cuerpo Latin-1 debe decodificarse a UTF-8")
}

func TestSubmit_HTTPNoExitoso(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mantenimiento", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out, err := clientePara(srv).Submit(context.Background(), []byte("<envelope/>"))
	require.NoError(t, err)
	assert.Equal(t, entity.EstadoErrorTransporte, out.Estado)
	assert.Contains(t, out.TransportError, "503")
}

// TestSubmit_FalloHandshakeTLS: un cliente que no confía en la CA del servidor
// falla el handshake; el resultado es TRANSPORT_ERROR con el detalle, sin
// error de programa y sin corromper estado (el registro sigue reenviable).
func TestSubmit_FalloHandshakeTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(respuestaOK))
	}))
	defer srv.Close()

	cliente := NewClient(srv.URL, tls.Certificate{}, 2*time.Second)
	out, err := cliente.Submit(context.Background(), []byte("<envelope/>"))
	require.NoError(t, err, "el fallo de transporte se reporta en el outcome, no como error")
	assert.Equal(t, entity.EstadoErrorTransporte, out.Estado)
	assert.NotEmpty(t, out.TransportError)
	assert.Empty(t, out.CSV)
}

func TestSubmit_Timeout(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(respuestaOK))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := clientePara(srv).Submit(ctx, []byte("<envelope/>"))
	require.NoError(t, err)
	assert.Equal(t, entity.EstadoErrorTransporte, out.Estado)
	assert.Contains(t, out.TransportError, "timeout")
}