package aeat

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/tu-usuario/verifactu-engine/internal/domain/entity"
)

const soapActionRegFactu = "RegFactuSistemaFacturacion"

// Client cliente SOAP del WS Veri*Factu con TLS mutuo: la AEAT exige
// certificado de cliente en el handshake.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// NewClient construye el cliente presentando el certificado dado en el
// handshake TLS. El timeout debe ser corto (orden de pocos segundos): la
// presentación es una acción síncrona de cara al usuario.
func NewClient(endpoint string, cert tls.Certificate, timeout time.Duration) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}
	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		endpoint:   endpoint,
	}
}

// LoadClientCertificate carga el certificado de cliente y su llave privada
// desde archivos PEM. Si keyPath está vacío se asume que certPath contiene
// ambos bloques.
func LoadClientCertificate(certPath, keyPath string) (tls.Certificate, error) {
	if certPath == "" {
		return tls.Certificate{}, fmt.Errorf("aeat: ruta del certificado de cliente vacía")
	}
	if keyPath == "" {
		keyPath = certPath
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("aeat: cargar certificado de cliente: %w", err)
	}
	return cert, nil
}

// Submit realiza un único POST con el envelope y clasifica el resultado.
// Nunca reintenta por sí mismo: el reintento es decisión del caller y debe
// reutilizar la misma huella.
//
// Fallos de transporte (TLS, red, timeout, HTTP != 2xx, respuesta ilegible)
// devuelven un outcome TRANSPORT_ERROR con el detalle; un Fault o un rechazo
// semántico salen del intérprete como REJECTED. El cuerpo crudo disponible se
// adjunta siempre al outcome para su persistencia.
func (c *Client) Submit(ctx context.Context, envelope []byte) (*SubmissionOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("aeat: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapActionRegFactu)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Handshake TLS, DNS, timeout, cancelación: error de transporte.
		msg := err.Error()
		if ctx.Err() != nil {
			msg = fmt.Sprintf("timeout o cancelación: %v", ctx.Err())
		}
		return &SubmissionOutcome{
			Estado:         entity.EstadoErrorTransporte,
			TransportError: msg,
		}, nil
	}
	defer resp.Body.Close()

	rawBody, err := readBody(resp)
	if err != nil {
		return &SubmissionOutcome{
			Estado:         entity.EstadoErrorTransporte,
			TransportError: fmt.Sprintf("leer respuesta: %v", err),
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SubmissionOutcome{
			Estado:         entity.EstadoErrorTransporte,
			TransportError: fmt.Sprintf("HTTP %d del WS AEAT", resp.StatusCode),
			RawBody:        string(rawBody),
		}, nil
	}

	return Interpret(rawBody), nil
}

// readBody lee el cuerpo (máx 1 MB) y lo convierte a UTF-8 si el WS responde
// en ISO-8859-1, como hacen algunos entornos de la AEAT.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = io.LimitReader(resp.Body, 1<<20)
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "iso-8859-1") || strings.Contains(ct, "latin-1") {
		r = transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	}
	return io.ReadAll(r)
}
