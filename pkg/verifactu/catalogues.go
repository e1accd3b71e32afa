// Package verifactu contiene catálogos y validaciones alineados a la Orden
// HAC/1177/2024 y al documento de especificaciones Veri*Factu de la AEAT
// (suministro de registros de facturación mediante sistemas informáticos).
package verifactu

// =============================================================================
// Versión del esquema y algoritmo de huella
// =============================================================================

const (
	// IDVersion es la versión del esquema SuministroInformacion soportada.
	IDVersion = "1.0"
	// TipoHuellaSHA256 identifica el algoritmo de huella "01" (SHA-256).
	TipoHuellaSHA256 = "01"
)

// =============================================================================
// L2 - Tipos de factura (TipoFactura)
// =============================================================================

const (
	TipoFacturaOrdinaria    = "F1" // Factura completa (identifica al destinatario)
	TipoFacturaSimplificada = "F2" // Factura simplificada / ticket, sin destinatario
	TipoFacturaRectificativa = "R1" // Rectificativa por error fundado en derecho
	TipoFacturaRectSimplificada = "R5" // Rectificativa de facturas simplificadas
)

// ValidTipoFactura códigos de tipo de factura admitidos por el motor.
var ValidTipoFactura = map[string]bool{
	TipoFacturaOrdinaria: true, TipoFacturaSimplificada: true,
	TipoFacturaRectificativa: true, TipoFacturaRectSimplificada: true,
}

// EsSimplificada indica si el tipo de factura va sin bloque Destinatarios.
func EsSimplificada(tipoFactura string) bool {
	return tipoFactura == TipoFacturaSimplificada || tipoFactura == TipoFacturaRectSimplificada
}

// =============================================================================
// L8A - Clave de régimen (IVA) y L9 - Calificación de la operación
// =============================================================================

const (
	ClaveRegimenGeneral    = "01" // Operación de régimen general
	ClaveRegimenExportacion = "02" // Exportación
	ClaveRegimenREBU       = "03" // Bienes usados, arte, antigüedades

	CalificacionSujetaNoExenta = "S1" // Operación sujeta y no exenta, sin inversión
	CalificacionNoSujeta       = "N1" // Operación no sujeta
)

// =============================================================================
// Estados de la respuesta AEAT (EstadoEnvio / EstadoRegistro)
// =============================================================================

const (
	EstadoEnvioCorrecto             = "Correcto"
	EstadoEnvioParcialmenteCorrecto = "ParcialmenteCorrecto"
	EstadoEnvioIncorrecto           = "Incorrecto"

	EstadoRegistroCorrecto           = "Correcto"
	EstadoRegistroAceptadoConErrores = "AceptadoConErrores"
	EstadoRegistroIncorrecto         = "Incorrecto"
)

// =============================================================================
// Códigos de error de registro relevantes para el encadenamiento.
// La AEAT es la fuente de verdad sobre la posición en la cadena: estos códigos
// indican que la suposición local de "primer registro" era incorrecta y el
// registro debe corregirse y reenviarse.
// =============================================================================

const (
	// ErrCodePrimerRegistroIncorrecto: se declaró PrimerRegistro="S" pero la
	// AEAT ya tiene registros previos para el obligado de emisión.
	ErrCodePrimerRegistroIncorrecto = "1452"
	// ErrCodeHuellaAnteriorNoCoincide: la huella del RegistroAnterior no
	// coincide con la última registrada por la AEAT.
	ErrCodeHuellaAnteriorNoCoincide = "1453"
	// ErrCodeRegistroDuplicado: ya existe un registro aceptado para el mismo
	// IDFactura (NIF + serie + número).
	ErrCodeRegistroDuplicado = "3000"
)

// ChainPositionErrorCodes códigos que obligan a recalcular la posición en la
// cadena (pasar PrimerRegistro a "N" y consultar la huella anterior real).
var ChainPositionErrorCodes = map[string]bool{
	ErrCodePrimerRegistroIncorrecto: true,
	ErrCodeHuellaAnteriorNoCoincide: true,
}

// =============================================================================
// Endpoints del WS Veri*Factu y URL base de validación QR
// =============================================================================

const (
	// EndpointPruebas es el entorno de pruebas/preproducción de la AEAT.
	EndpointPruebas = "https://prewww1.aeat.es/wlpl/TIKE-CONT/ws/SistemaFacturacion/VerifactuSOAP"
	// EndpointProduccion es el entorno real de presentación.
	EndpointProduccion = "https://www1.agenciatributaria.gob.es/wlpl/TIKE-CONT/ws/SistemaFacturacion/VerifactuSOAP"

	// QRBasePruebas y QRBaseProduccion son las URL de cotejo de facturas.
	QRBasePruebas    = "https://prewww2.aeat.es/wlpl/TIKE-CONT/ValidarQR"
	QRBaseProduccion = "https://www2.agenciatributaria.gob.es/wlpl/TIKE-CONT/ValidarQR"
)
