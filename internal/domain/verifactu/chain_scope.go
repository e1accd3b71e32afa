package verifactu

import "fmt"

// ChainScope define el alcance del encadenamiento: de dónde sale la "huella
// anterior" de un nuevo registro. El motor aplica una única política de forma
// uniforme a facturas completas y simplificadas.
type ChainScope string

const (
	// ChainScopePerIssuer encadena con el último registro aceptado del emisor,
	// sin importar el día natural. Es la política por defecto.
	ChainScopePerIssuer ChainScope = "issuer"
	// ChainScopePerIssuerPerDay restringe la búsqueda al día natural en curso.
	ChainScopePerIssuerPerDay ChainScope = "issuer-day"
)

// ParseChainScope valida y convierte el valor de configuración.
func ParseChainScope(s string) (ChainScope, error) {
	switch ChainScope(s) {
	case ChainScopePerIssuer, ChainScopePerIssuerPerDay:
		return ChainScope(s), nil
	case "":
		return ChainScopePerIssuer, nil
	default:
		return "", fmt.Errorf("verifactu: ChainScope desconocido %q (usar %q o %q)",
			s, ChainScopePerIssuer, ChainScopePerIssuerPerDay)
	}
}
