package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tu-usuario/verifactu-engine/pkg/verifactu"
)

// Config agrupa la configuración del motor (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App       AppConfig
	DB        DBConfig
	Verifactu VerifactuConfig
	Firma     FirmaConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// VerifactuConfig configuración del suministro de registros a la AEAT.
type VerifactuConfig struct {
	Environment    string // "prod" = presentación real, "test" = preproducción
	Endpoint       string // Vacío = derivar de Environment
	QRBaseURL      string // Vacío = derivar de Environment
	CertPath       string // Certificado de cliente (PEM) para TLS mutuo
	KeyPath        string // Llave privada (PEM); vacío si CertPath incluye ambos
	TimeoutSeconds int    // Timeout de la llamada SOAP (corto: acción síncrona de cara al usuario)
	ChainScope     string // "issuer" (por emisor) o "issuer-day" (por emisor y día)
	QRPixels       int    // Lado en píxeles de la imagen QR (30-40 mm impresos)

	// Identificación del sistema informático de facturación (bloque SistemaInformatico).
	SistemaNombreRazon string
	SistemaNIF         string
	SistemaNombre      string
	SistemaID          string // Dos caracteres asignados por el productor del SIF
	SistemaVersion     string
	NumeroInstalacion  string
}

// EndpointURL devuelve el endpoint efectivo: el configurado o el derivado del entorno.
func (c VerifactuConfig) EndpointURL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if c.Environment == "prod" {
		return verifactu.EndpointProduccion
	}
	return verifactu.EndpointPruebas
}

// QRBase devuelve la URL base de cotejo QR efectiva.
func (c VerifactuConfig) QRBase() string {
	if c.QRBaseURL != "" {
		return c.QRBaseURL
	}
	if c.Environment == "prod" {
		return verifactu.QRBaseProduccion
	}
	return verifactu.QRBasePruebas
}

// Timeout devuelve el timeout de red como time.Duration.
func (c VerifactuConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FirmaConfig configuración del firmador externo (AutoFirma o compatible).
type FirmaConfig struct {
	BinaryPath     string // Ruta al ejecutable; vacío = no firmar
	CertPath       string // Certificado para la firma
	KeyPath        string // Llave privada para la firma
	Alias          string // Alias del certificado dentro del almacén (opcional)
	TimeoutSeconds int
}

// Timeout devuelve el timeout del proceso de firma.
func (c FirmaConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo .env).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, VERIFACTU_ENDPOINT, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "verifactu-engine"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "verifactu"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		Verifactu: VerifactuConfig{
			Environment:        getString(v, "VERIFACTU_ENVIRONMENT", "test"),
			Endpoint:           getString(v, "VERIFACTU_ENDPOINT", ""),
			QRBaseURL:          getString(v, "VERIFACTU_QR_BASE_URL", ""),
			CertPath:           getString(v, "VERIFACTU_CERT_PATH", ""),
			KeyPath:            getString(v, "VERIFACTU_KEY_PATH", ""),
			TimeoutSeconds:     getInt(v, "VERIFACTU_TIMEOUT_SECONDS", 5),
			ChainScope:         getString(v, "VERIFACTU_CHAIN_SCOPE", "issuer"),
			QRPixels:           getInt(v, "VERIFACTU_QR_PIXELS", 300),
			SistemaNombreRazon: getString(v, "VERIFACTU_SIF_NOMBRE_RAZON", ""),
			SistemaNIF:         getString(v, "VERIFACTU_SIF_NIF", ""),
			SistemaNombre:      getString(v, "VERIFACTU_SIF_NOMBRE", "verifactu-engine"),
			SistemaID:          getString(v, "VERIFACTU_SIF_ID", "VE"),
			SistemaVersion:     getString(v, "VERIFACTU_SIF_VERSION", "1.0"),
			NumeroInstalacion:  getString(v, "VERIFACTU_SIF_INSTALACION", "1"),
		},
		Firma: FirmaConfig{
			BinaryPath:     getString(v, "FIRMA_BINARY_PATH", ""),
			CertPath:       getString(v, "FIRMA_CERT_PATH", ""),
			KeyPath:        getString(v, "FIRMA_KEY_PATH", ""),
			Alias:          getString(v, "FIRMA_ALIAS", ""),
			TimeoutSeconds: getInt(v, "FIRMA_TIMEOUT_SECONDS", 30),
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
