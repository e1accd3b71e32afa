package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tu-usuario/verifactu-engine/internal/application/fiscal"
	domverifactu "github.com/tu-usuario/verifactu-engine/internal/domain/verifactu"
	"github.com/tu-usuario/verifactu-engine/internal/infrastructure/aeat"
	"github.com/tu-usuario/verifactu-engine/internal/infrastructure/autofirma"
	"github.com/tu-usuario/verifactu-engine/internal/infrastructure/postgres"
	"github.com/tu-usuario/verifactu-engine/internal/infrastructure/qr"
	"github.com/tu-usuario/verifactu-engine/pkg/config"
	"github.com/tu-usuario/verifactu-engine/pkg/logger"
)

// El motor drena los registros reenviables una vez y termina. Está pensado
// para ejecutarse como proceso auxiliar (cron o invocación manual) junto al
// sistema de facturación que crea los registros.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("aeat_env", cfg.Verifactu.Environment).
		Msg("iniciando motor verifactu")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	repo := postgres.NewFiscalRecordRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	scope, err := domverifactu.ParseChainScope(cfg.Verifactu.ChainScope)
	if err != nil {
		log.Fatal().Err(err).Msg("política de encadenamiento")
	}

	cert, err := aeat.LoadClientCertificate(cfg.Verifactu.CertPath, cfg.Verifactu.KeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("certificado de cliente para la AEAT")
	}
	client := aeat.NewClient(cfg.Verifactu.EndpointURL(), cert, cfg.Verifactu.Timeout())
	builder := aeat.NewEnvelopeBuilder()
	renderer := qr.NewRenderer(cfg.Verifactu.QRBase(), cfg.Verifactu.QRPixels)

	// Firmador externo — solo si está configurado el binario.
	var signer fiscal.Signer
	if cfg.Firma.BinaryPath != "" {
		signer = autofirma.NewSigner(autofirma.Config{
			BinaryPath: cfg.Firma.BinaryPath,
			CertPath:   cfg.Firma.CertPath,
			KeyPath:    cfg.Firma.KeyPath,
			Alias:      cfg.Firma.Alias,
			Timeout:    cfg.Firma.Timeout(),
		}, log)
	}

	orq := fiscal.NewOrchestrator(
		txRunner,
		repo,
		builder,
		client,
		signer,
		renderer,
		aeat.SistemaInformatico{
			NombreRazon:       cfg.Verifactu.SistemaNombreRazon,
			NIF:               cfg.Verifactu.SistemaNIF,
			Nombre:            cfg.Verifactu.SistemaNombre,
			ID:                cfg.Verifactu.SistemaID,
			Version:           cfg.Verifactu.SistemaVersion,
			NumeroInstalacion: cfg.Verifactu.NumeroInstalacion,
		},
		scope,
		log,
	)

	aceptados, err := orq.DrainPending(ctx, 100)
	if err != nil {
		log.Fatal().Err(err).Msg("drenaje de registros pendientes")
	}
	log.Info().Int("aceptados", aceptados).Msg("motor finalizado")
}
