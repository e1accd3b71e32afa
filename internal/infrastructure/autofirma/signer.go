// Package autofirma delega la firma XAdES del registro en la herramienta de
// firma externa instalada en la máquina. El motor no implementa criptografía
// de firma: prepara los ficheros, invoca el binario y valida el artefacto.
package autofirma

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/tu-usuario/verifactu-engine/internal/domain"
	"github.com/tu-usuario/verifactu-engine/pkg/logger"
)

// Config describe cómo invocar la herramienta de firma.
type Config struct {
	BinaryPath string
	CertPath   string
	KeyPath    string
	Alias      string
	Timeout    time.Duration
}

// Signer firma fragmentos XML invocando un proceso externo.
type Signer struct {
	cfg Config
	log *logger.Logger
}

func NewSigner(cfg Config, log *logger.Logger) *Signer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Signer{cfg: cfg, log: log}
}

// Sign escribe el XML en un fichero temporal, invoca la herramienta y devuelve
// el contenido firmado. La operación se considera exitosa únicamente si el
// proceso termina con código 0 Y el fichero de salida existe; cualquier otra
// combinación devuelve un error que envuelve domain.ErrFirmaFallida, con el
// stderr del proceso incluido para diagnóstico.
func (s *Signer) Sign(ctx context.Context, xmlFragment []byte) ([]byte, error) {
	if s.cfg.BinaryPath == "" {
		return nil, fmt.Errorf("%w: binario de firma no configurado", domain.ErrFirmaFallida)
	}

	dir, err := os.MkdirTemp("", "firma-")
	if err != nil {
		return nil, fmt.Errorf("%w: preparar directorio temporal: %v", domain.ErrFirmaFallida, err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, uuid.NewString()+".xml")
	outPath := strings.TrimSuffix(inPath, ".xml") + ".xsig"
	if err := os.WriteFile(inPath, xmlFragment, 0o600); err != nil {
		return nil, fmt.Errorf("%w: escribir fichero de entrada: %v", domain.ErrFirmaFallida, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	args := []string{
		"sign",
		"-i", inPath,
		"-o", outPath,
		"-cert", s.cfg.CertPath,
		"-key", s.cfg.KeyPath,
	}
	if s.cfg.Alias != "" {
		args = append(args, "-alias", s.cfg.Alias)
	}

	cmd := exec.CommandContext(ctx, s.cfg.BinaryPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	if s.log != nil {
		s.log.Debug().
			Str("binario", s.cfg.BinaryPath).
			Dur("duracion", time.Since(start)).
			Bool("exito", runErr == nil).
			Msg("invocación de la herramienta de firma")
	}
	if runErr != nil {
		return nil, fmt.Errorf("%w: %v (stderr: %s)",
			domain.ErrFirmaFallida, runErr, strings.TrimSpace(stderr.String()))
	}

	signed, err := os.ReadFile(outPath)
	if err != nil {
		// Exit 0 pero sin artefacto: se trata como fallo, nunca como éxito.
		return nil, fmt.Errorf("%w: el proceso terminó bien pero no produjo %s",
			domain.ErrFirmaFallida, filepath.Base(outPath))
	}

	if err := validarArtefacto(signed); err != nil {
		return nil, err
	}
	return signed, nil
}

// validarArtefacto comprueba que la salida es XML bien formado y contiene un
// elemento Signature. No valida la firma criptográficamente; eso corresponde
// a la AEAT.
func validarArtefacto(signed []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signed); err != nil {
		return fmt.Errorf("%w: el artefacto firmado no es XML válido: %v", domain.ErrFirmaFallida, err)
	}
	if doc.FindElement("//Signature") == nil {
		return fmt.Errorf("%w: el artefacto no contiene ningún elemento Signature", domain.ErrFirmaFallida)
	}
	return nil
}
