// Package verifactu: normalización y validación sintáctica del NIF español.

package verifactu

import (
	"fmt"
	"strings"
	"unicode"
)

// letras de control del NIF de persona física (algoritmo módulo 23).
const nifControlLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

// NormalizeNIF elimina espacios, puntos y guiones y pasa a mayúsculas.
// "b-12.345 678" -> "B12345678".
func NormalizeNIF(nif string) string {
	var b strings.Builder
	for _, r := range nif {
		if unicode.IsDigit(r) || unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// ValidateNIF valida la sintaxis del NIF normalizado: 9 caracteres, con el
// formato de persona física (8 dígitos + letra), NIE (X/Y/Z + 7 dígitos +
// letra) o persona jurídica (letra + 7 dígitos + carácter de control).
// Para personas físicas verifica además la letra de control módulo 23.
func ValidateNIF(nif string) error {
	n := NormalizeNIF(nif)
	if len(n) != 9 {
		return fmt.Errorf("verifactu: NIF debe tener 9 caracteres, se recibieron %d", len(n))
	}

	switch {
	case isDigits(n[:8]):
		// Persona física: 8 dígitos + letra de control
		var num int
		for i := 0; i < 8; i++ {
			num = num*10 + int(n[i]-'0')
		}
		expected := nifControlLetters[num%23]
		if n[8] != expected {
			return fmt.Errorf("verifactu: letra de control del NIF inválida: esperada %c, recibida %c", expected, n[8])
		}
		return nil
	case n[0] == 'X' || n[0] == 'Y' || n[0] == 'Z':
		// NIE: la letra inicial se sustituye por 0/1/2 para el módulo 23
		if !isDigits(n[1:8]) {
			return fmt.Errorf("verifactu: NIE con formato inválido: %s", n)
		}
		num := int(n[0]-'X') * 10000000
		for i := 1; i < 8; i++ {
			num = num*10 + int(n[i]-'0')
		}
		expected := nifControlLetters[num%23]
		if n[8] != expected {
			return fmt.Errorf("verifactu: letra de control del NIE inválida: esperada %c, recibida %c", expected, n[8])
		}
		return nil
	case unicode.IsLetter(rune(n[0])) && isDigits(n[1:8]):
		// Persona jurídica (CIF): letra de forma societaria + 7 dígitos + control.
		// El control puede ser dígito o letra según la forma; aquí solo sintaxis.
		return nil
	default:
		return fmt.Errorf("verifactu: NIF con formato no reconocido: %s", n)
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
