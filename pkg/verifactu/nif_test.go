package verifactu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNIF(t *testing.T) {
	assert.Equal(t, "B12345678", NormalizeNIF("b-12.345 678"))
	assert.Equal(t, "12345678Z", NormalizeNIF(" 12345678-z "))
	assert.Equal(t, "", NormalizeNIF("  --  "))
}

func TestValidateNIF(t *testing.T) {
	casos := []struct {
		nif    string
		valido bool
	}{
		{"12345678Z", true},  // persona física, letra correcta (mod 23)
		{"12345678A", false}, // letra de control errónea
		{"X1234567L", true},  // NIE con letra correcta
		{"X1234567Z", false}, // NIE con letra errónea
		{"B13523846", true},  // CIF sintácticamente válido
		{"b-13.523.846", true},
		{"B1352384", false}, // 8 caracteres
		{"1234Z", false},
		{"", false},
		{"ABCDEFGHI", false},
	}
	for _, c := range casos {
		t.Run(c.nif, func(t *testing.T) {
			err := ValidateNIF(c.nif)
			if c.valido {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
