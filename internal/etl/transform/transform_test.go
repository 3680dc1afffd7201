package transform

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validCNPJs = []string{
	"11444777000161",
	"11222333000181",
	"33000167000101",
	"00000000000191",
	"60746948000112",
	"19131243000197",
}

func TestValidateCNPJ_KnownValid(t *testing.T) {
	for _, c := range validCNPJs {
		assert.True(t, ValidateCNPJ(c), "cnpj: %s", c)
	}
}

func TestValidateCNPJ_Repdigits(t *testing.T) {
	for d := '0'; d <= '9'; d++ {
		id := strings.Repeat(string(d), CNPJLength)
		assert.False(t, ValidateCNPJ(id), "repdigit: %s", id)
	}
}

func TestValidateCNPJ_Invalid(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"all zeros", "00000000000000"},
		{"wrong first digit", "11444777000171"},
		{"wrong second digit", "11444777000162"},
		{"too short", "1144477700016"},
		{"too long", "114447770001610"},
		{"punctuated", "11.444.777/0001-61"},
		{"letters", "11444777ABCD61"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, ValidateCNPJ(tt.id))
		})
	}
}

func TestValidateCNPJ_SingleDigitMutationsFail(t *testing.T) {
	for _, base := range validCNPJs[:3] {
		for i := 0; i < 12; i++ {
			for d := byte('0'); d <= '9'; d++ {
				if base[i] == d {
					continue
				}
				mutated := base[:i] + string(d) + base[i+1:]
				assert.False(t, ValidateCNPJ(mutated), "mutation %s of %s", mutated, base)
			}
		}
	}
}

func TestNormalizeCNPJ(t *testing.T) {
	tests := []struct {
		input, expected string
	}{
		{"11.444.777/0001-61", "11444777000161"},
		{"11444777000161", "11444777000161"},
		{"191", "00000000000191"},
		{" 33.000.167/0001-01 ", "33000167000101"},
		{"", ""},
		{"n/a", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeCNPJ(tt.input), "input: %q", tt.input)
	}
}

func TestNormalizeThenValidate(t *testing.T) {
	assert.True(t, ValidateCNPJ(NormalizeCNPJ("11.444.777/0001-61")))
	assert.True(t, ValidateCNPJ(NormalizeCNPJ("191")))
}

func TestParseBRDecimal(t *testing.T) {
	tests := []struct {
		input, expected string
	}{
		{"1234,56", "1234.56"},
		{"-10,5", "-10.5"},
		{"1.234,56", "1234.56"},
		{"0,00", "0"},
		{"100", "100"},
		{"250.75", "250.75"},
		{`"99,90"`, "99.9"},
	}
	for _, tt := range tests {
		got, err := ParseBRDecimal(tt.input)
		require.NoError(t, err, "input: %q", tt.input)
		assert.Equal(t, tt.expected, got.String(), "input: %q", tt.input)
	}
}

func TestParseBRDecimal_Errors(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "1,2,3"} {
		_, err := ParseBRDecimal(in)
		assert.Error(t, err, "input: %q", in)
	}
}

func TestParseLedgerDate(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
	}{
		{"01/04/2024", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"31-12-2023", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"2024-07-01", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseLedgerDate(tt.input)
		require.NoError(t, err, "input: %q", tt.input)
		assert.True(t, tt.expected.Equal(got), "input: %q got %s", tt.input, got)
	}

	_, err := ParseLedgerDate("2024/13/45")
	assert.Error(t, err)
}

func TestNormalizeState(t *testing.T) {
	assert.Equal(t, "SP", NormalizeState(" sp "))
	assert.Equal(t, "", NormalizeState(""))
}
