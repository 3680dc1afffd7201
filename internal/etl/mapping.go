package etl

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Internal company fields a registry column can map to.
const (
	FieldCNPJ      = "cnpj"
	FieldLegalName = "legal_name"
	FieldModality  = "modality"
	FieldState     = "state"
)

var mappedFields = []string{FieldCNPJ, FieldLegalName, FieldModality, FieldState}

//go:embed mapping_default.yaml
var defaultMappingYAML []byte

// JoinMapping declares how the operator registry lines up with the
// consolidated expenses: the registry column holding the registry id and
// which registry column feeds each company field. The consolidated side is
// always keyed by REG_ANS.
type JoinMapping struct {
	RegistryKey string            `yaml:"registry_key"`
	Columns     map[string]string `yaml:"columns"` // registry column -> field
}

// DefaultMapping returns the mapping for the published CADOP layout.
func DefaultMapping() JoinMapping {
	m, err := ParseMapping(defaultMappingYAML)
	if err != nil {
		panic(err)
	}
	return m
}

// LoadMapping reads a mapping file. An empty path yields DefaultMapping.
func LoadMapping(path string) (JoinMapping, error) {
	if path == "" {
		return DefaultMapping(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return JoinMapping{}, eris.Wrapf(err, "mapping: read %s", path)
	}
	return ParseMapping(data)
}

// ParseMapping decodes and validates a YAML mapping document.
func ParseMapping(data []byte) (JoinMapping, error) {
	var m JoinMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return JoinMapping{}, eris.Wrap(err, "mapping: decode yaml")
	}
	if err := m.Validate(); err != nil {
		return JoinMapping{}, err
	}
	return m, nil
}

// Validate checks that the registry key is set and every company field is
// fed by exactly one registry column.
func (m JoinMapping) Validate() error {
	if strings.TrimSpace(m.RegistryKey) == "" {
		return eris.New("mapping: registry_key is required")
	}
	seen := make(map[string]string, len(m.Columns))
	for col, field := range m.Columns {
		if !isMappedField(field) {
			return eris.Errorf("mapping: column %q maps to unknown field %q", col, field)
		}
		if prev, ok := seen[field]; ok {
			return eris.Errorf("mapping: field %q mapped by both %q and %q", field, prev, col)
		}
		seen[field] = col
	}
	for _, f := range mappedFields {
		if _, ok := seen[f]; !ok {
			return eris.Errorf("mapping: no column maps to field %q", f)
		}
	}
	return nil
}

// ColumnFor returns the registry column that feeds field.
func (m JoinMapping) ColumnFor(field string) string {
	for col, f := range m.Columns {
		if f == field {
			return col
		}
	}
	return ""
}

func isMappedField(f string) bool {
	for _, known := range mappedFields {
		if f == known {
			return true
		}
	}
	return false
}
