// Package conflict detects and resolves semantic contradictions between
// facts. Two facts can contradict without sharing any text ("Mora na Florida"
// vs "Mora no Brasil"): both belong to the same semantic field, and a field
// holds only one truth per user at a time.
package conflict

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field describes one semantic field: the keywords that place a fact in the
// field and the categories the field applies to. A fact belongs to the field
// when its category is listed and its lowercased text contains any keyword.
type Field struct {
	Name       string   `yaml:"name"`
	Keywords   []string `yaml:"keywords"`
	Categories []string `yaml:"categories"`
}

// DefaultFields returns the built-in semantic field table. Order matters:
// detection is first-match-wins, so more specific fields come first.
func DefaultFields() []Field {
	return []Field{
		{
			Name: "LOCALIZACAO",
			Keywords: []string{
				"mora", "morando", "vive", "vivendo", "mudou", "mudei", "reside",
				"país", "cidade", "estado", "florida", "brasil", "eua", "estados unidos",
			},
			Categories: []string{"CONTEXTO", "IDENTIDADE", "EVENTO"},
		},
		{
			Name: "EMPREGO",
			Keywords: []string{
				"trabalha", "trabalhando", "emprego", "empresa", "profissão",
				"cargo", "demitido", "contratado", "desempregado",
			},
			Categories: []string{"CONTEXTO", "IDENTIDADE"},
		},
		{
			Name: "ESTADO_CIVIL",
			Keywords: []string{
				"casou", "casado", "casada", "solteiro", "solteira", "divorciado",
				"divorciada", "separado", "noivo", "noiva", "viúvo", "viúva",
			},
			Categories: []string{"FAMILIA", "IDENTIDADE", "EVENTO"},
		},
		{
			Name:       "IGREJA",
			Keywords:   []string{"igreja", "congregação", "frequenta", "membro", "batizado", "converteu"},
			Categories: []string{"FE"},
		},
		{
			Name:       "IDADE",
			Keywords:   []string{"anos", "idade", "nasceu", "aniversário"},
			Categories: []string{"IDENTIDADE"},
		},
	}
}

// fieldsFile is the on-disk YAML layout for a custom field table.
type fieldsFile struct {
	Fields []Field `yaml:"fields"`
}

// LoadFields reads a semantic field table from a YAML file. The file fully
// replaces the built-in table, so deployments that want to extend it should
// start from a dump of DefaultFields.
func LoadFields(path string) ([]Field, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conflict: failed to read fields file: %w", err)
	}

	var f fieldsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("conflict: failed to parse fields file: %w", err)
	}
	if len(f.Fields) == 0 {
		return nil, fmt.Errorf("conflict: fields file %s defines no fields", path)
	}

	for i, field := range f.Fields {
		if field.Name == "" {
			return nil, fmt.Errorf("conflict: field %d has no name", i)
		}
		if len(field.Keywords) == 0 || len(field.Categories) == 0 {
			return nil, fmt.Errorf("conflict: field %q needs keywords and categories", field.Name)
		}
	}
	return f.Fields, nil
}

// matches reports whether a fact of the given category belongs to this field.
func (f Field) matches(fact, category string) bool {
	found := false
	for _, c := range f.Categories {
		if c == category {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	factLower := strings.ToLower(fact)
	for _, kw := range f.Keywords {
		if strings.Contains(factLower, kw) {
			return true
		}
	}
	return false
}
