// Package validate checks the standardized dt.* tables and the analysis
// outputs before anything is published. Table shapes for persons,
// organizations and memberships come from remote schema documents listed in
// config/schemas.yml; the votes, vote-events and motions checks are local
// because their vocabularies are closed.
package validate

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/legislature-data/cz-psp-pipeline/internal/transport"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// SchemaRef points at a remote table schema document.
type SchemaRef struct {
	URL string `yaml:"url"`
}

// SchemasConfig maps the standardized tables to their schema documents.
type SchemasConfig struct {
	Persons       SchemaRef `yaml:"persons"`
	Organizations SchemaRef `yaml:"organizations"`
	Memberships   SchemaRef `yaml:"memberships"`
}

// LoadSchemasConfig reads a schemas.yml file.
func LoadSchemasConfig(path string) (*SchemasConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var cfg SchemasConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return &cfg, nil
}

// TableField is one field of a frictionless-style table schema document.
type TableField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Constraints struct {
		Required bool `json:"required"`
	} `json:"constraints"`
}

// TableSchema is the subset of a table schema document the validator reads.
type TableSchema struct {
	Fields []TableField `json:"fields"`
}

func (s *TableSchema) requiredFields() map[string]bool {
	required := make(map[string]bool)
	for _, f := range s.Fields {
		if f.Constraints.Required {
			required[f.Name] = true
		}
	}
	return required
}

func (s *TableSchema) allowedFields() map[string]bool {
	allowed := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		allowed[f.Name] = true
	}
	return allowed
}

// FetchTableSchema downloads and decodes a table schema document.
func FetchTableSchema(ctx context.Context, client *transport.Client, url string) (*TableSchema, error) {
	resp, err := client.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	var schema TableSchema
	if err := transport.DecodeResponse("schema-registry", resp, &schema); err != nil {
		return nil, err
	}
	if len(schema.Fields) == 0 {
		return nil, errors.NewValidationError("fields", url, "schema document has no fields")
	}
	return &schema, nil
}

// checkColumns reports columns required by the schema but absent from the
// table, and columns the schema does not know (schema drift).
func checkColumns(table string, columns []string, schema *TableSchema) error {
	required := schema.requiredFields()
	allowed := schema.allowedFields()

	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}

	var missing []string
	for name := range required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.NewValidationError(table, strings.Join(sorted(missing), ", "), "missing required columns")
	}

	var unexpected []string
	for _, c := range columns {
		if !allowed[c] {
			unexpected = append(unexpected, c)
		}
	}
	if len(unexpected) > 0 {
		return errors.NewValidationError(table, strings.Join(sorted(unexpected), ", "), "unexpected columns (schema drift)")
	}
	return nil
}

func requireNonEmpty(label string, n int) error {
	if n == 0 {
		return errors.NewValidationError(label, 0, "no rows")
	}
	return nil
}

func fieldError(label string, row int, field, message string) error {
	return errors.NewValidationError(fmt.Sprintf("%s[%d].%s", label, row, field), nil, message)
}

func sorted(s []string) []string {
	sort.Strings(s)
	return s
}

// sampleSize bounds how many records the per-record checks inspect.
const sampleSize = 50

