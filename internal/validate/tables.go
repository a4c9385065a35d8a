package validate

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/legislature-data/cz-psp-pipeline/internal/transport"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// standardTables maps schemas.yml keys to the files they validate.
var standardTables = []struct {
	name string
	file string
	ref  func(*SchemasConfig) SchemaRef
}{
	{"persons", "persons.csv", func(c *SchemasConfig) SchemaRef { return c.Persons }},
	{"organizations", "organizations.csv", func(c *SchemasConfig) SchemaRef { return c.Organizations }},
	{"memberships", "memberships.csv", func(c *SchemasConfig) SchemaRef { return c.Memberships }},
}

// Tables validates the persons, organizations and memberships CSV tables in
// standardDir against the schema documents named in the config file. Tables
// that were not produced are skipped, not failed.
func Tables(ctx context.Context, client *transport.Client, configPath, standardDir string) error {
	log := logging.Ctx(ctx)

	cfg, err := LoadSchemasConfig(configPath)
	if err != nil {
		return err
	}

	for _, table := range standardTables {
		ref := table.ref(cfg)
		if ref.URL == "" {
			return errors.NewValidationError(table.name, configPath, "schemas config missing url")
		}
		path := filepath.Join(standardDir, table.file)
		if _, err := os.Stat(path); err != nil {
			log.Info().Str("table", table.name).Str("path", path).Msg("Skipping validation, table missing")
			continue
		}

		schema, err := FetchTableSchema(ctx, client, ref.URL)
		if err != nil {
			return err
		}
		if err := validateTableFile(path, table.name, schema); err != nil {
			return err
		}
		log.Info().Str("table", table.name).Str("schema", ref.URL).Msg("Validated table")
	}
	return nil
}

func validateTableFile(path, name string, schema *TableSchema) error {
	header, rows, err := readCSVTable(path)
	if err != nil {
		return err
	}
	if err := checkColumns(name, header, schema); err != nil {
		return err
	}
	if err := requireNonEmpty(name, len(rows)); err != nil {
		return err
	}

	// Required string columns must not be entirely empty.
	index := make(map[string]int, len(header))
	for i, c := range header {
		index[c] = i
	}
	for _, f := range schema.Fields {
		if f.Type != "string" || !f.Constraints.Required {
			continue
		}
		col, ok := index[f.Name]
		if !ok {
			continue
		}
		allEmpty := true
		for _, r := range rows {
			if col < len(r) && r[col] != "" {
				allEmpty = false
				break
			}
		}
		if allEmpty {
			return errors.NewValidationError(name+"."+f.Name, nil, "required string column is entirely empty")
		}
	}
	return nil
}

func readCSVTable(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.WrapIO("read", path, err)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, errors.WrapParse("csv", path, err)
	}
	if len(records) == 0 {
		return nil, nil, errors.NewValidationError(filepath.Base(path), nil, "empty file")
	}
	return records[0], records[1:], nil
}
