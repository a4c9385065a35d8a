package validate

import (
	"fmt"
	"strings"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// CurrentTermOutput checks the current-term analysis JSON: a single object
// with a non-empty id, name and since, plus well-formed identifier entries.
func CurrentTermOutput(path string) error {
	var term map[string]any
	if err := readJSONFile(path, &term); err != nil {
		return err
	}
	if term == nil {
		return errors.NewValidationError("current_term", path, "must not be null")
	}
	for _, key := range []string{"id", "name", "since"} {
		s, ok := term[key].(string)
		if !ok || s == "" {
			return errors.NewValidationError("current_term."+key, term[key], "must be a non-empty string")
		}
	}
	identifiers, ok := term["identifiers"].([]any)
	if !ok {
		return errors.NewValidationError("current_term.identifiers", term["identifiers"], "must be an array")
	}
	for i, raw := range identifiers {
		entry, ok := raw.(map[string]any)
		if !ok {
			return fieldError("current_term.identifiers", i, "entry", "must be an object")
		}
		if len(entry) != 2 || entry["scheme"] == nil || entry["identifier"] == nil {
			return fieldError("current_term.identifiers", i, "entry", "must have exactly scheme and identifier")
		}
	}
	return nil
}

// GroupsOutput checks a groups analysis pair: non-empty JSON records with
// prefixed ids and non-empty names, and a CSV with matching row count.
func GroupsOutput(jsonPath, csvPath string) error {
	var groups []map[string]any
	if err := readJSONFile(jsonPath, &groups); err != nil {
		return err
	}
	if err := requireNonEmpty("groups", len(groups)); err != nil {
		return err
	}
	for i, g := range groups {
		if i >= sampleSize {
			break
		}
		id, _ := g["id"].(string)
		if !strings.HasPrefix(id, schema.OrgIDPrefix) {
			return fieldError("groups", i, "id", "id not prefixed "+schema.OrgIDPrefix)
		}
		name, _ := g["name"].(string)
		if name == "" {
			return fieldError("groups", i, "name", "must be a non-empty string")
		}
	}

	header, rows, err := readCSVTable(csvPath)
	if err != nil {
		return err
	}
	if err := requireColumns("groups", header, "id", "name"); err != nil {
		return err
	}
	if len(rows) != len(groups) {
		return errors.NewValidationError("groups",
			fmt.Sprintf("csv=%d json=%d", len(rows), len(groups)), "CSV and JSON row counts differ")
	}
	return nil
}

// MembersOutput checks a members analysis pair: CSV and JSON row parity,
// non-empty ids and names, and the nested membership structure in the JSON.
func MembersOutput(csvPath, jsonPath string) error {
	header, rows, err := readCSVTable(csvPath)
	if err != nil {
		return err
	}
	if err := requireColumns("members", header, "id", "name"); err != nil {
		return err
	}
	if err := requireNonEmpty("members", len(rows)); err != nil {
		return err
	}

	var members []map[string]any
	if err := readJSONFile(jsonPath, &members); err != nil {
		return err
	}
	if len(members) != len(rows) {
		return errors.NewValidationError("members",
			fmt.Sprintf("csv=%d json=%d", len(rows), len(members)), "CSV and JSON row counts differ")
	}

	for i, m := range members {
		if i >= sampleSize {
			break
		}
		id, _ := m["id"].(string)
		if !strings.HasPrefix(id, schema.PersonIDPrefix) {
			return fieldError("members", i, "id", "id not prefixed "+schema.PersonIDPrefix)
		}
		name, _ := m["name"].(string)
		if name == "" {
			return fieldError("members", i, "name", "must be a non-empty string")
		}
		if raw, ok := m["memberships"]; ok && raw != nil {
			if err := checkMemberships(i, raw); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkMemberships(row int, raw any) error {
	memberships, ok := raw.(map[string]any)
	if !ok {
		return fieldError("members", row, "memberships", "must be an object")
	}
	for _, key := range []string{"parliament", "groups", "candidate_list", "constituency"} {
		v, ok := memberships[key]
		if !ok || v == nil {
			continue
		}
		entries, ok := v.([]any)
		if !ok {
			return fieldError("members", row, "memberships."+key, "must be an array")
		}
		for i, e := range entries {
			entry, ok := e.(map[string]any)
			if !ok {
				return fieldError("members", row, fmt.Sprintf("memberships.%s[%d]", key, i), "must be an object")
			}
			for _, req := range []string{"id", "name"} {
				s, ok := entry[req].(string)
				if !ok || s == "" {
					return fieldError("members", row, fmt.Sprintf("memberships.%s[%d].%s", key, i, req), "must be a non-empty string")
				}
			}
		}
	}
	return nil
}

func requireColumns(label string, header []string, columns ...string) error {
	present := make(map[string]bool, len(header))
	for _, c := range header {
		present[c] = true
	}
	for _, c := range columns {
		if !present[c] {
			return errors.NewValidationError(label, c, "missing required column")
		}
	}
	return nil
}
