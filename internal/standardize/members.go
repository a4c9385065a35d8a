// Package standardize maps raw PSP UNL tables onto the Legislature Data
// Standard (dt.*) tables.
package standardize

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/internal/unl"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// MembersSourceURL is the PSP agenda page documenting the poslanci tables.
const MembersSourceURL = "https://www.psp.cz/sqw/hp.sqw?k=1301"

// Column counts of the poslanci UNL tables.
const (
	osobyCols    = 10
	organyCols   = 11
	zarazeniCols = 8
	poslanecCols = 16
)

// MembersResult holds the standardized tables derived from the poslanci archive.
type MembersResult struct {
	Persons       []schema.Person
	Organizations []schema.Organization
	Memberships   []schema.Membership
}

// Members reads osoby.unl, organy.unl and zarazeni.unl from rawDir and
// returns the persons, organizations and memberships tables.
func Members(ctx context.Context, rawDir string) (*MembersResult, error) {
	log := logging.Ctx(ctx)

	// osoby.unl:
	// 0 id_osoba | 1 titul_pred | 2 prijmeni | 3 jmeno | 4 titul_za |
	// 5 narozeni | 6 pohlavi | 7 umrti | 8-9 unused
	osoby, err := unl.ReadFile(filepath.Join(rawDir, "osoby.unl"), osobyCols)
	if err != nil {
		return nil, err
	}
	persons := make([]schema.Person, 0, len(osoby))
	for _, r := range osoby {
		idOsoba := r[0]
		given := strings.TrimSpace(r[3])
		family := strings.TrimSpace(r[2])
		persons = append(persons, schema.Person{
			ID:          schema.PersonID(idOsoba),
			Name:        strings.TrimSpace(given + " " + family),
			GivenName:   given,
			FamilyName:  family,
			BirthDate:   ParseDate(r[5]),
			DeathDate:   ParseDate(r[7]),
			Gender:      ParseGender(r[6]),
			Identifiers: []schema.Identifier{{Scheme: "psp", Identifier: idOsoba}},
			Sources:     []schema.Source{{URL: MembersSourceURL, Note: "id_osoba=" + idOsoba}},
		})
	}
	log.Info().Int("rows", len(persons)).Msg("Standardized persons")

	// organy.unl:
	// 0 id_organ | 1 id_organ_nadr | 2 id_typ_org | 3 zkratka | 4 nazev |
	// 5 nazev_en | 6 od | 7 do | 8-10 unused
	organy, err := unl.ReadFile(filepath.Join(rawDir, "organy.unl"), organyCols)
	if err != nil {
		return nil, err
	}
	orgs := make([]schema.Organization, 0, len(organy))
	for _, r := range organy {
		idOrgan := r[0]
		parentID := ""
		if r[1] != "" {
			parentID = schema.OrgID(r[1])
		}
		orgs = append(orgs, schema.Organization{
			ID:              schema.OrgID(idOrgan),
			Name:            strings.TrimSpace(r[4]),
			Classification:  "organization",
			ParentID:        parentID,
			FoundingDate:    ParseDate(r[6]),
			DissolutionDate: ParseDate(r[7]),
			Identifiers:     []schema.Identifier{{Scheme: "psp", Identifier: idOrgan}},
			Sources:         []schema.Source{{URL: MembersSourceURL, Note: "id_organ=" + idOrgan}},
		})
	}
	log.Info().Int("rows", len(orgs)).Msg("Standardized organizations")

	// zarazeni.unl:
	// 0 id_osoba | 1 id_organ | 2 membership kind | 3 od_o | 4 do_o | 5-7 unused
	zarazeni, err := unl.ReadFile(filepath.Join(rawDir, "zarazeni.unl"), zarazeniCols)
	if err != nil {
		return nil, err
	}
	memberships := make([]schema.Membership, 0, len(zarazeni))
	for _, r := range zarazeni {
		idOsoba, idOrgan := r[0], r[1]
		memberships = append(memberships, schema.Membership{
			ID:             schema.MembershipID(idOsoba, idOrgan, r[3], r[4]),
			PersonID:       schema.PersonID(idOsoba),
			OrganizationID: schema.OrgID(idOrgan),
			StartDate:      ParseDate(r[3]),
			EndDate:        ParseDate(r[4]),
			Sources: []schema.Source{{
				URL:  MembersSourceURL,
				Note: "id_osoba=" + idOsoba + " id_organ=" + idOrgan,
			}},
		})
	}
	log.Info().Int("rows", len(memberships)).Msg("Standardized memberships")

	return &MembersResult{Persons: persons, Organizations: orgs, Memberships: memberships}, nil
}

// WriteMembers writes the three standardized tables as CSV into outDir and
// returns the file paths keyed by dataset name.
func WriteMembers(ctx context.Context, res *MembersResult, outDir string) (map[string]string, error) {
	paths := map[string]string{
		"persons":       filepath.Join(outDir, "persons.csv"),
		"organizations": filepath.Join(outDir, "organizations.csv"),
		"memberships":   filepath.Join(outDir, "memberships.csv"),
	}
	if err := schema.WriteCSV(paths["persons"], schema.PersonColumns, res.Persons); err != nil {
		return nil, err
	}
	if err := schema.WriteCSV(paths["organizations"], schema.OrganizationColumns, res.Organizations); err != nil {
		return nil, err
	}
	if err := schema.WriteCSV(paths["memberships"], schema.MembershipColumns, res.Memberships); err != nil {
		return nil, err
	}
	log := logging.Ctx(ctx)
	for dataset, path := range paths {
		log.Info().Str("dataset", dataset).Str("path", path).Msg("Wrote standardized table")
	}
	return paths, nil
}

// DeputyToPersonMap reads poslanec.unl and returns the id_poslanec → id_osoba
// mapping used to attribute individual votes to persons.
func DeputyToPersonMap(rawDir string) (map[string]string, error) {
	rows, err := unl.ReadFile(filepath.Join(rawDir, "poslanec.unl"), poslanecCols)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(rows))
	for _, r := range rows {
		if r[0] != "" && r[1] != "" {
			m[r[0]] = r[1]
		}
	}
	return m, nil
}
