// Package schema defines the Legislature Data Standard (dt.*) records this
// pipeline produces, plus the writers for their CSV, JSON and Parquet
// serializations. The column and field layouts are externally defined by the
// standard; this package only mirrors them.
package schema

// Identifier is an external identifier in a named scheme.
type Identifier struct {
	Scheme     string `json:"scheme"`
	Identifier string `json:"identifier"`
}

// Source records where a row was taken from.
type Source struct {
	URL  string `json:"url"`
	Note string `json:"note,omitempty"`
}

// Person is a row of the dt.persons table.
type Person struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	GivenName   string       `json:"given_name,omitempty"`
	FamilyName  string       `json:"family_name,omitempty"`
	BirthDate   string       `json:"birth_date,omitempty"`
	DeathDate   string       `json:"death_date,omitempty"`
	Gender      string       `json:"gender,omitempty"`
	Identifiers []Identifier `json:"identifiers,omitempty"`
	Sources     []Source     `json:"sources,omitempty"`
}

// Organization is a row of the dt.organizations table.
type Organization struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Classification  string       `json:"classification,omitempty"`
	ParentID        string       `json:"parent_id,omitempty"`
	FoundingDate    string       `json:"founding_date,omitempty"`
	DissolutionDate string       `json:"dissolution_date,omitempty"`
	Identifiers     []Identifier `json:"identifiers,omitempty"`
	Sources         []Source     `json:"sources,omitempty"`
}

// Membership is a row of the dt.memberships table.
type Membership struct {
	ID             string   `json:"id"`
	PersonID       string   `json:"person_id"`
	OrganizationID string   `json:"organization_id"`
	StartDate      string   `json:"start_date,omitempty"`
	EndDate        string   `json:"end_date,omitempty"`
	Sources        []Source `json:"sources,omitempty"`
}

// Vote is a row of the dt.votes table. This is the only large table; it is
// streamed rather than held in memory.
type Vote struct {
	VoteEventID string `json:"vote_event_id" parquet:"vote_event_id"`
	VoterID     string `json:"voter_id"      parquet:"voter_id"`
	Option      string `json:"option"        parquet:"option"`
}

// VoteEventExtras carries PSP-specific numbering a vote event keeps outside
// the standard columns.
type VoteEventExtras struct {
	SittingNumber    *string `json:"sitting_number"     parquet:"sitting_number,optional"`
	VotingNumber     *string `json:"voting_number"      parquet:"voting_number,optional"`
	AgendaItemNumber *string `json:"agenda_item_number" parquet:"agenda_item_number,optional"`
}

// VoteEvent is a row of the dt.vote-events table.
type VoteEvent struct {
	ID             string          `json:"id"              parquet:"id"`
	Identifier     string          `json:"identifier"      parquet:"identifier"`
	MotionID       string          `json:"motion_id"       parquet:"motion_id"`
	OrganizationID string          `json:"organization_id" parquet:"organization_id"`
	Extras         VoteEventExtras `json:"extras"          parquet:"extras"`
	StartDate      *string         `json:"start_date"      parquet:"start_date,optional"`
	Result         *string         `json:"result"          parquet:"result,optional"`
	Sources        []Source        `json:"sources"         parquet:"sources"`
}

// Motion is a row of the dt.motions table.
type Motion struct {
	ID             string          `json:"id"              parquet:"id"`
	Identifier     string          `json:"identifier"      parquet:"identifier"`
	OrganizationID string          `json:"organization_id" parquet:"organization_id"`
	Extras         VoteEventExtras `json:"extras"          parquet:"extras"`
	Date           *string         `json:"date"            parquet:"date,optional"`
	Text           *string         `json:"text"            parquet:"text,optional"`
	Result         *string         `json:"result"          parquet:"result,optional"`
	Sources        []Source        `json:"sources"         parquet:"sources"`
}

// VoteEventObjection is a row of the dt.vote-event-objections table.
// PSP publishes only void (zmatecne) vote IDs, so type and outcome are fixed
// and the referencing fields the standard allows are absent.
type VoteEventObjection struct {
	ID          string   `json:"id"`
	VoteEventID string   `json:"vote_event_id"`
	Type        string   `json:"type"`
	Outcome     string   `json:"outcome"`
	Date        string   `json:"date,omitempty"`
	Sources     []Source `json:"sources"`
}

// Vocabulary values for vote options and results.
const (
	OptionYes       = "yes"
	OptionNo        = "no"
	OptionAbstain   = "abstain"
	OptionNotVoting = "not voting"
	OptionAbsent    = "absent"
	OptionExcused   = "excused"
	OptionNotMember = "not member"
	OptionUnknown   = "unknown"

	ResultPass   = "pass"
	ResultFail   = "fail"
	ResultPassed = "passed"
	ResultFailed = "failed"
)

// VoteOptions is the closed set of values the votes table may carry.
var VoteOptions = map[string]bool{
	OptionYes:       true,
	OptionNo:        true,
	OptionAbstain:   true,
	OptionNotVoting: true,
	OptionAbsent:    true,
	OptionExcused:   true,
	OptionNotMember: true,
	OptionUnknown:   true,
}

// ID prefixes for PSP-scoped identifiers.
const (
	PersonIDPrefix    = "psp:person:"
	OrgIDPrefix       = "psp:org:"
	VoteEventIDPrefix = "psp:vote-event:"
	MotionIDPrefix    = "psp:motion:"
	ObjectionIDPrefix = "psp:objection:"
)

// PersonID builds a standard person id from a raw PSP id_osoba.
func PersonID(idOsoba string) string { return PersonIDPrefix + idOsoba }

// OrgID builds a standard organization id from a raw PSP id_organ.
func OrgID(idOrgan string) string { return OrgIDPrefix + idOrgan }

// VoteEventID builds a standard vote event id from a raw PSP id_hlasovani.
func VoteEventID(idHlasovani string) string { return VoteEventIDPrefix + idHlasovani }

// MotionID builds a standard motion id from a raw PSP id_hlasovani.
func MotionID(idHlasovani string) string { return MotionIDPrefix + idHlasovani }

// ObjectionID builds a standard objection id from a raw PSP id_hlasovani.
func ObjectionID(idHlasovani string) string { return ObjectionIDPrefix + idHlasovani }

// MembershipID builds a standard membership id. Start and end dates keep the
// raw PSP form so re-runs generate identical ids.
func MembershipID(idOsoba, idOrgan, rawStart, rawEnd string) string {
	return "psp:membership:" + idOsoba + ":" + idOrgan + ":" + rawStart + ":" + rawEnd
}
