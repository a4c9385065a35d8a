// Package pipeline sequences the nightly run: download, standardize,
// validate, analyze, publish, with run bookkeeping in the local registry.
package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/legislature-data/cz-psp-pipeline/internal/analyses"
	"github.com/legislature-data/cz-psp-pipeline/internal/objectstore"
	"github.com/legislature-data/cz-psp-pipeline/internal/objectstore/b2"
	"github.com/legislature-data/cz-psp-pipeline/internal/objectstore/s3"
	"github.com/legislature-data/cz-psp-pipeline/internal/registry"
	"github.com/legislature-data/cz-psp-pipeline/internal/snapshot"
	"github.com/legislature-data/cz-psp-pipeline/internal/sources/psp"
	"github.com/legislature-data/cz-psp-pipeline/internal/standardize"
	"github.com/legislature-data/cz-psp-pipeline/internal/transport"
	"github.com/legislature-data/cz-psp-pipeline/internal/validate"
	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// Config controls a pipeline run. Zero values fall back to the defaults the
// published data layout expects.
type Config struct {
	WorkDir     string // scratch space, default "work"
	DataDir     string // committed pointer files, default "data"
	AnalysesDir string // analysis outputs, default "analyses"

	SchemasConfig string // default "config/schemas.yml"

	MembersURL string
	VotesURL   string

	ObjectionMinID int

	Provider     string // "b2" (default) or "s3"
	RemotePrefix string
}

func (c Config) withDefaults() Config {
	if c.WorkDir == "" {
		c.WorkDir = "work"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.AnalysesDir == "" {
		c.AnalysesDir = "analyses"
	}
	if c.SchemasConfig == "" {
		c.SchemasConfig = filepath.Join("config", "schemas.yml")
	}
	if c.MembersURL == "" {
		c.MembersURL = psp.DefaultMembersURL
	}
	if c.VotesURL == "" {
		c.VotesURL = psp.DefaultVotesURL
	}
	if c.ObjectionMinID == 0 {
		c.ObjectionMinID = standardize.DefaultObjectionMinID
	}
	if c.Provider == "" {
		c.Provider = "b2"
	}
	if c.RemotePrefix == "" {
		c.RemotePrefix = constants.DefaultRemotePrefix
	}
	return c
}

// Dirs are the concrete paths of one run, derived from the config.
type Dirs struct {
	RawMembers string
	RawVotes   string
	Standard   string
	Publish    string
	Cache      string
	Database   string
}

func (c Config) dirs() Dirs {
	return Dirs{
		RawMembers: filepath.Join(c.WorkDir, "raw", "poslanci"),
		RawVotes:   filepath.Join(c.WorkDir, "raw", "hl-2025ps"),
		Standard:   filepath.Join(c.WorkDir, "standard"),
		Publish:    filepath.Join(c.WorkDir, "publish"),
		Cache:      filepath.Join(c.WorkDir, "cache"),
		Database:   filepath.Join(c.WorkDir, "db", "pipeline.db"),
	}
}

// Pipeline runs the stages against a shared configuration.
type Pipeline struct {
	cfg    Config
	dirs   Dirs
	source *psp.Source
	client *transport.Client
	store  objectstore.Store
	reg    *registry.Registry
}

// New builds a pipeline. Storage credentials are read from the environment;
// when they are unset publishing degrades to local pointer files and the
// registry records the run all the same.
func New(ctx context.Context, cfg Config) (*Pipeline, error) {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:    cfg,
		dirs:   cfg.dirs(),
		source: psp.New(),
		client: transport.New(),
	}

	store, err := openStore(ctx, cfg.Provider)
	if err != nil {
		return nil, err
	}
	p.store = store
	if store == nil {
		logging.Ctx(ctx).Warn().Msg("Object storage credentials unset, publishing disabled")
	}

	reg, err := registry.Open(p.dirs.Database)
	if err != nil {
		// The registry is advisory, a broken database never blocks a run.
		logging.Ctx(ctx).Warn().Err(err).Msg("Registry unavailable")
	} else {
		p.reg = reg
	}
	return p, nil
}

// Close releases the registry handle.
func (p *Pipeline) Close() error {
	return p.reg.Close()
}

// Registry exposes the run history store, nil when unavailable.
func (p *Pipeline) Registry() *registry.Registry {
	return p.reg
}

func openStore(ctx context.Context, provider string) (objectstore.Store, error) {
	switch provider {
	case "s3":
		cfg, err := s3.FromEnv()
		if errors.IsCredentialsMissing(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return s3.New(ctx, cfg)
	default:
		cfg, err := b2.FromEnv()
		if errors.IsCredentialsMissing(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return b2.New(cfg), nil
	}
}

// Run executes the full sequence, recording each stage in the registry.
func (p *Pipeline) Run(ctx context.Context) error {
	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"download", p.Download},
		{"standardize", p.Standardize},
		{"validate", p.Validate},
		{"analyze", p.Analyze},
		{"validate-analyses", p.ValidateAnalyses},
		{"publish", p.PublishSnapshots},
	}
	for _, stage := range stages {
		started := time.Now()
		err := stage.fn(ctx)
		p.recordRun(ctx, stage.name, started, err)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) recordRun(ctx context.Context, stage string, started time.Time, runErr error) {
	if p.reg == nil {
		return
	}
	run := registry.Run{
		Stage:      stage,
		Status:     "ok",
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if runErr != nil {
		run.Status = "failed"
		run.Detail = runErr.Error()
	}
	if _, err := p.reg.RecordRun(ctx, run); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("stage", stage).Msg("Failed to record run")
	}
}

// Download fetches and unpacks both PSP archives into the raw directories.
func (p *Pipeline) Download(ctx context.Context) error {
	zipDir := filepath.Join(p.cfg.WorkDir, "raw")
	archives := []struct {
		url, zipName, dest string
	}{
		{p.cfg.MembersURL, "poslanci.zip", p.dirs.RawMembers},
		{p.cfg.VotesURL, "hl-2025ps.zip", p.dirs.RawVotes},
	}
	for _, a := range archives {
		names, err := p.source.FetchAndUnpack(ctx, a.url, filepath.Join(zipDir, a.zipName), a.dest)
		if err != nil {
			return err
		}
		logging.Ctx(ctx).Info().Str("url", a.url).Int("entries", len(names)).Msg("Unpacked archive")
	}
	return nil
}

// Standardize converts the raw UNL tables into the standard tables under
// work/standard, with Parquet publish copies of the vote tables.
func (p *Pipeline) Standardize(ctx context.Context) error {
	members, err := standardize.Members(ctx, p.dirs.RawMembers)
	if err != nil {
		return err
	}
	if _, err := standardize.WriteMembers(ctx, members, p.dirs.Standard); err != nil {
		return err
	}

	outputs := standardize.DefaultVotesOutputs(p.dirs.Standard, p.dirs.Publish)
	if _, err := standardize.Votes(ctx, p.dirs.RawVotes, p.dirs.RawMembers, outputs); err != nil {
		return err
	}

	objectionsPath := filepath.Join(p.dirs.Standard, "vote_event_objections.json")
	if _, err := standardize.WriteObjections(ctx, p.dirs.RawVotes, objectionsPath, p.cfg.ObjectionMinID); err != nil {
		return err
	}
	return nil
}

// Validate checks the standardized tables against the published table schemas
// and the closed vote vocabularies.
func (p *Pipeline) Validate(ctx context.Context) error {
	if err := validate.Tables(ctx, p.client, p.cfg.SchemasConfig, p.dirs.Standard); err != nil {
		return err
	}
	if err := validate.VotesTable(filepath.Join(p.dirs.Standard, "votes.csv")); err != nil {
		return err
	}
	if err := validate.VoteEventsSample(filepath.Join(p.dirs.Standard, "vote_events.json")); err != nil {
		return err
	}
	return validate.MotionsSample(filepath.Join(p.dirs.Standard, "motions.json"))
}

// Analyze runs the built-in analyses.
func (p *Pipeline) Analyze(ctx context.Context) error {
	return analyses.RunAll(ctx, p.dirs.Standard, p.dirs.RawMembers, p.cfg.AnalysesDir)
}

// AnalyzeCurrentMPs writes the flat current MPs listing. It is not part of
// Analyze and only runs when asked for by name.
func (p *Pipeline) AnalyzeCurrentMPs(ctx context.Context) error {
	return analyses.RunCurrentMPs(ctx, p.dirs.Standard, p.dirs.RawMembers, p.cfg.AnalysesDir)
}

// ValidateAnalyses checks the analysis outputs.
func (p *Pipeline) ValidateAnalyses(_ context.Context) error {
	out := func(name, file string) string {
		return filepath.Join(p.cfg.AnalysesDir, name, "outputs", file)
	}
	if err := validate.CurrentTermOutput(out("current-term", "current_term.json")); err != nil {
		return err
	}
	if err := validate.GroupsOutput(out("current-groups", "current_groups.json"), out("current-groups", "current_groups.csv")); err != nil {
		return err
	}
	if err := validate.GroupsOutput(out("all-groups", "all_groups.json"), out("all-groups", "all_groups.csv")); err != nil {
		return err
	}
	if err := validate.MembersOutput(out("current-members", "current_members.csv"), out("current-members", "current_members.json")); err != nil {
		return err
	}
	return validate.MembersOutput(out("all-members", "all_members.csv"), out("all-members", "all_members.json"))
}

// Datasets lists the six published datasets with their local files.
func (p *Pipeline) Datasets() []snapshot.Dataset {
	return []snapshot.Dataset{
		{Name: "persons", LocalPath: filepath.Join(p.dirs.Standard, "persons.csv"), Format: "csv"},
		{Name: "organizations", LocalPath: filepath.Join(p.dirs.Standard, "organizations.csv"), Format: "csv"},
		{Name: "memberships", LocalPath: filepath.Join(p.dirs.Standard, "memberships.csv"), Format: "csv"},
		{Name: "votes", LocalPath: filepath.Join(p.dirs.Publish, "votes.parquet"), Format: "parquet"},
		{Name: "vote-events", LocalPath: filepath.Join(p.dirs.Publish, "vote_events.parquet"), Format: "parquet"},
		{Name: "motions", LocalPath: filepath.Join(p.dirs.Publish, "motions.parquet"), Format: "parquet"},
	}
}

// PublishSnapshots uploads all datasets and writes the latest.json pointers,
// stamped with the term identity from the current-term analysis output.
func (p *Pipeline) PublishSnapshots(ctx context.Context) error {
	term, err := p.termRef()
	if err != nil {
		return err
	}

	publisher := snapshot.NewPublisher(p.store, p.cfg.RemotePrefix)
	published, err := publisher.Publish(ctx, p.Datasets(), p.cfg.DataDir, term)
	if err != nil {
		return err
	}

	if p.reg != nil {
		for _, s := range published {
			record := registry.Snapshot{
				Dataset:    s.Dataset,
				Key:        s.Key,
				Provider:   s.Provider,
				Bucket:     s.Bucket,
				Size:       s.Size,
				SHA1:       s.SHA1,
				UploadedAt: s.UploadedAt,
			}
			if err := p.reg.RecordSnapshot(ctx, record); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Str("dataset", s.Dataset).Msg("Failed to record snapshot")
			}
		}
	}
	return nil
}

// termRef reads the term identity out of the current-term analysis output.
func (p *Pipeline) termRef() (snapshot.TermRef, error) {
	path := filepath.Join(p.cfg.AnalysesDir, "current-term", "outputs", "current_term.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot.TermRef{}, errors.WrapIO("read", path, err)
	}
	var term analyses.Term
	if err := json.Unmarshal(data, &term); err != nil {
		return snapshot.TermRef{}, errors.WrapParse("json", path, err)
	}
	if term.ID == "" || len(term.Identifiers) == 0 {
		return snapshot.TermRef{}, errors.NewValidationError("term", path, "current term output missing id or identifiers")
	}
	return snapshot.TermRef{Identifier: term.Identifiers[0].Identifier, OrgID: term.ID}, nil
}
