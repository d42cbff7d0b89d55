// Package connector drives a synchronization run: load the IR model, sync
// the schema, walk the node tree in dependency order, delete orphans, and
// finalize — with per-phase persistence so an interrupted run resumes cleanly
// from the next phase.
package connector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/karsol/graft/internal/ir"
	"github.com/karsol/graft/internal/loader"
	"github.com/karsol/graft/internal/node"
	"github.com/karsol/graft/internal/repo"
	"github.com/karsol/graft/internal/schema"
)

// Config is the per-job configuration, typically parsed from a YAML job
// file.
type Config struct {
	// SubjectKey selects the container node to synchronize.
	SubjectKey string `yaml:"subject" json:"subject"`

	// DeleteOrphans enables deletion of records whose source rows
	// disappeared. When disabled, orphans survive with a warning.
	DeleteOrphans bool `yaml:"delete_orphans" json:"delete_orphans"`

	// DynamicSchemaName names the schema generated from embedded DMO class
	// definitions.
	DynamicSchemaName string `yaml:"dynamic_schema" json:"dynamic_schema"`

	// DomainSchemas lists the pre-built schemas the dynamic schema
	// references.
	DomainSchemas []string `yaml:"domain_schemas,omitempty" json:"domain_schemas,omitempty"`
}

// RunSummary reports what a run did. A second run over unchanged source data
// must report zero inserts, zero updates and zero deletes.
type RunSummary struct {
	RunID                 string
	FastPath              bool
	SchemaState           schema.State
	ElementsNew           int
	ElementsChanged       int
	ElementsUnchanged     int
	RelationshipsInserted int
	RelationshipsSkipped  int
	ReferencesSet         int
	ResolutionSkips       int
	OrphansDeleted        int
	OrphansRetained       int
}

// Writes returns the total number of data writes the run issued.
func (s RunSummary) Writes() int {
	return s.ElementsNew + s.ElementsChanged + s.RelationshipsInserted + s.ReferencesSet + s.OrphansDeleted
}

// Connector is the orchestrator of one integration. Nodes hold no back
// reference to it; the connector walks the tree and owns all run-scoped
// state: the IR model, the id caches and the seen set.
type Connector struct {
	repo     *repo.Repository
	ldr      loader.Loader
	tree     *node.Tree
	registry *schema.Registry
	cfg      Config
	log      *slog.Logger

	state RunState
	model *ir.Model

	// Run-scoped caches, reset at the start of every run.
	subjectID  int64
	scope      string
	modelIDs   map[string]int64 // model node key -> model row id
	modelElems map[string]int64 // model node key -> backing element id
	elementIDs map[string]int64 // instance key -> element id
	relIDs     map[string]int64 // class|source|target -> relationship id
	seen       map[int64]bool

	channel *repo.Channel
	summary RunSummary
}

// New creates a connector. The registry is owned by the connector and
// initialized fresh; it is never process-global.
func New(r *repo.Repository, ldr loader.Loader, tree *node.Tree, cfg Config) (*Connector, error) {
	if cfg.SubjectKey == "" {
		return nil, fmt.Errorf("config: subject key must not be empty")
	}
	if cfg.DynamicSchemaName == "" {
		return nil, fmt.Errorf("config: dynamic schema name must not be empty")
	}
	return &Connector{
		repo:     r,
		ldr:      ldr,
		tree:     tree,
		registry: schema.NewRegistry(),
		cfg:      cfg,
		log:      slog.Default(),
	}, nil
}

// State returns the current run state.
func (c *Connector) State() RunState { return c.state }

// Registry returns the run's schema registry.
func (c *Connector) Registry() *schema.Registry { return c.registry }

// Run executes the job. All-or-nothing from the caller's perspective; the
// only partial-progress state is what earlier phases already committed and
// pushed, which the next run resumes from via change detection.
func (c *Connector) Run(ctx context.Context) (*RunSummary, error) {
	subject, err := c.resolveSubject()
	if err != nil {
		return nil, c.fail(ErrCodeRepository, err)
	}

	c.resetRunState()
	c.log.Info("run starting",
		"run_id", c.summary.RunID,
		"subject", subject.Key(),
		"engine", ir.EngineVersion,
		"ir", ir.IRVersion,
	)

	c.state = StateLoaderSync
	if err := c.syncLoader(ctx, subject); err != nil {
		return nil, err
	}

	if c.summary.FastPath {
		// The source connection itself is unchanged: the job-level
		// idempotence short circuit. Schema, data and orphan phases are
		// skipped entirely.
		c.log.Info("source unchanged, skipping run", "subject", subject.Key())
		c.state = StateDone
		summary := c.summary
		return &summary, nil
	}

	c.state = StateDomainSchemaSync
	if err := c.syncDomainSchemas(ctx); err != nil {
		return nil, err
	}

	c.state = StateDynamicSchemaSync
	if err := c.syncDynamicSchema(ctx); err != nil {
		return nil, err
	}

	c.state = StateDataSync
	if err := c.syncData(ctx, subject); err != nil {
		return nil, err
	}

	c.state = StateOrphanSync
	if err := c.syncOrphans(ctx); err != nil {
		return nil, err
	}

	c.state = StateExtentSync
	if err := c.repo.RecomputeExtents(ctx); err != nil {
		return nil, c.fail(ErrCodeRepository, err)
	}
	if err := c.repo.PersistChanges(ctx, "extent sync"); err != nil {
		return nil, c.fail(ErrCodeRepository, err)
	}

	c.state = StateDone
	c.log.Info("run complete",
		"run_id", c.summary.RunID,
		"elements_new", c.summary.ElementsNew,
		"elements_changed", c.summary.ElementsChanged,
		"elements_unchanged", c.summary.ElementsUnchanged,
		"relationships_inserted", c.summary.RelationshipsInserted,
		"orphans_deleted", c.summary.OrphansDeleted,
	)
	summary := c.summary
	return &summary, nil
}

func (c *Connector) resolveSubject() (*node.SubjectNode, error) {
	n := c.tree.Find(c.cfg.SubjectKey)
	if n == nil {
		return nil, fmt.Errorf("subject node %q not found in tree", c.cfg.SubjectKey)
	}
	subject, ok := n.(*node.SubjectNode)
	if !ok {
		return nil, fmt.Errorf("node %q is a %s, not a subject", c.cfg.SubjectKey, n.Kind())
	}
	return subject, nil
}

func (c *Connector) resetRunState() {
	c.state = StateIdle
	c.model = ir.NewModel()
	c.modelIDs = make(map[string]int64)
	c.modelElems = make(map[string]int64)
	c.elementIDs = make(map[string]int64)
	c.relIDs = make(map[string]int64)
	c.seen = make(map[int64]bool)
	c.channel = nil
	c.summary = RunSummary{RunID: uuid.NewString()}
}

// enterChannel asserts the lock-state preconditions and takes the channel
// rooted at root. The previous channel must have been exited; still holding
// it is a programming error, not a transient condition.
func (c *Connector) enterChannel(ctx context.Context, root string) error {
	ch, err := c.repo.EnterChannel(ctx, root, repo.ChannelPreconditions{
		BulkMode:           true,
		PreviousRootLocked: c.channel.Locked(),
	})
	if err != nil {
		return c.fail(ErrCodeChannel, err)
	}
	c.channel = ch
	return nil
}

// persistPhase commits and pushes the phase's writes, then releases the
// channel. Each phase persists independently so interruption resumes at the
// next phase boundary.
func (c *Connector) persistPhase(ctx context.Context, description string) error {
	if err := c.repo.PersistChanges(ctx, description); err != nil {
		return c.fail(ErrCodeRepository, err)
	}
	if err := c.channel.Exit(ctx); err != nil {
		return c.fail(ErrCodeChannel, err)
	}
	return nil
}

func (c *Connector) fail(code RunErrorCode, err error) error {
	failedIn := c.state
	c.state = StateFailed
	return &RunError{Code: code, State: failedIn, Message: "run aborted", Err: err}
}

// scopeID renders the subject element id as the code scope for everything
// synchronized under it.
func scopeID(subjectID int64) string {
	return strconv.FormatInt(subjectID, 10)
}
