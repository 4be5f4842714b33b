// Package analysis runs the full flow pipeline: normalize, linearize, trace,
// narrate and lint. A fatal error yields no report at all.
package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowlens/internal/engine"
	"github.com/rendis/flowlens/internal/loader"
	"github.com/rendis/flowlens/internal/logging"
	"github.com/rendis/flowlens/internal/narrative"
	"github.com/rendis/flowlens/internal/scheduler"
	"github.com/rendis/flowlens/internal/trace"
	"github.com/rendis/flowlens/internal/validation"
	"github.com/rendis/flowlens/pkg/schema"
)

// FlowInfo is the descriptive header of an analyzed flow.
type FlowInfo struct {
	Label       string  `json:"label" yaml:"label"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	ProcessType string  `json:"processType,omitempty" yaml:"processType,omitempty"`
	Status      string  `json:"status,omitempty" yaml:"status,omitempty"`
	APIVersion  float64 `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
}

// Report is the complete output of one analysis.
type Report struct {
	ID          string                   `json:"id" yaml:"id"`
	CreatedAt   time.Time                `json:"createdAt" yaml:"createdAt"`
	Flow        FlowInfo                 `json:"flow" yaml:"flow"`
	Rows        []trace.Row              `json:"rows" yaml:"rows"`
	Narrative   []string                 `json:"narrative" yaml:"narrative"`
	Resources   []trace.Row              `json:"resources,omitempty" yaml:"resources,omitempty"`
	Issues      []schema.ValidationIssue `json:"issues,omitempty" yaml:"issues,omitempty"`
	Unreachable []string                 `json:"unreachable,omitempty" yaml:"unreachable,omitempty"`

	// Graph is the annotated element graph. It is not persisted.
	Graph *engine.Graph `json:"-" yaml:"-"`
}

// Config holds the optional collaborators of an Analyzer.
type Config struct {
	Logger    *slog.Logger
	Rules     []validation.Rule    // lint rules added to the built-in set
	Schedules *scheduler.Describer // nil uses scheduler defaults
	Now       func() time.Time
}

// Analyzer runs analyses. It is safe for concurrent use: every call builds
// its own graph.
type Analyzer struct {
	loader    *loader.Loader
	validator *validation.FlowValidator
	builder   *trace.Builder
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	fv, err := validation.NewFlowValidator(cfg.Rules...)
	if err != nil {
		return nil, err
	}
	ld, err := loader.NewDefault()
	if err != nil {
		return nil, err
	}

	schedules := cfg.Schedules
	if schedules == nil {
		schedules = scheduler.NewDescriber(scheduler.DefaultRuns)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Analyzer{
		loader:    ld,
		validator: fv,
		builder:   trace.NewBuilder(trace.NewFormatter(schedules)),
		logger:    logging.Default(cfg.Logger),
		now:       now,
	}, nil
}

// Loader returns the payload loader used by AnalyzeJSON.
func (a *Analyzer) Loader() *loader.Loader {
	return a.loader
}

// AnalyzeJSON loads a raw payload and analyzes it.
func (a *Analyzer) AnalyzeJSON(ctx context.Context, data []byte) (*Report, error) {
	def, err := a.loader.Load(ctx, data)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, def)
}

// Analyze runs the pipeline over def. On a fatal error the report is nil.
func (a *Analyzer) Analyze(ctx context.Context, def *schema.FlowDefinition) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeMalformedDefinition, "flow definition is nil")
	}

	id := uuid.NewString()
	ctx = logging.WithIDs(ctx, def.Label, id)
	log := a.logger

	g, err := engine.Normalize(def)
	if err != nil {
		log.DebugContext(ctx, "normalize failed", slog.String("error", err.Error()))
		return nil, err
	}
	log.DebugContext(ctx, "normalized", slog.Int("elements", len(g.Names)))

	if err := engine.Linearize(g); err != nil {
		log.DebugContext(ctx, "linearize failed", slog.String("error", err.Error()))
		return nil, err
	}
	ordered := g.Ordered()
	log.DebugContext(ctx, "linearized", slog.Int("visited", len(ordered)))

	for _, el := range ordered {
		for _, br := range el.Branches {
			if br.Dangling() {
				log.DebugContext(logging.WithElement(ctx, el.Name), "connector target missing",
					slog.String("target", br.Target))
			}
		}
	}

	report := &Report{
		ID:        id,
		CreatedAt: a.now().UTC(),
		Flow: FlowInfo{
			Label:       def.Label,
			Description: def.Description,
			ProcessType: def.ProcessType,
			Status:      def.Status,
			APIVersion:  def.APIVersion,
		},
		Rows:      a.builder.Build(ordered),
		Narrative: narrative.Summarize(ordered),
		Resources: a.builder.Resources(g),
		Graph:     g,
	}
	for _, el := range g.Unreachable() {
		report.Unreachable = append(report.Unreachable, el.Name)
	}
	if report.Narrative == nil {
		report.Narrative = []string{}
	}

	report.Issues = a.validator.Validate(ctx, g).Issues()
	log.DebugContext(ctx, "analysis complete",
		slog.Int("rows", len(report.Rows)),
		slog.Int("sentences", len(report.Narrative)),
		slog.Int("issues", len(report.Issues)))

	return report, nil
}
