package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/seitarof/gen-nodewalk/internal/classifier"
	"github.com/seitarof/gen-nodewalk/internal/generator"
	"github.com/seitarof/gen-nodewalk/internal/graph"
	"github.com/seitarof/gen-nodewalk/internal/matcher"
	"github.com/seitarof/gen-nodewalk/internal/parser"
	"github.com/seitarof/gen-nodewalk/internal/rules"
	"github.com/seitarof/gen-nodewalk/internal/schema"
	"github.com/seitarof/gen-nodewalk/internal/walk"
)

// Runner orchestrates parser/graph/classifier/generator layers.
type Runner interface {
	Run(ctx context.Context, cfg *Config) error
}

type runnerImpl struct {
	parser    parser.Parser
	matcher   matcher.RuleMatcher
	generator generator.Generator
	writer    generator.FileWriter
	logger    *slog.Logger
	out       io.Writer
}

// RunnerOption configures a runner.
type RunnerOption func(*runnerImpl)

// WithLogger sets the event logger. The default discards events.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *runnerImpl) { r.logger = l }
}

// WithOutput sets where explain mode prints. The default is stdout.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *runnerImpl) { r.out = w }
}

// NewRunner creates a default runner implementation. w writes plan
// manifests.
func NewRunner(
	p parser.Parser,
	m matcher.RuleMatcher,
	g generator.Generator,
	w generator.FileWriter,
	opts ...RunnerOption,
) Runner {
	r := &runnerImpl{
		parser:    p,
		matcher:   m,
		generator: g,
		writer:    w,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run generates every target, at most cfg.Workers at a time. In explain mode
// it walks the sample with the single target's plan instead.
func (r *runnerImpl) Run(ctx context.Context, cfg *Config) error {
	set, err := r.loadRules(cfg.Rules)
	if err != nil {
		return err
	}

	if cfg.Sample != "" {
		if len(cfg.Targets) != 1 {
			return ConfigError("explain", fmt.Errorf("--sample needs exactly one target, got %d", len(cfg.Targets)))
		}
		plan, err := r.runTarget(ctx, set, cfg.Targets[0])
		if err != nil {
			return err
		}
		return r.explain(plan, cfg.Sample)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, t := range cfg.Targets {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				_, err := r.runTarget(ctx, set, t)
				return err
			}
		})
	}
	return eg.Wait()
}

func (r *runnerImpl) loadRules(path string) (*rules.Set, error) {
	if path == "" {
		set, err := rules.Default()
		if err != nil {
			return nil, GeneralError("load rules", err)
		}
		return set, nil
	}
	set, err := rules.LoadFile(path)
	if err != nil {
		return nil, ConfigError("load rules", err)
	}
	return set, nil
}

// runTarget classifies one schema version and writes its artifacts.
func (r *runnerImpl) runTarget(ctx context.Context, set *rules.Set, t *Target) (*classifier.Plan, error) {
	v := t.SchemaVersion()
	if !v.Valid() {
		parsed, err := rules.ParseVersion(t.Version)
		if err != nil {
			return nil, ConfigError("target", err)
		}
		v = parsed
	}
	log := r.logger.With("version", v.String())

	tbl, err := set.For(v)
	if err != nil {
		return nil, ConfigError("resolve rules", err)
	}

	s, err := r.loadSchema(t)
	if err != nil {
		return nil, SchemaError("parse schema", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info("generate.start", "input", t.String(), "structs", len(s.Structs))

	for _, u := range r.matcher.Unmatched(s, tbl) {
		log.Warn("rules.unmatched", "rule", u.Rule, "struct", u.Struct, "field", u.Field, "reason", string(u.Reason))
	}

	g, err := graph.Build(s)
	if err != nil {
		return nil, SchemaError("build subtype graph", err)
	}
	fam, err := graph.Discover(g, tbl.TagType)
	if err != nil {
		return nil, SchemaError("discover node family", err)
	}
	log.Debug("family.discovered", "members", fam.Len())

	plan, err := classifier.New(tbl, classifier.DefaultRules()...).Classify(s, fam)
	if err != nil {
		var batch *classifier.BatchError
		if errors.As(err, &batch) {
			for _, p := range batch.Problems {
				log.Error("classify.failed", "struct", p.Struct, "field", p.Field, "kind", string(p.Kind), "shape", p.Shape)
			}
		}
		if errors.Is(err, classifier.ErrUnclassifiable) {
			return nil, ClassifyError("classify", err)
		}
		return nil, GeneralError("classify", err)
	}

	var files []string
	if t.Output != "" {
		if err := r.generator.Generate(t, plan); err != nil {
			return nil, GeneralError("generate "+t.Output, err)
		}
		files = append(files, t.Output)
	}
	if t.Plan != "" {
		if err := generator.WritePlan(r.writer, t.Plan, plan); err != nil {
			return nil, GeneralError("plan "+t.Plan, err)
		}
		files = append(files, t.Plan)
	}

	log.Info("generate.done",
		"family", fam.Len(),
		"programs", len(plan.Programs),
		"dispatch", len(plan.Dispatch),
		"files", strings.Join(files, ","),
	)
	return plan, nil
}

func (r *runnerImpl) loadSchema(t *Target) (*schema.Schema, error) {
	if t.Schema != "" {
		return schema.LoadFile(t.Schema)
	}
	return r.parser.Load(t.Pkg)
}

// explain walks the sample and prints one line per enter and exit event,
// indented by depth, followed by the rendered node.
func (r *runnerImpl) explain(plan *classifier.Plan, samplePath string) error {
	obj, err := walk.LoadSample(samplePath)
	if err != nil {
		return ConfigError("load sample", err)
	}
	w := walk.New(plan, nil)
	w.FillTags(obj)

	fmt.Fprintf(r.out, "%s %s\n", obj.Type, plan.Version)
	depth := 1
	err = w.Walk(obj, func(path *walk.PointerPath, node *walk.Object) {
		if path == nil {
			depth--
			fmt.Fprintf(r.out, "%sexit  %s\n", indent(depth), node.Type)
			return
		}
		fmt.Fprintf(r.out, "%senter %s %s -> %s\n", indent(depth), path.Access, path, node.Type)
		depth++
	})
	if err != nil {
		return GeneralError("walk sample", err)
	}

	text, err := w.Render(obj)
	if err != nil {
		return GeneralError("render sample", err)
	}
	fmt.Fprintln(r.out, text)
	return nil
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
