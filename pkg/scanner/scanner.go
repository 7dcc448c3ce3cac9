// Package scanner runs the detection strategies against a project and
// merges their findings into one component per library.
//
// # Merging
//
// Components are merged by [deps.NormalizeName]. A known version beats
// "unknown". When two strategies report different known versions, the one
// from the higher ranked source wins; equally ranked sources keep the
// greater semantic version. A component is build-only only if every
// strategy that reported it says so.
//
// # Hierarchy
//
// Direct names come from the declared manifests and from compiler or
// linker evidence. Dependency edges are the union of every strategy's
// edges. The merged components are assembled into a [deps.Tree].
//
// # Usage
//
//	s := scanner.New(logger)
//	res, err := s.Scan(ctx, "/src/project", deps.Options{})
//	for _, c := range res.Components {
//	    fmt.Println(c.Name, c.Version, c.DependencyType())
//	}
package scanner

import (
	"context"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/core/deps/headers"
	"github.com/matzehuels/cppsbom/pkg/errors"
	"github.com/matzehuels/cppsbom/pkg/observability"
)

// Result is the merged outcome of a scan.
type Result struct {
	Root        string           `json:"root"`
	RootName    string           `json:"rootName,omitempty"`
	RootVersion string           `json:"rootVersion,omitempty"`
	Components  []deps.Component `json:"components"`

	// Tree is rebuilt from Components and is not serialized.
	Tree *deps.Tree `json:"-"`

	StrategiesUsed    []string      `json:"strategiesUsed"`
	StrategiesSkipped []string      `json:"strategiesSkipped"`
	Duration          time.Duration `json:"duration"`
}

// BuildTree (re)assembles Tree from Components.
func (r *Result) BuildTree() {
	r.Tree = deps.BuildTree(r.Components)
}

// Scanner runs strategies concurrently. The zero value is not usable; call
// [New].
type Scanner struct {
	Strategies []deps.Strategy
	Logger     *log.Logger

	// Concurrency bounds the number of strategies running at once.
	// Zero means runtime.NumCPU().
	Concurrency int
}

// New creates a scanner. With no strategies given, every registered
// strategy runs.
func New(logger *log.Logger, strategies ...deps.Strategy) *Scanner {
	if logger == nil {
		logger = log.Default()
	}
	if len(strategies) == 0 {
		strategies = All()
	}
	return &Scanner{Strategies: strategies, Logger: logger}
}

// outcome is the result of one strategy run.
type outcome struct {
	det *deps.Detection
	err error
}

// Scan runs every strategy against root and merges the results.
//
// A failing strategy is logged and reported in StrategiesSkipped; it never
// aborts the scan. Scan only fails when root is unusable or ctx is
// cancelled.
func (s *Scanner) Scan(ctx context.Context, root string, opts deps.Options) (res *Result, err error) {
	start := time.Now()
	names := Names(s.Strategies)
	hooks := observability.Scan()
	hooks.OnScanStart(ctx, root, names)
	defer func() {
		n := 0
		if res != nil {
			n = len(res.Components)
		}
		hooks.OnScanComplete(ctx, root, n, time.Since(start), err)
	}()

	info, statErr := os.Stat(root)
	if statErr != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, statErr, "project directory %s", root)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath, "%s is not a directory", root)
	}

	if opts.Logger == nil {
		opts.Logger = s.Logger.Debugf
	}
	opts = opts.WithDefaults()

	outcomes := s.run(ctx, root, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res = s.merge(outcomes)
	res.Root = root
	res.Duration = time.Since(start)
	return res, nil
}

// run executes the strategies and returns their outcomes in strategy order.
func (s *Scanner) run(ctx context.Context, root string, opts deps.Options) []outcome {
	limit := s.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	outcomes := make([]outcome, len(s.Strategies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, st := range s.Strategies {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			began := time.Now()
			det, err := st.Detect(gctx, root, opts)
			elapsed := time.Since(began)

			n := 0
			if det != nil {
				n = len(det.Components)
			}
			observability.Scan().OnStrategyComplete(ctx, st.Name(), n, elapsed, err)

			outcomes[i] = outcome{det: det, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// merge folds the outcomes into a Result.
func (s *Scanner) merge(outcomes []outcome) *Result {
	res := &Result{StrategiesUsed: []string{}, StrategiesSkipped: []string{}}

	// the resolved graph carries richer data than the declarations
	supersedeConan := false
	for i, st := range s.Strategies {
		if st.Name() == deps.SourceConanGraph && outcomes[i].err == nil && !outcomes[i].det.Empty() {
			supersedeConan = true
		}
	}

	m := newMerger()
	for i, st := range s.Strategies {
		name := st.Name()
		o := outcomes[i]
		switch {
		case o.err != nil:
			s.Logger.Warn("strategy failed", "strategy", name, "err", o.err)
			res.StrategiesSkipped = append(res.StrategiesSkipped, name)
			continue
		case o.det.Empty():
			s.Logger.Debug("strategy found nothing", "strategy", name)
			res.StrategiesSkipped = append(res.StrategiesSkipped, name)
			continue
		case name == deps.SourceConan && supersedeConan:
			s.Logger.Debug("strategy superseded", "strategy", name, "by", deps.SourceConanGraph)
			res.StrategiesSkipped = append(res.StrategiesSkipped, name)
			continue
		}

		res.StrategiesUsed = append(res.StrategiesUsed, name)
		s.Logger.Debug("strategy complete", "strategy", name, "components", len(o.det.Components))
		m.add(o.det)
		if res.RootName == "" && o.det.RootName != "" {
			res.RootName, res.RootVersion = o.det.RootName, o.det.RootVersion
		}
	}

	res.Components = m.components()
	headers.VersionHints(res.Components)
	m.link(res.Components)
	res.BuildTree()
	return res
}

// All returns every registered strategy in merge order.
func All() []deps.Strategy {
	out := make([]deps.Strategy, 0, len(registry))
	for _, r := range registry {
		out = append(out, r.strategy)
	}
	return out
}

// Names returns the names of the given strategies.
func Names(strategies []deps.Strategy) []string {
	names := make([]string, len(strategies))
	for i, st := range strategies {
		names[i] = st.Name()
	}
	return names
}

// Select returns the registered strategies with the given names, keeping
// registry order. Unknown names are an INVALID_INPUT error.
func Select(names ...string) ([]deps.Strategy, error) {
	if len(names) == 0 {
		return All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := Lookup(n); !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "unknown strategy %q", n)
		}
		want[n] = true
	}
	var out []deps.Strategy
	for _, r := range registry {
		if want[r.strategy.Name()] {
			out = append(out, r.strategy)
		}
	}
	return out, nil
}

// Lookup returns the registered strategy called name.
func Lookup(name string) (deps.Strategy, bool) {
	for _, r := range registry {
		if r.strategy.Name() == name {
			return r.strategy, true
		}
	}
	return nil, false
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
