// Package pipeline wires the stages of a whole-program run into the single
// sequential run cmd/r8 drives: parse rules, build the root set, run the
// Enqueuer to a fixed point, prune, minify, and hand back the pruned
// program plus the composed lens and mapping. Every stage's diagnostics
// collect into one ErrorList before the pipeline decides whether to
// continue, rather than aborting on the first error.
package pipeline

import (
	"context"
	"fmt"

	"github.com/r8core/r8/internal/appinfo"
	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/enqueuer"
	"github.com/r8core/r8/internal/errorlist"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/lens"
	"github.com/r8core/r8/internal/minifier"
	"github.com/r8core/r8/internal/options"
	"github.com/r8core/r8/internal/pruner"
	"github.com/r8core/r8/internal/reader"
	"github.com/r8core/r8/internal/rootset"
	"github.com/r8core/r8/internal/rules"
)

// RuleSource supplies rule text: either an inline rule string or the path
// to a rule file, mirroring options.Options.RuleFiles/InlineRules.
type RuleSource struct {
	Path   string
	Inline string
}

// ReadFile abstracts the filesystem so rule loading and @file expansion can
// be tested without touching disk.
type ReadFile func(path string) (string, error)

// Result is everything a caller needs after a successful run: the
// tree-shaken, minified program, the lens that maps original references to
// their final identity, and the mapping artifact for -printmapping output.
type Result struct {
	Program  *definitions.Program
	Lens     lens.Lens
	Mapping  *minifier.Mapping
	RootSet  *rootset.RootSet
	Liveness *enqueuer.LivenessView
}

// LoadRules tokenizes every rule source, expands @file references via
// readFile, and parses the combined token stream into one RuleSet.
func LoadRules(sources []RuleSource, readFile ReadFile) (*rules.RuleSet, error) {
	var tokens []string
	for _, src := range sources {
		text := src.Inline
		origin := "<inline>"
		if src.Path != "" {
			content, err := readFile(src.Path)
			if err != nil {
				return nil, fmt.Errorf("reading rule file %s: %w", src.Path, err)
			}
			text = content
			origin = src.Path
		}
		toks, err := rules.ExpandAtFiles(rules.Tokenize(text), readFile)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", origin, err)
		}
		tokens = append(tokens, toks...)
	}
	return rules.Parse(tokens, "<rules>")
}

// Run executes the full analysis: load classes from r, parse rules, build
// the root set, run the Enqueuer once to a fixed point, prune, and minify.
// No second Enqueuer round is run after pruning or minification.
//
// factory must be the same *itemfactory.Factory the caller used to decode
// r (e.g. via reader.DecodeJSON): program classes, service interfaces and
// implementations, and well-known references all have to share one
// identity space, or a DexType interned for a service interface while
// loading services will never compare equal to the DexType the same
// class's traced code already carries.
func Run(ctx context.Context, opts options.Options, factory *itemfactory.Factory, r reader.Reader, sources []RuleSource, readFile ReadFile, diags *errorlist.Bag) (*Result, error) {
	program, err := reader.LoadProgram(factory, r)
	if err != nil {
		diags.Fatalf("InvalidInput", "", "loading program: %v", err)
		return nil, err
	}

	ruleSet, err := LoadRules(sources, readFile)
	if err != nil {
		diags.Fatalf("InvalidRule", "", "parsing rules: %v", err)
		return nil, err
	}

	hierarchy := appinfo.Build(program)
	matcher := rules.NewMatcher(program, hierarchy)
	matched := matcher.Match(ruleSet)
	root := rootset.NewBuilder().Build(matched)

	cfg := enqueuer.DefaultConfig()
	eq := enqueuer.New(program, hierarchy, cfg)
	eq.SeedFrom(root)
	view, err := eq.Run(ctx)
	if err != nil {
		diags.Fatalf("Internal", "", "reachability analysis: %v", err)
		return nil, err
	}

	pruned := pruner.Prune(program, hierarchy, view)

	if opts.TreeShaking && opts.DiscardedChecker && len(root.CheckDiscard) > 0 {
		// Discard-checking only makes sense when tree shaking actually ran;
		// with -dontshrink nothing was ever a candidate for removal.
		checkDiscarded(root, pruned.Removed, diags)
		if diags.HasFatal() {
			return nil, fmt.Errorf("checkdiscard: a kept reference was expected to be discarded")
		}
	}

	if !opts.TreeShaking {
		// -dontshrink still runs the Enqueuer (accessibility/side-effect
		// analysis depends on it) but the emitted program keeps every
		// class; skip installing the pruned copy.
		pruned = pruner.Result{Program: program, Removed: pruned.Removed, Lens: lens.Identity}
	}

	currentLens := pruned.Lens
	var mapping *minifier.Mapping
	if opts.Minification && !root.DontObfuscate {
		prunedHierarchy := appinfo.Build(pruned.Program)
		mcfg := minifier.Config{Scheme: minifier.SchemePerPackage}
		switch opts.RepackagePolicy {
		case options.RepackageFlatten:
			mcfg.Scheme = minifier.SchemeFlatten
			mcfg.TargetPackage = opts.RepackageTarget
		case options.RepackageAll:
			mcfg.Scheme = minifier.SchemeRepackageAll
			mcfg.TargetPackage = opts.RepackageTarget
		}
		m := minifier.New(pruned.Program, prunedHierarchy, root, mcfg, currentLens)
		var mErr error
		currentLens, mapping, mErr = m.Compute()
		if mErr != nil {
			diags.Fatalf("Internal", "", "minification: %v", mErr)
			return nil, mErr
		}
	}

	return &Result{
		Program:  pruned.Program,
		Lens:     currentLens,
		Mapping:  mapping,
		RootSet:  root,
		Liveness: view,
	}, nil
}

// checkDiscarded verifies every -checkdiscard reference in root actually
// disappeared during pruning, recording a CheckDiscardFailed fatal for each
// one the Enqueuer still found reachable.
func checkDiscarded(root *rootset.RootSet, removed *pruner.Removed, diags *errorlist.Bag) {
	for ref := range root.CheckDiscard {
		switch r := ref.(type) {
		case itemfactory.DexType:
			if !removed.Types[r] {
				diags.Fatalf("CheckDiscardFailed", "", "class %s was not discarded", r)
			}
		case itemfactory.DexMethod:
			if !removed.Methods[r] {
				diags.Fatalf("CheckDiscardFailed", "", "method %s was not discarded", r)
			}
		case itemfactory.DexField:
			if !removed.Fields[r] {
				diags.Fatalf("CheckDiscardFailed", "", "field %s was not discarded", r)
			}
		}
	}
}
