// Package options defines the frozen, validated configuration record the
// rest of the pipeline reads. There is no fluent options builder: Options
// is a plain struct constructed directly from parsed flags, and validation
// happens exactly once, in New.
package options

import "fmt"

// RepackagePolicy selects how the minifier relocates renamed classes.
type RepackagePolicy uint8

const (
	// RepackageNone keeps each renamed class in its original package.
	RepackageNone RepackagePolicy = iota
	// RepackageFlatten moves every renamed class into one synthetic
	// package (the `-flattenpackagehierarchy` directive).
	RepackageFlatten
	// RepackageAll moves every renamed class into a single designated
	// target package (the `-repackageclasses` directive).
	RepackageAll
)

// FeatureSplit names one optional module partition of the program: a
// subset of program classes shipped separately, affecting service-loader
// enumeration and accessibility scope.
type FeatureSplit struct {
	Name    string
	Classes []string // class-name globs assigned to this split
}

// Options is the frozen configuration for one compilation.
type Options struct {
	TreeShaking        bool
	DiscardedChecker   bool
	Minification       bool
	ForceCompatibility bool
	MinAPILevel        int
	FeatureSplits      []FeatureSplit
	ApplyMappingPath   string
	RepackagePolicy    RepackagePolicy
	RepackageTarget    string

	// RuleFiles are paths to rule text files; RuleFiles entries prefixed
	// with "@" expand to the whitespace-separated tokens inside that file,
	// handled by the rule-file loader before Options is constructed.
	RuleFiles   []string
	InlineRules []string

	IgnoreMissingClasses bool
	DontWarnPatterns     []string
}

// Default returns the configuration every pipeline invocation uses unless
// overridden by explicit flags.
func Default() Options {
	return Options{
		TreeShaking:      true,
		DiscardedChecker: true,
		Minification:     true,
		MinAPILevel:      21,
	}
}

// New validates opts and returns it unchanged, or an error describing the
// first invalid field found. This is the single point at which Options is
// checked; nothing later in the pipeline re-validates it.
func New(opts Options) (Options, error) {
	if opts.MinAPILevel < 1 {
		return Options{}, fmt.Errorf("options: minApiLevel must be positive, got %d", opts.MinAPILevel)
	}
	if opts.RepackagePolicy == RepackageAll && opts.RepackageTarget == "" {
		return Options{}, fmt.Errorf("options: repackageclasses requires a target package")
	}
	seen := make(map[string]bool)
	for _, fs := range opts.FeatureSplits {
		if fs.Name == "" {
			return Options{}, fmt.Errorf("options: feature split with an empty name")
		}
		if seen[fs.Name] {
			return Options{}, fmt.Errorf("options: duplicate feature split %q", fs.Name)
		}
		seen[fs.Name] = true
	}
	return opts, nil
}
