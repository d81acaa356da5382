package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/r8core/r8/internal/errorlist"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/options"
	"github.com/r8core/r8/internal/pipeline"
	"github.com/r8core/r8/internal/reader"
	"github.com/r8core/r8/internal/watch"
)

var rootCmd = &cobra.Command{
	Use:   "r8",
	Short: "Whole-program shrinker, optimizer, and minifier core",
	Long: "r8 loads a program descriptor and a set of keep rules, runs reachability " +
		"analysis to a fixed point, discards unreachable code, and (unless disabled) " +
		"minifies the surviving classes and members.",
	RunE:         runRoot,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("program", "", "path to the program descriptor (JSON)")
	flags.StringArray("rules", nil, "rule file path (repeatable); a leading @ expands to whitespace-separated tokens from that file")
	flags.StringArray("rule", nil, "inline rule text (repeatable)")
	flags.Int("min-api", options.Default().MinAPILevel, "minimum supported platform API level")
	flags.Bool("no-shrink", false, "disable tree shaking (-dontshrink)")
	flags.Bool("no-minify", false, "disable minification (-dontobfuscate)")
	flags.String("apply-mapping", "", "path to a previously produced mapping file to reapply")
	flags.String("repackage-classes", "", "move every renamed class into this single package")
	flags.String("flatten-package-hierarchy", "", "move every renamed class under this synthetic package")
	flags.Bool("ignore-missing-classes", false, "don't treat unresolved classpath references as fatal")
	flags.StringArray("dontwarn", nil, "class-name glob to silence missing-class warnings for (repeatable)")
	flags.String("print-mapping", "", "write the proguard-style rename mapping to this path")
	flags.String("print-seeds", "", "write the sorted list of live root types to this path")
	flags.Bool("watch", false, "rerun the pipeline whenever the program descriptor or a rule file changes")
	flags.BoolP("verbose", "v", false, "enable debug logging")
}

func main() {
	expanded, err := expandArgFiles(os.Args[1:], 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.SetArgs(expanded)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	if verbose, _ := flags.GetBool("verbose"); verbose {
		log.SetLevel(log.DebugLevel)
	}

	programPath, _ := flags.GetString("program")
	if programPath == "" {
		return fmt.Errorf("--program is required")
	}
	ruleFiles, _ := flags.GetStringArray("rules")
	inlineRules, _ := flags.GetStringArray("rule")

	opts, err := buildOptions(flags)
	if err != nil {
		return err
	}

	sources := ruleSources(ruleFiles, inlineRules)
	runOnce := func() error {
		return runPipelineOnce(cmd.Context(), opts, programPath, sources, flags)
	}

	if err := runOnce(); err != nil {
		return err
	}

	watchOn, _ := flags.GetBool("watch")
	if !watchOn {
		return nil
	}

	watched := append([]string{programPath}, ruleFiles...)
	for {
		if err := watch.Run(watched, func(changed string) error {
			log.Infof("r8: rebuilding after change to %s", changed)
			return runOnce()
		}); err != nil {
			return err
		}
	}
}

func buildOptions(flags *pflag.FlagSet) (options.Options, error) {
	opts := options.Default()

	minAPI, _ := flags.GetInt("min-api")
	opts.MinAPILevel = minAPI

	noShrink, _ := flags.GetBool("no-shrink")
	opts.TreeShaking = !noShrink

	noMinify, _ := flags.GetBool("no-minify")
	opts.Minification = !noMinify

	opts.ApplyMappingPath, _ = flags.GetString("apply-mapping")
	opts.IgnoreMissingClasses, _ = flags.GetBool("ignore-missing-classes")
	opts.DontWarnPatterns, _ = flags.GetStringArray("dontwarn")

	repackageAll, _ := flags.GetString("repackage-classes")
	flatten, _ := flags.GetString("flatten-package-hierarchy")
	switch {
	case repackageAll != "":
		opts.RepackagePolicy = options.RepackageAll
		opts.RepackageTarget = repackageAll
	case flatten != "":
		opts.RepackagePolicy = options.RepackageFlatten
		opts.RepackageTarget = flatten
	}

	return options.New(opts)
}

func ruleSources(files, inline []string) []pipeline.RuleSource {
	sources := make([]pipeline.RuleSource, 0, len(files)+len(inline))
	for _, f := range files {
		sources = append(sources, pipeline.RuleSource{Path: f})
	}
	for _, r := range inline {
		sources = append(sources, pipeline.RuleSource{Inline: r})
	}
	return sources
}

func runPipelineOnce(ctx context.Context, opts options.Options, programPath string, sources []pipeline.RuleSource, flags *pflag.FlagSet) error {
	programBytes, err := os.ReadFile(programPath)
	if err != nil {
		return fmt.Errorf("opening program descriptor: %w", err)
	}
	ruleTexts, srcModTime, err := resolveRuleSources(programPath, sources)
	if err != nil {
		return err
	}
	key := pipelineCacheKey(programBytes, ruleTexts, opts)

	var cached cachedRun
	if pipelineCache.Load(&cached, key, srcModTime) {
		log.Infof("r8: %d classes survive tree shaking (cached)", cached.SurvivingClasses)
		return emitCachedRun(&cached, flags)
	}

	factory := itemfactory.New()
	in, err := reader.DecodeJSON(factory, bytes.NewReader(programBytes))
	if err != nil {
		return err
	}

	diags := &errorlist.Bag{}
	result, err := pipeline.Run(ctx, opts, factory, in, sources, readFileText, diags)
	for _, d := range diags.Diagnostics() {
		fmt.Fprintln(os.Stderr, d.Error())
	}
	if err != nil {
		return err
	}

	out, err := renderCachedRun(result)
	if err != nil {
		return err
	}
	pipelineCache.Store(out, key, time.Now())

	log.Infof("r8: %d classes survive tree shaking", out.SurvivingClasses)
	return emitCachedRun(out, flags)
}
