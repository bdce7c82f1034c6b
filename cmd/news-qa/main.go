package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"news-qa/internal/config"
	"news-qa/internal/contract"
	"news-qa/internal/executor"
	"news-qa/internal/ir"
	"news-qa/internal/logging"
	"news-qa/internal/parser"
)

var (
	passLabel  = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel  = color.New(color.FgRed, color.Bold).SprintFunc()
	fatalLabel = color.New(color.FgMagenta, color.Bold).SprintFunc()
	warnLabel  = color.New(color.FgYellow).SprintFunc()
)

func main() {
	var (
		spec        = flag.String("spec", "", "Path to YAML/JSON scenario suite")
		name        = flag.String("name", "", "Optional suite name override")
		envPaths    = flag.String("env", "", "Comma-separated config files (e.g., env/dev.yaml,env/ci.yaml)")
		baseURL     = flag.String("base-url", "", "Override base_url from config")
		logLevel    = flag.String("log-level", "", "Override log_level from config (debug, info, warn, error)")
		verbose     = flag.Bool("v", false, "Verbose: print failure details and teardown warnings")
		openapiPath = flag.String("openapi", "", "Path to OpenAPI (YAML/JSON) for contract checks & coverage")
		covMin      = flag.Float64("coverage-min", -1, "Fail if coverage percent < this threshold (requires OpenAPI)")
		parallel    = flag.Int("parallel", 1, "Number of scenarios to execute in parallel")
		failFast    = flag.Bool("fail-fast", false, "Stop after first failing scenario (forces --parallel=1)")
		includeTags = flag.String("include-tags", "", "Comma-separated tags to include (OR semantics)")
		excludeTags = flag.String("exclude-tags", "", "Comma-separated tags to exclude (OR semantics)")
	)
	flag.Parse()

	if *spec == "" {
		fail("missing --spec")
	}

	cfg, err := config.Load(splitCSV(*envPaths))
	if err != nil {
		fail("load config: %v", err)
	}
	if *baseURL != "" {
		cfg.BaseURL = strings.TrimRight(*baseURL, "/")
		cfg.SetVar("base_url", cfg.BaseURL)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fail("%v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fail("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	suite, err := parser.New().ParseFile(*spec)
	if err != nil {
		fail("parse: %v", err)
	}
	if *name != "" {
		suite.Name = *name
	}

	// tag filtering (optional)
	if *includeTags != "" || *excludeTags != "" {
		suite.Scenarios = ir.FilterByTags(suite.Scenarios, splitCSV(*includeTags), splitCSV(*excludeTags))
		if len(suite.Scenarios) == 0 {
			fail("no scenarios left after tag filtering")
		}
	}

	// Resolve OpenAPI file: flag wins; else suite.openapi (already relative to the suite)
	openapiFile := suite.OpenAPI
	if *openapiPath != "" {
		openapiFile = *openapiPath
	}

	// Fail-fast enforces sequential execution
	if *failFast && *parallel != 1 {
		*parallel = 1
	}

	r := executor.New(cfg).
		WithLogger(logger).
		WithParallel(*parallel).
		WithFailFast(*failFast)

	// Contract (strict)
	var v *contract.Validator
	if openapiFile != "" {
		v, err = contract.LoadFromFile(openapiFile)
		if err != nil {
			fail("openapi load: %v", err)
		}
		r = r.WithContract(v)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := r.RunSuite(ctx, suite)
	if err != nil {
		fail("execute: %v", err)
	}

	printSummary(suite.Name, res, *verbose)

	passed := res.Passed
	if v != nil {
		rep := r.Coverage().Report(v.Doc())
		fmt.Printf("coverage: %d/%d operations (%.2f%%)\n", rep.Covered, rep.Total, rep.Percent)
		if *verbose {
			for _, op := range rep.UncoveredSet {
				fmt.Printf("  uncovered: %s\n", op)
			}
		}
		if *covMin >= 0 && rep.Percent+1e-9 < *covMin {
			fmt.Fprintf(os.Stderr, "coverage gate failed: got %.2f%%, need >= %.2f%%\n", rep.Percent, *covMin)
			passed = false
		}
	}

	logger.Info("suite finished",
		zap.String("suite", suite.Name),
		zap.Bool("passed", passed),
		zap.Float64("duration_ms", res.DurationMs))
	_ = logger.Sync()
	stop()

	if passed {
		fmt.Println(passLabel("PASS"))
		os.Exit(0)
	}
	fmt.Println(failLabel("FAIL"))
	os.Exit(1)
}

func printSummary(suiteName string, res *executor.SuiteResult, verbose bool) {
	fmt.Printf("%s\n", suiteName)
	for _, sc := range res.Scenarios {
		var label string
		switch sc.Outcome {
		case executor.Passed:
			label = passLabel("PASS ")
		case executor.Failed:
			label = failLabel("FAIL ")
		default:
			label = fatalLabel("FATAL")
		}
		fmt.Printf("  %s %s (%.0fms)\n", label, sc.Name, sc.DurationMs)

		if sc.Outcome != executor.Passed && sc.Err != nil && (verbose || sc.Outcome == executor.Fatal) {
			for _, line := range strings.Split(sc.Err.Error(), "\n") {
				fmt.Fprintf(os.Stderr, "      %s\n", line)
			}
		} else if sc.Outcome == executor.Failed {
			for _, f := range sc.Failures {
				fmt.Fprintf(os.Stderr, "      - %s\n", f)
			}
		}
		if verbose {
			for _, rec := range sc.Teardown {
				if rec.Err != nil {
					fmt.Fprintf(os.Stderr, "      %s teardown %s %s: %v\n", warnLabel("warn"), rec.Resource.Type, rec.Resource.ID, rec.Err)
				}
			}
		}
	}
	passed, failed, fatal := res.Counts()
	fmt.Printf("%d passed, %d failed, %d fatal in %.0fms\n", passed, failed, fatal, res.DurationMs)
}

// ---- helpers ----

func fail(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", a...)
	os.Exit(2)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
