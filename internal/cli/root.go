// Package cli wires the jobstats command line: flag surface, precondition
// checks, and the sequential per-job processing loop.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/jobstats/internal/config"
	"github.com/livinlefevreloca/jobstats/internal/db"
	"github.com/livinlefevreloca/jobstats/internal/discover"
	"github.com/livinlefevreloca/jobstats/internal/report"
	"github.com/livinlefevreloca/jobstats/internal/source"
)

// Version is set at build time
var Version = "0.1.0"

// Flag values; config-file settings sit underneath, flags win when set
var (
	configPath string

	cluster      string
	project      string
	useStdin     bool
	running      bool
	nodeList     string
	memoryFlags  bool
	verbose      bool
	plot         bool
	bigPlot      bool
	quiet        bool
	showHeader   bool
	cpuFree      float64
	statsPrefix  string
	hardPrefix   string
	finishedTool string
	plotTool     string
	dbPath       string
	debug        bool
)

var rootCmd = &cobra.Command{
	Use:   "jobstats [flags] [jobid ...]",
	Short: "Report booked-versus-used resources for cluster jobs",
	Long: `jobstats discovers per-job resource-usage statistics on an HPC cluster
and emits one tab-separated report row per job, with flags marking
underutilized bookings.

Jobs are named by id, by project (-A), or fed as pre-formatted lines on
standard input (- or --stdin). Job metadata comes from the finished-job
query tool, the running-job query tool (-r), or a local accounting
database; per-node statistics files are located on the shared filesystem
and deeper analysis is delegated to the external plot tool.`,
	Version:       Version,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()

	f.StringVar(&configPath, "config", "", "path to configuration file (TOML)")

	f.StringVarP(&cluster, "cluster", "M", "", "cluster to query")
	f.StringVarP(&project, "project", "A", "", "report all recent jobs of this project")
	f.BoolVar(&useStdin, "stdin", false, "read pre-formatted job lines from standard input")
	f.BoolVarP(&running, "running", "r", false, "query running jobs instead of finished ones")
	f.StringVarP(&nodeList, "nodelist", "n", "", "override the node list for every job")
	f.BoolVarP(&memoryFlags, "memory", "m", false, "include memory flags in the analysis")
	f.BoolVarP(&verbose, "verbose", "v", false, "verbose flag descriptions")
	f.BoolVarP(&plot, "plot", "p", false, "produce a usage plot per job")
	f.BoolVarP(&bigPlot, "big-plot", "b", false, "produce a larger usage plot per job")
	f.BoolVarP(&quiet, "quiet", "q", false, "suppress report rows (summary still appears)")
	f.BoolVarP(&showHeader, "header", "d", false, "print a header line before the first row")
	f.Float64Var(&cpuFree, "cpu-free", 80, "idle-CPU percentage threshold for flagging")
	f.StringVarP(&statsPrefix, "prefix", "x", "", "statistics directory root")
	f.StringVarP(&hardPrefix, "hard-prefix", "X", "", "node-independent statistics directory")
	f.StringVarP(&finishedTool, "finishedjobinfo", "f", "", "path to the finished-job query tool")
	f.StringVarP(&plotTool, "plot-tool", "P", "", "path to the analysis/plot tool")
	f.StringVar(&dbPath, "db", "", "path to the local accounting database")
	f.BoolVar(&debug, "debug", false, "debug logging")
}

// Execute runs the root command; it returns a process exit code
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jobstats:", err)
		return 1
	}
	return 0
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, cleanup := config.SetupLogger(cfg.Logging, debug)
	defer cleanup()

	// A bare "-" argument is shorthand for --stdin
	ids := args
	if len(ids) == 1 && ids[0] == "-" {
		useStdin = true
		ids = nil
	}

	switch {
	case useStdin && project != "":
		return fmt.Errorf("--stdin and -A are mutually exclusive")
	case running && project != "":
		return fmt.Errorf("-r applies to explicit job ids, not -A")
	case !useStdin && project == "" && len(ids) == 0:
		return fmt.Errorf("nothing to report: give job ids, -A project, or --stdin")
	case useStdin && len(ids) > 0:
		return fmt.Errorf("job ids and --stdin are mutually exclusive")
	case project != "" && len(ids) > 0:
		return fmt.Errorf("job ids and -A are mutually exclusive")
	}

	if err := checkPreconditions(cfg); err != nil {
		return err
	}

	// The accounting cache backs project queries and the run log
	var database *db.DB
	if cfg.Database.Path != "" {
		database, err = db.OpenWithConfig(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open accounting database %s: %w", cfg.Database.Path, err)
		}
		defer database.Close()
		logger.Debug("accounting database opened", "path", database.Path())
	}

	auth, err := source.CurrentAuthorizer(cfg.StaffGroups)
	if err != nil {
		return err
	}

	disc := discover.Config{
		Root:       cfg.StatsRoot,
		Kind:       cfg.StatsKind,
		HardPrefix: hardPrefix,
	}
	opts := report.Options{
		SourceType:   sourceType(cfg),
		Running:      running,
		Verbose:      verbose,
		Memory:       memoryFlags,
		Plot:         plot,
		BigPlot:      bigPlot,
		Quiet:        quiet,
		Header:       showHeader,
		CPUFree:      cfg.CPUFree,
		PlotTool:     cfg.PlotTool,
		NodeOverride: nodeList,
	}
	runner := source.CommandRunner{}
	reporter := report.New(opts, disc, runner, os.Stdout, os.Stderr, logger)

	startedAt := time.Now()

	switch {
	case useStdin:
		err = processStdin(reporter, auth, logger, cfg)
	case project != "":
		err = processProject(reporter, auth, logger, cfg, database, runner)
	default:
		err = processIDs(reporter, auth, logger, cfg, runner, ids)
	}
	if err != nil {
		return err
	}

	reporter.Summarize()

	if cfg.RunLog && database != nil {
		counters := reporter.Counters()
		runRow := &db.Run{
			StartedAt: startedAt,
			Processed: counters.Processed,
			NotRun:    counters.NotRun,
			NoStats:   counters.NoStats,
		}
		if err := database.RecordRun(runRow); err != nil {
			logger.Warn("failed to record run log entry", "error", err)
		} else {
			logger.Debug("run recorded", "run_id", runRow.ID)
		}
	}

	return nil
}

// sourceType names the active job source for the analysis tool
func sourceType(cfg *config.Config) string {
	switch {
	case useStdin:
		return "stdin"
	case running:
		return "running"
	case project != "" && cfg.Database.Path != "":
		return "db"
	default:
		return "finished"
	}
}

// applyFlagOverrides copies explicitly set flags over the file/default
// configuration
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed

	if set("cluster") {
		cfg.Cluster = cluster
	}
	if set("prefix") {
		cfg.StatsRoot = statsPrefix
	}
	if set("finishedjobinfo") {
		cfg.FinishedTool = finishedTool
	}
	if set("plot-tool") {
		cfg.PlotTool = plotTool
	}
	if set("cpu-free") {
		cfg.CPUFree = cpuFree
	}
	if set("db") {
		cfg.Database.Path = dbPath
	}
}

// checkPreconditions fails fast before any job is processed: the selected
// query tool must exist, and so must the statistics directory.
func checkPreconditions(cfg *config.Config) error {
	switch {
	case running:
		if !toolExists(cfg.RunningTool) {
			return fmt.Errorf("running-job query tool not found: %s", cfg.RunningTool)
		}
	case useStdin:
		// stdin mode needs no query tool
	case project != "" && cfg.Database.Path != "":
		// database-backed project queries need no query tool
	default:
		if !toolExists(cfg.FinishedTool) {
			return fmt.Errorf("finished-job query tool not found: %s", cfg.FinishedTool)
		}
	}

	if hardPrefix != "" {
		if !dirExists(hardPrefix) {
			return fmt.Errorf("statistics directory not found: %s", hardPrefix)
		}
	} else {
		statsDir := filepath.Join(cfg.StatsRoot, cfg.Cluster)
		if !dirExists(statsDir) {
			return fmt.Errorf("statistics directory not found: %s", statsDir)
		}
	}

	if (plot || bigPlot) && !toolExists(cfg.PlotTool) {
		return fmt.Errorf("plot tool not found: %s", cfg.PlotTool)
	}

	return nil
}

func toolExists(tool string) bool {
	if strings.ContainsRune(tool, '/') {
		info, err := os.Stat(tool)
		return err == nil && info.Mode().IsRegular()
	}
	_, err := exec.LookPath(tool)
	return err == nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// processIDs reports each explicitly named job
func processIDs(reporter *report.Reporter, auth *source.Authorizer, logger *slog.Logger, cfg *config.Config, runner source.Runner, ids []string) error {
	var src source.Source
	if running {
		src = &source.RunningSource{Tool: cfg.RunningTool, Cluster: cfg.Cluster, Runner: runner}
	} else {
		src = &source.FinishedSource{Tool: cfg.FinishedTool, Cluster: cfg.Cluster, Runner: runner}
	}

	for _, id := range ids {
		rec, err := src.Lookup(id)
		if err != nil {
			if errors.Is(err, source.ErrJobNotFound) {
				reporter.Skip(id, err)
				continue
			}
			return err
		}

		if !auth.Allowed(rec.Project) {
			logger.Warn("not authorized for project, skipping job",
				"jobid", rec.JobID, "project", rec.Project, "user", auth.User)
			continue
		}

		if err := reporter.Process(rec); err != nil {
			return err
		}
	}
	return nil
}

// processProject reports every recent job of a project, from the
// accounting database when one is configured, otherwise from the
// finished-job tool
func processProject(reporter *report.Reporter, auth *source.Authorizer, logger *slog.Logger, cfg *config.Config, database *db.DB, runner source.Runner) error {
	if !auth.Allowed(project) {
		logger.Warn("not authorized for project, nothing to report",
			"project", project, "user", auth.User)
		return nil
	}

	var src source.ProjectSource
	if database != nil {
		src = &source.DBSource{DB: database, Cluster: cfg.Cluster}
	} else {
		src = &source.FinishedSource{Tool: cfg.FinishedTool, Cluster: cfg.Cluster, Runner: runner}
	}

	recs, err := src.Project(project)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		if err := reporter.Process(rec); err != nil {
			return err
		}
	}
	return nil
}

// processStdin reports one job per pre-formatted input line
func processStdin(reporter *report.Reporter, auth *source.Authorizer, logger *slog.Logger, cfg *config.Config) error {
	src := &source.StdinSource{Cluster: cfg.Cluster}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := src.Lookup(line)
		if err != nil {
			reporter.Skip(line, err)
			continue
		}

		if !auth.Allowed(rec.Project) {
			logger.Warn("not authorized for project, skipping job",
				"jobid", rec.JobID, "project", rec.Project, "user", auth.User)
			continue
		}

		if err := reporter.Process(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}
