package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/livinlefevreloca/jobstats/internal/config"
	"github.com/livinlefevreloca/jobstats/internal/discover"
	"github.com/livinlefevreloca/jobstats/internal/report"
	"github.com/livinlefevreloca/jobstats/internal/source"
)

// fakeRunner serves canned query-tool output keyed by job id
type fakeRunner struct {
	outputs map[string]string
}

func (r *fakeRunner) Run(name string, args ...string) (string, error) {
	for i, a := range args {
		if a == "-j" && i+1 < len(args) {
			return r.outputs[args[i+1]], nil
		}
	}
	return "", nil
}

// resetModeFlags restores the package-level flag state after a test
func resetModeFlags(t *testing.T) {
	t.Helper()

	savedStdin, savedRunning, savedProject := useStdin, running, project
	savedHard, savedPlot, savedBig := hardPrefix, plot, bigPlot
	t.Cleanup(func() {
		useStdin, running, project = savedStdin, savedRunning, savedProject
		hardPrefix, plot, bigPlot = savedHard, savedPlot, savedBig
	})
}

func TestSourceType(t *testing.T) {
	resetModeFlags(t)

	tests := []struct {
		desc     string
		stdin    bool
		running  bool
		project  string
		dbPath   string
		expected string
	}{
		{"default is finished", false, false, "", "", "finished"},
		{"stdin", true, false, "", "", "stdin"},
		{"running", false, true, "", "", "running"},
		{"project with db", false, false, "p1", "/tmp/cache.db", "db"},
		{"project without db", false, false, "p1", "", "finished"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			useStdin, running, project = tt.stdin, tt.running, tt.project
			cfg := config.DefaultConfig()
			cfg.Database.Path = tt.dbPath

			if got := sourceType(cfg); got != tt.expected {
				t.Errorf("sourceType() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestToolExists(t *testing.T) {
	tmpDir := t.TempDir()

	tool := filepath.Join(tmpDir, "finishedjobinfo")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("failed to create tool: %v", err)
	}

	if !toolExists(tool) {
		t.Error("expected existing tool path to qualify")
	}
	if toolExists(filepath.Join(tmpDir, "missing")) {
		t.Error("expected missing tool path to fail")
	}
	if toolExists(tmpDir + "/") {
		t.Error("expected directory not to qualify as a tool")
	}
	if !toolExists("sh") {
		t.Error("expected bare name lookup through PATH to find sh")
	}
}

func TestCheckPreconditions_StatsDirMissing(t *testing.T) {
	resetModeFlags(t)
	useStdin, running, project = true, false, ""

	cfg := config.DefaultConfig()
	cfg.StatsRoot = filepath.Join(t.TempDir(), "nonexistent")

	if err := checkPreconditions(cfg); err == nil {
		t.Error("expected missing statistics directory to be fatal")
	}
}

func TestCheckPreconditions_StdinNeedsNoQueryTool(t *testing.T) {
	resetModeFlags(t)
	useStdin, running, project = true, false, ""

	cfg := config.DefaultConfig()
	cfg.FinishedTool = "/nonexistent/finishedjobinfo"
	cfg.StatsRoot = t.TempDir()
	if err := os.MkdirAll(filepath.Join(cfg.StatsRoot, cfg.Cluster), 0o755); err != nil {
		t.Fatalf("failed to create stats dir: %v", err)
	}

	if err := checkPreconditions(cfg); err != nil {
		t.Errorf("stdin mode must not require the finished-job tool: %v", err)
	}
}

func TestCheckPreconditions_FinishedToolRequired(t *testing.T) {
	resetModeFlags(t)
	useStdin, running, project = false, false, ""

	cfg := config.DefaultConfig()
	cfg.FinishedTool = "/nonexistent/finishedjobinfo"
	cfg.StatsRoot = t.TempDir()
	if err := os.MkdirAll(filepath.Join(cfg.StatsRoot, cfg.Cluster), 0o755); err != nil {
		t.Fatalf("failed to create stats dir: %v", err)
	}

	if err := checkPreconditions(cfg); err == nil {
		t.Error("expected missing finished-job tool to be fatal")
	}
}

func TestCheckPreconditions_HardPrefix(t *testing.T) {
	resetModeFlags(t)
	useStdin, running, project = true, false, ""

	cfg := config.DefaultConfig()

	// Hard-prefix mode checks that directory instead of the stats root
	hardPrefix = t.TempDir()
	if err := checkPreconditions(cfg); err != nil {
		t.Errorf("expected existing hard prefix to satisfy preconditions: %v", err)
	}

	hardPrefix = filepath.Join(hardPrefix, "missing")
	if err := checkPreconditions(cfg); err == nil {
		t.Error("expected missing hard prefix to be fatal")
	}
}

// =============================================================================
// Job Loop Tests
// =============================================================================

type cliFixture struct {
	reporter *report.Reporter
	cfg      *config.Config
	out      *bytes.Buffer
	logBuf   *bytes.Buffer
	logger   *slog.Logger
}

func newCLIFixture(t *testing.T, runner source.Runner) *cliFixture {
	t.Helper()
	t.Setenv("SNIC_RESOURCE", "")

	cfg := config.DefaultConfig()
	cfg.StatsRoot = t.TempDir()

	out := &bytes.Buffer{}
	errw := &bytes.Buffer{}
	logBuf := &bytes.Buffer{}
	logger := config.SetupLoggerWithWriters(logBuf, io.Discard, slog.LevelDebug)

	disc := discover.Config{Root: cfg.StatsRoot, Kind: cfg.StatsKind}
	opts := report.Options{SourceType: "finished", PlotTool: cfg.PlotTool}

	return &cliFixture{
		reporter: report.New(opts, disc, runner, out, errw, logger),
		cfg:      cfg,
		out:      out,
		logBuf:   logBuf,
		logger:   logger,
	}
}

func TestProcessIDs_UnauthorizedJobSkippedWithWarning(t *testing.T) {
	resetModeFlags(t)
	useStdin, running, project = false, false, ""

	runner := &fakeRunner{outputs: map[string]string{
		"1": "jobid=1 jobstate=COMPLETED username=alice account=p1 jobname=align runtime=01:00:00 procs=4 nodes=m1\n",
		"2": "jobid=2 jobstate=COMPLETED username=bob account=restricted jobname=sim runtime=01:00:00 procs=4 nodes=m2\n",
	}}
	f := newCLIFixture(t, runner)
	auth := source.NewAuthorizer("alice", false, []string{"p1"}, nil)

	if err := processIDs(f.reporter, auth, f.logger, f.cfg, runner, []string{"1", "2"}); err != nil {
		t.Fatalf("processIDs failed: %v", err)
	}

	output := f.out.String()
	if !strings.Contains(output, "1\tmilou") {
		t.Errorf("expected a row for the authorized job, got %q", output)
	}
	if strings.Contains(output, "restricted") {
		t.Errorf("expected no row for the unauthorized job, got %q", output)
	}

	log := f.logBuf.String()
	if !strings.Contains(log, "not authorized for project") || !strings.Contains(log, "restricted") {
		t.Errorf("expected an authorization warning naming the project, got %q", log)
	}
}

func TestProcessIDs_NotFoundCountsAsNeverRun(t *testing.T) {
	resetModeFlags(t)
	useStdin, running, project = false, false, ""

	runner := &fakeRunner{outputs: map[string]string{}}
	f := newCLIFixture(t, runner)
	auth := source.NewAuthorizer("alice", false, []string{"p1"}, nil)

	if err := processIDs(f.reporter, auth, f.logger, f.cfg, runner, []string{"404"}); err != nil {
		t.Fatalf("an unknown job id must not abort the run: %v", err)
	}

	if f.out.Len() != 0 {
		t.Errorf("expected no rows for an unknown job, got %q", f.out.String())
	}
	if got := f.reporter.Counters().NotRun; got != 1 {
		t.Errorf("expected the unknown job counted as never run, got %d", got)
	}
	if !strings.Contains(f.logBuf.String(), "skipping job") {
		t.Errorf("expected a skip warning, got %q", f.logBuf.String())
	}
}
