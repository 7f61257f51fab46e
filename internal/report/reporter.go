// Package report derives utilization flags for each job and emits the
// tab-separated report rows plus the end-of-run summary.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/livinlefevreloca/jobstats/internal/discover"
	"github.com/livinlefevreloca/jobstats/internal/record"
	"github.com/livinlefevreloca/jobstats/internal/source"
	"github.com/livinlefevreloca/jobstats/lib/nodeset"
)

// placeholder fills report fields that discovery could not produce
const placeholder = "."

// Options controls flag derivation and row emission
type Options struct {
	// SourceType names the active job source for the analysis tool:
	// finished, running, db or stdin.
	SourceType string

	// Running appends the timelimit_minutes column to every row
	Running bool

	Verbose bool
	Memory  bool
	Plot    bool
	BigPlot bool
	Quiet   bool
	Header  bool

	// CPUFree is the idle-CPU percentage threshold handed to the
	// analysis tool
	CPUFree float64

	// PlotTool is the external analysis/plot command; required once any
	// statistics file is found
	PlotTool string

	// NodeOverride replaces the record's node specification when set
	NodeOverride string
}

// Counters are the run-level tallies, owned by the single processing
// goroutine
type Counters struct {
	Processed int
	NotRun    int
	NoStats   int
}

// Reporter carries all per-run state: configuration, the one-shot header
// flag, and the counters. One Reporter lives for exactly one run.
type Reporter struct {
	opts   Options
	disc   discover.Config
	runner source.Runner
	out    io.Writer
	errw   io.Writer
	logger *slog.Logger

	headerDone bool
	counters   Counters
}

// New creates a Reporter writing rows to out and diagnostics to errw
func New(opts Options, disc discover.Config, runner source.Runner, out, errw io.Writer, logger *slog.Logger) *Reporter {
	return &Reporter{
		opts:   opts,
		disc:   disc,
		runner: runner,
		out:    out,
		errw:   errw,
		logger: logger,
	}
}

// Process derives flags for one job record and emits its report row.
// Recoverable conditions (job never ran) are handled inline; a returned
// error is fatal for the whole run.
func (r *Reporter) Process(rec *record.JobRecord) error {
	r.counters.Processed++

	spec := rec.NodeSpec
	if r.opts.NodeOverride != "" {
		spec = r.opts.NodeOverride
	}

	// No nodes means the job never started: placeholder row, no
	// discovery, no delegation
	if spec == "" {
		r.counters.NotRun++
		r.emit(r.notRunRow(rec))
		return nil
	}

	nodes, err := nodeset.Expand(spec)
	if err != nil {
		return fmt.Errorf("invalid node specification %q for job %s: %w", spec, rec.JobID, err)
	}

	files, ordered, err := r.disc.Find(rec.Cluster, rec.JobID, nodes)
	if err != nil {
		return err
	}

	var flags []string
	cores := placeholder

	if len(files) == 0 {
		r.counters.NoStats++
		r.logger.Warn("no statistics files found",
			"jobid", rec.JobID, "cluster", rec.Cluster, "nodes", spec)
	} else {
		total := 0
		for _, f := range files {
			// A malformed statistics file aborts the run
			n, err := discover.CoreCount(f.Path)
			if err != nil {
				return err
			}
			total += n
		}
		cores = strconv.Itoa(total)

		if len(files) < len(nodes) {
			flags = append(flags, overbookedFlag(len(nodes), len(files), r.opts.Verbose))
		}
	}

	row := r.row(rec, flags, cores, ordered, files)

	if len(files) > 0 {
		replacement, err := r.delegate(row)
		if err != nil {
			return err
		}
		if replacement != "" {
			row[colFlags] = replacement
		}
	}

	r.emit(row)
	return nil
}

// Report row column order
const (
	colJobID = iota
	colCluster
	colState
	colUser
	colProject
	colJobName
	colEndTime
	colRuntime
	colFlags
	colBooked
	colCores
	colNodes
	colFiles
)

var headerFields = []string{
	"jobid", "cluster", "jobstate", "user", "project", "jobname",
	"endtime", "runtime", "flags", "booked", "cores",
	"node_list", "jobstats_list",
}

// row assembles the full field tuple for a job that ran
func (r *Reporter) row(rec *record.JobRecord, flags []string, cores string, nodes []string, files []discover.File) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}

	row := []string{
		orDot(rec.JobID),
		orDot(rec.Cluster),
		string(rec.State),
		orDot(rec.User),
		orDot(rec.Project),
		orDot(rec.JobName),
		orDot(rec.EndTime),
		orDot(rec.Runtime),
		orDot(strings.Join(flags, ",")),
		orDot(rec.BookedCores),
		cores,
		orDot(strings.Join(nodes, ",")),
		orDot(strings.Join(paths, ",")),
	}

	return r.appendTimelimit(row, rec)
}

// notRunRow assembles the placeholder row for a job that never started
func (r *Reporter) notRunRow(rec *record.JobRecord) []string {
	row := []string{
		orDot(rec.JobID),
		orDot(rec.Cluster),
		string(rec.State),
		orDot(rec.User),
		orDot(rec.Project),
		orDot(rec.JobName),
		placeholder,
		orDot(rec.Runtime),
		"not_run",
		orDot(rec.BookedCores),
		placeholder,
		placeholder,
		placeholder,
	}

	return r.appendTimelimit(row, rec)
}

// appendTimelimit adds the trailing timelimit_minutes column in running
// mode
func (r *Reporter) appendTimelimit(row []string, rec *record.JobRecord) []string {
	if !r.opts.Running {
		return row
	}
	if rec.HasTimelimit {
		return append(row, strconv.Itoa(rec.TimelimitMinutes))
	}
	return append(row, placeholder)
}

// overbookedFlag renders the locally computed underutilization flag
func overbookedFlag(booked, used int, verbose bool) string {
	if verbose {
		return fmt.Sprintf("Nodes overbooked: booked %d but used only %d", booked, used)
	}
	return fmt.Sprintf("nodes_overbooked:%d:%d", booked, used)
}

// emit writes one report row, preceded by the header exactly once when
// header display was requested. Quiet mode suppresses rows entirely; the
// summary still appears.
func (r *Reporter) emit(row []string) {
	if r.opts.Quiet {
		return
	}

	if !r.headerDone {
		r.headerDone = true
		if r.opts.Header {
			header := headerFields
			if r.opts.Running {
				header = append(append([]string{}, header...), "timelimit_minutes")
			}
			fmt.Fprintln(r.out, strings.Join(header, "\t"))
		}
	}

	fmt.Fprintln(r.out, strings.Join(row, "\t"))
}

// Skip records a job the active source could not find: warn the operator,
// count it as never run, emit nothing
func (r *Reporter) Skip(id string, reason error) {
	r.counters.NotRun++
	r.logger.Warn("skipping job", "jobid", id, "reason", reason)
}

// Counters returns the run-level tallies
func (r *Reporter) Counters() Counters {
	return r.counters
}

// Summarize writes the end-of-run counts to the diagnostic stream
func (r *Reporter) Summarize() {
	fmt.Fprintf(r.errw, "*** %d job(s) processed, %d never ran, %d had no statistics files\n",
		r.counters.Processed, r.counters.NotRun, r.counters.NoStats)
}

// orDot substitutes the placeholder for empty field values
func orDot(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}
