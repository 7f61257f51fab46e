package report

import (
	"fmt"
	"strings"
)

// delegate hands the field tuple to the external analysis/plot tool and
// returns its flag-list output. A non-empty result replaces the locally
// computed flag field. The call blocks until the tool exits.
func (r *Reporter) delegate(row []string) (string, error) {
	args := []string{
		"--source", r.opts.SourceType,
		"--cpu-free", fmt.Sprintf("%g", r.opts.CPUFree),
	}
	if r.opts.Verbose {
		args = append(args, "--verbose")
	}
	if r.opts.Memory {
		args = append(args, "--memory")
	}
	if r.opts.BigPlot {
		args = append(args, "--big-plot")
	}
	if !r.opts.Plot && !r.opts.BigPlot {
		args = append(args, "--no-plot")
	}
	args = append(args, row...)

	out, err := r.runner.Run(r.opts.PlotTool, args...)
	if err != nil {
		return "", fmt.Errorf("analysis tool failed for job %s: %w", row[colJobID], err)
	}

	return strings.TrimSpace(out), nil
}
