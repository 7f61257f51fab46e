// Package source obtains raw per-job records and normalizes them. Four
// variants exist: the finished-job query tool, the running-job query tool,
// the local accounting cache, and pre-formatted stdin lines. All of them
// produce the same record.JobRecord shape, selected once at startup.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/livinlefevreloca/jobstats/internal/record"
)

// Standard errors
var (
	// ErrJobNotFound means the source ran but produced no record for the
	// job; per-job recoverable.
	ErrJobNotFound = errors.New("source: job not found")

	// ErrToolNotFound means the external query tool could not be started;
	// fatal for the run.
	ErrToolNotFound = errors.New("source: query tool not found")
)

// Source produces one normalized job record per identifier. The identifier
// is a job id for the query-tool sources and a whole pre-formatted line for
// the stdin source.
type Source interface {
	Lookup(id string) (*record.JobRecord, error)
}

// ProjectSource enumerates all records for a project
type ProjectSource interface {
	Project(project string) ([]*record.JobRecord, error)
}

// Runner runs an external command and captures its standard output. The
// command's standard error passes through to the operator. Calls block
// until the command exits; no timeout is enforced.
type Runner interface {
	Run(name string, args ...string) (string, error)
}

// CommandRunner is the os/exec backed Runner used outside of tests
type CommandRunner struct{}

// Run implements Runner
func (CommandRunner) Run(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s: %v", ErrToolNotFound, name, err)
		}
		return "", fmt.Errorf("command %s failed: %w", name, err)
	}

	return out.String(), nil
}

// lastNonEmptyLine returns the last non-blank line of command output. The
// query tools occasionally prefix their record with chatter on earlier
// lines; the record line is always last.
func lastNonEmptyLine(out string) string {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// recordLines returns every non-blank output line that tokenizes to a
// record carrying a jobid
func recordLines(out string) []record.Fields {
	var result []record.Fields
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		f := record.ParseLine(line)
		if _, ok := f.Get("jobid"); ok {
			result = append(result, f)
		}
	}
	return result
}
