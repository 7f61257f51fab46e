package source

import (
	"fmt"

	"github.com/livinlefevreloca/jobstats/internal/record"
)

// StdinSource parses pre-formatted key=value record lines fed on standard
// input. The "identifier" passed to Lookup is the whole line.
type StdinSource struct {
	Cluster string
}

// Lookup parses one input line
func (s *StdinSource) Lookup(line string) (*record.JobRecord, error) {
	fields := record.ParseLine(line)
	if _, ok := fields.Get("jobid"); !ok {
		return nil, fmt.Errorf("%w: input line carries no jobid: %q", ErrJobNotFound, line)
	}

	rec := record.FromFields(fields)
	if rec.Cluster == "" {
		rec.Cluster = s.Cluster
	}
	return rec, nil
}
