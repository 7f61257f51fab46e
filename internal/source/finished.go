package source

import (
	"fmt"

	"github.com/livinlefevreloca/jobstats/internal/record"
)

// FinishedSource queries the finished-job tool for terminal-state job
// metadata. The tool emits one key=value line per job.
type FinishedSource struct {
	Tool    string
	Cluster string
	Runner  Runner
}

// Lookup queries one job by id
func (s *FinishedSource) Lookup(jobid string) (*record.JobRecord, error) {
	out, err := s.Runner.Run(s.Tool, "-q", "-M", s.Cluster, "-j", jobid)
	if err != nil {
		return nil, err
	}

	fields := record.ParseLine(lastNonEmptyLine(out))
	if _, ok := fields.Get("jobid"); !ok {
		return nil, fmt.Errorf("%w: job %s on cluster %s", ErrJobNotFound, jobid, s.Cluster)
	}

	return s.normalize(fields), nil
}

// Project queries every finished job of a project, one record line each
func (s *FinishedSource) Project(project string) ([]*record.JobRecord, error) {
	out, err := s.Runner.Run(s.Tool, "-q", "-M", s.Cluster, project)
	if err != nil {
		return nil, err
	}

	var records []*record.JobRecord
	for _, fields := range recordLines(out) {
		records = append(records, s.normalize(fields))
	}
	return records, nil
}

func (s *FinishedSource) normalize(fields record.Fields) *record.JobRecord {
	rec := record.FromFields(fields)
	if rec.Cluster == "" {
		rec.Cluster = s.Cluster
	}
	return rec
}
