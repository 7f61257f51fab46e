package source

import (
	"fmt"
	"time"

	"github.com/livinlefevreloca/jobstats/internal/record"
)

// squeueFormat makes the running-job tool emit the same key=value line
// shape as the finished-job tool
const squeueFormat = "jobid=%i jobstate=%T username=%u account=%a jobname=%j runtime=%M timelimit=%l nodes=%N"

// RunningSource queries live scheduler state for an in-progress job
type RunningSource struct {
	Tool    string
	Cluster string
	Runner  Runner

	// Now is overridable for tests; the scheduled end time of a running
	// job depends on it
	Now func() time.Time
}

// Lookup queries one running job by id. The record carries the parsed
// timelimit in whole minutes and, when the tool did not report an end
// time, the scheduled end computed from the remaining limit.
func (s *RunningSource) Lookup(jobid string) (*record.JobRecord, error) {
	out, err := s.Runner.Run(s.Tool, "-h", "-M", s.Cluster, "-j", jobid, "-o", squeueFormat)
	if err != nil {
		return nil, err
	}

	line := lastNonEmptyLine(out)
	if line == "" {
		return nil, fmt.Errorf("%w: job %s is not in the queue on cluster %s", ErrJobNotFound, jobid, s.Cluster)
	}

	fields := record.ParseLine(line)
	if _, ok := fields.Get("jobid"); !ok {
		return nil, fmt.Errorf("%w: job %s is not in the queue on cluster %s", ErrJobNotFound, jobid, s.Cluster)
	}

	rec := record.FromFields(fields)
	if rec.Cluster == "" {
		rec.Cluster = s.Cluster
	}

	if rec.EndTime == "" && rec.HasTimelimit {
		rec.EndTime = s.now().Add(time.Duration(rec.TimelimitMinutes) * time.Minute).Format("2006-01-02T15:04:05")
	}

	return rec, nil
}

func (s *RunningSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
