package source

import (
	"fmt"
	"time"

	"github.com/livinlefevreloca/jobstats/internal/db"
	"github.com/livinlefevreloca/jobstats/internal/record"
)

// defaultWindow is how far back the accounting cache is queried
const defaultWindow = 30 * 24 * time.Hour

// DBSource enumerates a project's recent jobs from the local accounting
// cache. Rows are re-rendered into the finished-job tool's key=value line
// shape and run through the same parser, so downstream handling is
// source-agnostic.
type DBSource struct {
	DB      *db.DB
	Cluster string

	// Window overrides the trailing query window; zero means 30 days
	Window time.Duration

	// Now is overridable for tests
	Now func() time.Time
}

// Project returns the project's jobs on this cluster within the window
func (s *DBSource) Project(project string) ([]*record.JobRecord, error) {
	window := s.Window
	if window == 0 {
		window = defaultWindow
	}

	since := s.now().Add(-window)
	jobs, err := s.DB.JobsForProject(s.Cluster, project, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounting cache for project %s: %w", project, err)
	}

	records := make([]*record.JobRecord, 0, len(jobs))
	for i := range jobs {
		rec := record.FromFields(record.ParseLine(jobs[i].FieldLine()))
		if rec.Cluster == "" {
			rec.Cluster = s.Cluster
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *DBSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
