package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Job Operations
// =============================================================================

// Job is one finished-job accounting row
type Job struct {
	JobID   string
	Cluster string
	State   string
	User    string
	Project string
	JobName string
	Start   time.Time
	End     time.Time
	Cores   int
	Nodes   string
}

// InsertJob creates a new accounting row
func (db *DB) InsertJob(job *Job) error {
	query := `
		INSERT INTO jobs (jobid, cluster, state, username, project, jobname, start_time, end_time, cores, nodes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		job.JobID, job.Cluster, job.State, job.User, job.Project,
		job.JobName, job.Start.Unix(), job.End.Unix(), job.Cores, job.Nodes)
	return err
}

// JobsForProject retrieves a project's jobs on a cluster that ended at or
// after since, ordered by end time
func (db *DB) JobsForProject(cluster, project string, since time.Time) ([]Job, error) {
	query := `
		SELECT jobid, cluster, state, username, project, jobname, start_time, end_time, cores, nodes
		FROM jobs
		WHERE cluster = ? AND project = ? AND end_time >= ?
		ORDER BY end_time ASC
	`

	rows, err := db.Query(query, cluster, project, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		var start, end int64
		err := rows.Scan(
			&job.JobID,
			&job.Cluster,
			&job.State,
			&job.User,
			&job.Project,
			&job.JobName,
			&start,
			&end,
			&job.Cores,
			&job.Nodes,
		)
		if err != nil {
			return nil, err
		}
		job.Start = time.Unix(start, 0).UTC()
		job.End = time.Unix(end, 0).UTC()
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// FieldLine renders the row in the finished-job tool's native key=value
// line shape, so downstream parsing is source-agnostic
func (j *Job) FieldLine() string {
	line := fmt.Sprintf(
		"jobid=%s jobstate=%s username=%s account=%s jobname=%s end_time=%s runtime=%s procs=%d",
		j.JobID, j.State, j.User, j.Project, j.JobName,
		j.End.Format("2006-01-02T15:04:05"),
		FormatDuration(j.End.Sub(j.Start)),
		j.Cores,
	)
	if j.Nodes != "" {
		line += " nodes=" + j.Nodes
	}
	return line
}

// FormatDuration renders a duration as HH:MM:SS, or D-HH:MM:SS once it
// exceeds 24 hours
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	total := int64(d.Seconds())

	// Up to and including 24 hours stays in HH:MM:SS form
	if total <= 86400 {
		return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}

	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%d-%02d:%02d:%02d", days, hours, minutes, seconds)
}

// =============================================================================
// Run Log Operations
// =============================================================================

// Run is one reporter invocation's summary
type Run struct {
	ID        string
	StartedAt time.Time
	Processed int
	NotRun    int
	NoStats   int
}

// RecordRun appends a run-log row. An ID is assigned when empty.
func (db *DB) RecordRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	query := `
		INSERT INTO run_log (id, started_at, processed, not_run, no_stats)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, run.ID, run.StartedAt.Unix(), run.Processed, run.NotRun, run.NoStats)
	return err
}

// RecentRuns returns the most recent run-log rows, newest first
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, processed, not_run, no_stats
		FROM run_log
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started int64
		if err := rows.Scan(&run.ID, &started, &run.Processed, &run.NotRun, &run.NoStats); err != nil {
			return nil, err
		}
		run.StartedAt = time.Unix(started, 0).UTC()
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
