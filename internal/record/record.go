// Package record defines the normalized job record produced by every job
// source, plus the parsers for the key=value line protocol the sources
// speak.
package record

import (
	"fmt"
	"strconv"
	"strings"
)

// State is the normalized job state
type State string

const (
	StateCompleted State = "COMPLETED"
	StateRunning   State = "RUNNING"
	StateFailed    State = "FAILED"
	StateTimeout   State = "TIMEOUT"
	StateCancelled State = "CANCELLED"
	StateUnknown   State = "UNKNOWN"
)

// ParseState normalizes a raw scheduler state string. Anything outside the
// known set (strings like "CANCELLED by 1234" included) collapses to the
// closest known state or UNKNOWN.
func ParseState(raw string) State {
	s := strings.ToUpper(strings.TrimSpace(raw))

	// Slurm appends detail after the state word, eg "CANCELLED by 1234"
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}

	switch State(s) {
	case StateCompleted, StateRunning, StateFailed, StateTimeout, StateCancelled:
		return State(s)
	default:
		return StateUnknown
	}
}

// JobRecord is one normalized job, regardless of which source produced it.
// Fields the source did not report stay at their zero value; callers must
// treat an empty NodeSpec as "job never started". Records are constructed
// by FromFields and not modified afterwards.
type JobRecord struct {
	JobID   string
	Cluster string
	State   State
	User    string
	Project string
	JobName string
	EndTime string
	Runtime string

	// BookedCores holds the requested core count as reported; empty when
	// the source omitted it.
	BookedCores string

	// NodeSpec is the raw node specification (compact or literal form);
	// empty when the job never started.
	NodeSpec string

	// TimelimitMinutes is set only by the running-job source.
	TimelimitMinutes int
	HasTimelimit     bool
}

// Fields is one tokenized key=value record line
type Fields map[string]string

// ParseLine tokenizes a single key=value record line. Tokens are split on
// whitespace; tokens without '=' (leading timestamp words and the like) are
// skipped. The last occurrence of a key wins.
func ParseLine(line string) Fields {
	fields := Fields{}
	for _, tok := range strings.Fields(line) {
		eq := strings.IndexByte(tok, '=')
		if eq <= 0 {
			continue
		}
		fields[tok[:eq]] = tok[eq+1:]
	}
	return fields
}

// Get returns the value for key and whether it was present
func (f Fields) Get(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

// first returns the value of the first key present from the given aliases
func (f Fields) first(keys ...string) string {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			return v
		}
	}
	return ""
}

// FromFields builds a JobRecord from a tokenized line. The finished-job
// tool and the running-job tool disagree on a few key names (username vs
// user, account vs project, procs vs cores), so aliases are accepted.
func FromFields(f Fields) *JobRecord {
	rec := &JobRecord{
		JobID:       f.first("jobid"),
		Cluster:     f.first("cluster"),
		State:       ParseState(f.first("jobstate", "state")),
		User:        f.first("username", "user"),
		Project:     f.first("account", "project"),
		JobName:     f.first("jobname"),
		EndTime:     f.first("end_time", "endtime"),
		Runtime:     f.first("runtime"),
		BookedCores: f.first("procs", "cores"),
		NodeSpec:    f.first("nodes", "nodelist"),
	}

	if tl, ok := f.Get("timelimit"); ok {
		if minutes, err := ParseTimelimit(tl); err == nil {
			rec.TimelimitMinutes = minutes
			rec.HasTimelimit = true
		}
	}

	return rec
}

// ParseTimelimit converts a scheduler duration of the form [days-]hh:mm:ss
// (shorter forms hh:mm and mm are accepted as squeue emits them) into whole
// minutes. Seconds round up to the next whole minute.
func ParseTimelimit(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timelimit")
	}

	days := 0
	rest := s
	if i := strings.IndexByte(s, '-'); i >= 0 {
		d, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid timelimit days in %q: %w", s, err)
		}
		days = d
		rest = s[i+1:]
	}

	parts := strings.Split(rest, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timelimit %q", s)
	}

	vals := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid timelimit component %q in %q: %w", p, s, err)
		}
		if v < 0 {
			return 0, fmt.Errorf("negative timelimit component in %q", s)
		}
		vals[i] = v
	}

	var hours, minutes, seconds int
	switch len(vals) {
	case 3: // hh:mm:ss
		hours, minutes, seconds = vals[0], vals[1], vals[2]
	case 2: // hh:mm
		hours, minutes = vals[0], vals[1]
	case 1: // mm
		minutes = vals[0]
	}

	// Seconds round up: a limit of 4 seconds still occupies a minute
	minutes += (seconds + 59) / 60

	return days*1440 + hours*60 + minutes, nil
}
