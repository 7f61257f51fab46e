package record

import (
	"testing"
)

func TestParseLine(t *testing.T) {
	line := "2024-03-01 10:31:17 jobid=123 jobstate=COMPLETED username=alice account=snic2024-1-1 jobname=align.sh procs=16 nodes=m[26,74-75]"
	f := ParseLine(line)

	expected := map[string]string{
		"jobid":    "123",
		"jobstate": "COMPLETED",
		"username": "alice",
		"account":  "snic2024-1-1",
		"jobname":  "align.sh",
		"procs":    "16",
		"nodes":    "m[26,74-75]",
	}

	if len(f) != len(expected) {
		t.Fatalf("expected %d fields, got %d: %v", len(expected), len(f), f)
	}
	for k, v := range expected {
		if got, ok := f.Get(k); !ok || got != v {
			t.Errorf("field %q: expected %q, got %q (present=%v)", k, v, got, ok)
		}
	}
}

func TestParseLine_LastOccurrenceWins(t *testing.T) {
	f := ParseLine("jobid=1 jobid=2")
	if v := f["jobid"]; v != "2" {
		t.Errorf("expected last occurrence to win, got jobid=%q", v)
	}
}

func TestParseLine_SkipsNonKeyValueTokens(t *testing.T) {
	f := ParseLine("Mon Mar 1 =bad jobid=7")
	if len(f) != 1 {
		t.Fatalf("expected 1 field, got %d: %v", len(f), f)
	}
	if f["jobid"] != "7" {
		t.Errorf("expected jobid=7, got %q", f["jobid"])
	}
}

func TestFromFields(t *testing.T) {
	f := ParseLine("jobid=42 jobstate=TIMEOUT username=bob account=proj1 jobname=sim end_time=2024-03-01T10:00:00 runtime=1-00:00:01 procs=32 nodes=m80")
	rec := FromFields(f)

	if rec.JobID != "42" {
		t.Errorf("JobID: got %q", rec.JobID)
	}
	if rec.State != StateTimeout {
		t.Errorf("State: got %q", rec.State)
	}
	if rec.User != "bob" || rec.Project != "proj1" || rec.JobName != "sim" {
		t.Errorf("identity fields: got %q %q %q", rec.User, rec.Project, rec.JobName)
	}
	if rec.EndTime != "2024-03-01T10:00:00" || rec.Runtime != "1-00:00:01" {
		t.Errorf("time fields: got %q %q", rec.EndTime, rec.Runtime)
	}
	if rec.BookedCores != "32" {
		t.Errorf("BookedCores: got %q", rec.BookedCores)
	}
	if rec.NodeSpec != "m80" {
		t.Errorf("NodeSpec: got %q", rec.NodeSpec)
	}
	if rec.HasTimelimit {
		t.Error("HasTimelimit should be false when timelimit absent")
	}
}

func TestFromFields_MissingNodesStaysAbsent(t *testing.T) {
	// A job that never started has no nodes field; it must not be defaulted
	rec := FromFields(ParseLine("jobid=9 jobstate=CANCELLED username=eve account=p jobname=x"))
	if rec.NodeSpec != "" {
		t.Errorf("expected empty NodeSpec, got %q", rec.NodeSpec)
	}
	if rec.Runtime != "" || rec.EndTime != "" || rec.BookedCores != "" {
		t.Errorf("absent fields must stay empty: %+v", rec)
	}
}

func TestFromFields_RunningAliases(t *testing.T) {
	rec := FromFields(ParseLine("jobid=5 state=RUNNING user=carol project=p2 cores=8 nodelist=m[1-2] timelimit=1-02:03:04"))
	if rec.State != StateRunning {
		t.Errorf("State: got %q", rec.State)
	}
	if rec.User != "carol" || rec.Project != "p2" {
		t.Errorf("alias fields: got %q %q", rec.User, rec.Project)
	}
	if rec.BookedCores != "8" || rec.NodeSpec != "m[1-2]" {
		t.Errorf("alias fields: got cores=%q nodes=%q", rec.BookedCores, rec.NodeSpec)
	}
	if !rec.HasTimelimit || rec.TimelimitMinutes != 1564 {
		t.Errorf("timelimit: got has=%v minutes=%d", rec.HasTimelimit, rec.TimelimitMinutes)
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		raw      string
		expected State
	}{
		{"COMPLETED", StateCompleted},
		{"running", StateRunning},
		{"FAILED", StateFailed},
		{"TIMEOUT", StateTimeout},
		{"CANCELLED", StateCancelled},
		{"CANCELLED by 1234", StateCancelled},
		{"NODE_FAIL", StateUnknown},
		{"PENDING", StateUnknown},
		{"", StateUnknown},
	}

	for _, tt := range tests {
		if got := ParseState(tt.raw); got != tt.expected {
			t.Errorf("ParseState(%q) = %q, expected %q", tt.raw, got, tt.expected)
		}
	}
}

func TestParseTimelimit(t *testing.T) {
	tests := []struct {
		in       string
		expected int
	}{
		// 1 day + 2 hours + 3 minutes + ceil(4s) = 1440 + 120 + 3 + 1
		{"1-02:03:04", 1564},
		{"02:03:04", 124},
		{"00:00:01", 1},
		{"00:00:00", 0},
		{"10:00", 600},
		{"2-00:00", 2880},
		{"45", 45},
		{"7-00:00:00", 10080},
		// 59 seconds still rounds up to one whole minute
		{"00:00:59", 1},
	}

	for _, tt := range tests {
		got, err := ParseTimelimit(tt.in)
		if err != nil {
			t.Errorf("ParseTimelimit(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseTimelimit(%q) = %d, expected %d", tt.in, got, tt.expected)
		}
	}
}

func TestParseTimelimit_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1:2:3:4", "x-00:00:00", "00:-1:00"} {
		if _, err := ParseTimelimit(in); err == nil {
			t.Errorf("ParseTimelimit(%q) expected error", in)
		}
	}
}
