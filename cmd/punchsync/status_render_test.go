package main

import (
	"io"
	"strings"
	"testing"
)

func TestTitleLabel(t *testing.T) {
	cases := map[string]string{
		"on_leave":     "On Leave",
		"late":         "Late",
		"late_notices": "Late Notices",
		"":             "",
	}
	for in, want := range cases {
		if got := titleLabel(in); got != want {
			t.Fatalf("titleLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Unprocessed Punches", statusWarn, "3", false)
	if !strings.Contains(line, "Unprocessed Punches:") || !strings.HasSuffix(line, "[WARN] 3") {
		t.Fatalf("unexpected line %q", line)
	}
	colored := renderStatusLine("Daemon", statusError, "", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected red line, got %q", colored)
	}
	if shouldColorize(io.Discard) {
		t.Fatal("non-terminal writer must not be colorized")
	}
	if got := colorizeCell("Absent", attendanceStatusKind("absent"), false); got != "Absent" {
		t.Fatalf("expected plain cell, got %q", got)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"Device", "Inserted"}, [][]string{{"Gate"}, {"Dock", "4"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"DEVICE", "INSERTED", "GATE", "DOCK", "4"} {
		if !strings.Contains(strings.ToUpper(out), want) {
			t.Fatalf("table missing %q\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty table without headers")
	}
}
