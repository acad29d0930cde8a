package main

import (
	"strings"
	"testing"
	"time"

	"translarr/internal/api"
)

func TestRootCommandStructure(t *testing.T) {
	root := newRootCommand()
	want := []string{"daemon", "status", "queue", "media", "settings", "logs", "config"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestParseRequestID(t *testing.T) {
	if _, err := parseRequestID("abc"); err == nil {
		t.Fatal("non-numeric id must fail")
	}
	if _, err := parseRequestID("0"); err == nil {
		t.Fatal("zero id must fail")
	}
	id, err := parseRequestID(" 42 ")
	if err != nil || id != 42 {
		t.Fatalf("id: %d err: %v", id, err)
	}
}

func TestFormatLogEvent(t *testing.T) {
	evt := api.LogEvent{
		Timestamp: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
		Level:     "info",
		Message:   "translation completed",
		Component: "pipeline",
		RequestID: 7,
		Fields:    map[string]string{"target": "de"},
	}
	line := formatLogEvent(evt)
	for _, want := range []string{"INFO", "[pipeline]", "translation completed", "request=7", "target=de"} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %q: %s", want, line)
		}
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"ID", "Title"},
		[][]string{{"1", "Example"}, {"2"}},
		[]columnAlignment{alignRight, alignLeft},
	)
	if !strings.Contains(out, "Example") || !strings.Contains(out, "ID") {
		t.Fatalf("table output: %s", out)
	}
}
