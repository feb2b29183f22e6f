package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/himanishpuri/AudioScout/pkg/auscout"
	"github.com/himanishpuri/AudioScout/pkg/auscout/protocol"
)

func TestParseArgs(t *testing.T) {
	inv, err := parseArgs([]string{"2", "/music", "tcp://localhost:4005", "3", "30"})
	if err != nil {
		t.Fatalf("parseArgs failed: %v", err)
	}
	if inv.command != protocol.Submit || inv.dir != "/music" || inv.addr != "tcp://localhost:4005" {
		t.Errorf("unexpected invocation: %+v", inv)
	}
	if inv.toggles != 0 || inv.seconds != 30 {
		t.Errorf("toggles/seconds = %d/%g", inv.toggles, inv.seconds)
	}
}

func TestParseArgsQueryKeepsToggles(t *testing.T) {
	inv, err := parseArgs([]string{"1", "/music", "tcp://localhost:4005", "3", "2.5"})
	if err != nil {
		t.Fatalf("parseArgs failed: %v", err)
	}
	if inv.toggles != 3 || inv.seconds != 2.5 {
		t.Errorf("toggles/seconds = %d/%g", inv.toggles, inv.seconds)
	}
}

func TestParseArgsSubmitIgnoresToggleRange(t *testing.T) {
	inv, err := parseArgs([]string{"2", "/music", "tcp://localhost:4005", "40", "0.75"})
	if err != nil {
		t.Fatalf("parseArgs failed: %v", err)
	}
	if inv.toggles != 0 {
		t.Errorf("toggles = %d, want 0 for submit", inv.toggles)
	}
	if inv.seconds != 0.75 {
		t.Errorf("seconds = %g, want 0.75", inv.seconds)
	}
}

func TestParseArgsRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"too few", []string{"1", "/music", "tcp://localhost:4005", "0"}},
		{"command zero", []string{"0", "/music", "tcp://localhost:4005", "0", "10"}},
		{"command three", []string{"3", "/music", "tcp://localhost:4005", "0", "10"}},
		{"command text", []string{"query", "/music", "tcp://localhost:4005", "0", "10"}},
		{"negative toggles", []string{"1", "/music", "tcp://localhost:4005", "-1", "10"}},
		{"too many toggles", []string{"1", "/music", "tcp://localhost:4005", "33", "10"}},
		{"negative seconds", []string{"1", "/music", "tcp://localhost:4005", "0", "-5"}},
		{"seconds text", []string{"1", "/music", "tcp://localhost:4005", "0", "ten"}},
		{"seconds infinite", []string{"1", "/music", "tcp://localhost:4005", "0", "Inf"}},
		{"submit toggles text", []string{"2", "/music", "tcp://localhost:4005", "x", "10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args)
			if !errors.Is(err, errUsage) {
				t.Errorf("expected usage error, got %v", err)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	sum := &auscout.Summary{
		RunID: "run-1",
		Results: []*auscout.Result{
			{Path: "a.mp3", Command: protocol.Submit, Reply: &protocol.Reply{Command: protocol.Submit, ID: 7}},
			{Path: "b.mp3", Command: protocol.Submit, Err: auscout.ErrInput},
			{Path: "c.mp3", Command: protocol.Submit, Reply: &protocol.Reply{Command: protocol.Submit, ID: 3}, Resumed: true},
		},
		Completed: 2,
		Skipped:   1,
	}

	var buf bytes.Buffer
	printSummary(&buf, protocol.Submit, sum)
	out := buf.String()

	for _, want := range []string{"a.mp3", "id = 7", "b.mp3: skipped", "id = 3 (already submitted)", "run run-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrintUsageMentionsArguments(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	if !strings.Contains(buf.String(), "<toggleCount> <secondsPerFile>") {
		t.Error("usage is missing positional arguments")
	}
}
