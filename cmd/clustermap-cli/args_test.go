package main

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// executeArgs runs the given root command with args and returns any error.
// It suppresses cobra's usage/error output so test output stays clean.
func executeArgs(t *testing.T, root *cobra.Command, args ...string) error {
	t.Helper()
	root.SetOut(&strings.Builder{})
	root.SetErr(&strings.Builder{})
	root.SetArgs(args)
	_, err := root.ExecuteC()
	return err
}

// newTestRoot builds the real command tree with PersistentPreRun stubbed out
// so the API client is never initialised. Only invocations that fail before
// touching the client are safe to execute.
func newTestRoot(t *testing.T) *cobra.Command {
	t.Helper()
	resetFlags(t)
	root := newRootCmd()
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {}
	return root
}

func TestArgValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"search needs a query", []string{"search"}, "accepts 1 arg"},
		{"search takes one query", []string{"search", "a", "b"}, "accepts 1 arg"},
		{"clusters takes no args", []string{"clusters", "extra"}, "unknown command"},
		{"points rejects zero size", []string{"points", "--size", "0"}, "--size"},
		{"points rejects negative offset", []string{"points", "--offset", "-1"}, "--offset"},
		{"session get needs id", []string{"session", "get"}, "accepts 1 arg"},
		{"session search needs query", []string{"session", "search", "s1"}, "accepts 2 arg"},
		{"session select needs a facet", []string{"session", "select", "s1"}, "exactly one of"},
		{"session select rejects two facets", []string{"session", "select", "s1", "--cluster", "c", "--point", "doc:1"}, "exactly one of"},
		{"session select rejects bad date", []string{"session", "select", "s1", "--from", "yesterday"}, "--from"},
		{"explore rejects inverted range", []string{"explore", "--from", "2024-02-01", "--to", "2024-01-01"}, "is after"},
		{"import needs a source", []string{"import", "--dry-run"}, "required"},
		{"import rejects mixed sources", []string{"import", "--sqlite", "x.db", "--points", "p.json"}, "cannot be combined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executeArgs(t, newTestRoot(t), tt.args...)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestRootHasCommands(t *testing.T) {
	root := newTestRoot(t)
	want := []string{"init", "doctor", "clusters", "points", "search", "explore", "session", "import"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		wantNil  bool
		wantErr  bool
		wantFrom string
		wantTo   string
	}{
		{name: "no bounds", wantNil: true},
		{name: "both bounds", from: "2024-01-01", to: "2024-03-31", wantFrom: "2024-01-01", wantTo: "2024-03-31"},
		{name: "open end", from: "2024-01-01", wantFrom: "2024-01-01", wantTo: "9999-12-31"},
		{name: "open start", to: "2020-06-01", wantFrom: "0001-01-01", wantTo: "2020-06-01"},
		{name: "rfc3339", from: "2024-01-01T10:00:00Z", to: "2024-01-01T12:00:00Z", wantFrom: "2024-01-01", wantTo: "2024-01-01"},
		{name: "single day is valid", from: "2024-05-05", to: "2024-05-05", wantFrom: "2024-05-05", wantTo: "2024-05-05"},
		{name: "inverted", from: "2024-02-01", to: "2024-01-01", wantErr: true},
		{name: "garbage", from: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dr, err := parseRange(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if dr != nil {
					t.Errorf("expected nil range, got %+v", dr)
				}
				return
			}
			if got := dr.From.Format("2006-01-02"); got != tt.wantFrom {
				t.Errorf("from = %s, want %s", got, tt.wantFrom)
			}
			if got := dr.To.Format("2006-01-02"); got != tt.wantTo {
				t.Errorf("to = %s, want %s", got, tt.wantTo)
			}
		})
	}
}
