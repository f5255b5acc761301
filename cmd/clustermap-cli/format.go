package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// stdout receives command output. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

func formatJSON(v any) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		fatal("encoding output", err)
	}
}

// formatTable prints rows under a header and a dashed rule, columns
// aligned on the widest cell.
func formatTable(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)

	rule := make([]string, len(headers))
	for i, h := range headers {
		w := len([]rune(h))
		for _, row := range rows {
			if i < len(row) {
				w = max(w, len([]rune(row[i])))
			}
		}
		rule[i] = strings.Repeat("-", w)
	}

	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	fmt.Fprintln(tw, strings.Join(rule, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush() //nolint:errcheck // stdout
}

func formatLines(lines []string) {
	for _, l := range lines {
		if l != "" {
			fmt.Fprintln(stdout, l)
		}
	}
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'f', 3, 64) }

func fmtDate(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return t.Format(time.DateOnly)
}

// output prints v as JSON, or only the quiet values under --format quiet.
// Table rendering is done by the callers that support it.
func output(v any, quiet ...string) {
	if flagFmt == "quiet" {
		formatLines(quiet)
		return
	}

	formatJSON(v)
}
