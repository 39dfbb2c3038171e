package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// outputFormat is set by the root command's -o flag.
var outputFormat string

var outputFormats = []string{"table", "json", "yaml"}

// stdout receives tables and encoded output. Tests replace it.
var stdout io.Writer = os.Stdout

func checkOutputFormat() error {
	if slices.Contains(outputFormats, outputFormat) {
		return nil
	}
	return fmt.Errorf("unsupported output format %q (want %s)", outputFormat, strings.Join(outputFormats, "|"))
}

// structured reports whether -o asked for machine-readable output.
func structured() bool {
	return outputFormat == "json" || outputFormat == "yaml"
}

// encode writes v as YAML when -o yaml, JSON otherwise.
func encode(v any) error {
	if outputFormat == "yaml" {
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// printList renders items as a table, or encodes the whole slice when -o
// is json or yaml.
func printList[T any](items []T, headers []string, toRow func(T) []string) error {
	if structured() {
		return encode(items)
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, toRow(it))
	}
	return writeTable(stdout, headers, rows)
}

// printItem is printList for a single resource; structured output is the
// bare object rather than a one-element list.
func printItem[T any](item T, headers []string, toRow func(T) []string) error {
	if structured() {
		return encode(item)
	}
	return writeTable(stdout, headers, [][]string{toRow(item)})
}

var ageUnits = []struct {
	d      time.Duration
	suffix string
}{
	{24 * time.Hour, "d"},
	{time.Hour, "h"},
	{time.Minute, "m"},
}

// formatAge renders time since t in its largest whole unit, like 4d or 35s.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	for _, u := range ageUnits {
		if d >= u.d {
			return fmt.Sprintf("%d%s", d/u.d, u.suffix)
		}
	}
	return fmt.Sprintf("%ds", d/time.Second)
}
