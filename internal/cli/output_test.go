package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

func captureOutput(t *testing.T, format string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFormat := stdout, outputFormat
	stdout, outputFormat = &buf, format
	t.Cleanup(func() { stdout, outputFormat = prevOut, prevFormat })
	return &buf
}

var testTools = []v1alpha1.ToolInfo{
	{ID: "get-weather", Description: "Get current weather for a location"},
	{ID: "summarize-directory", Description: "Summarize a directory"},
}

func TestPrintListTable(t *testing.T) {
	buf := captureOutput(t, "table")
	if err := printList(testTools, toolHeaders(), toolToRow); err != nil {
		t.Fatalf("printList: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "DESCRIPTION") {
		t.Errorf("header = %q", lines[0])
	}
	// Columns are aligned: descriptions start at the same offset.
	if strings.Index(lines[1], "Get") != strings.Index(lines[2], "Summarize") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestPrintListJSON(t *testing.T) {
	buf := captureOutput(t, "json")
	if err := printList(testTools, toolHeaders(), toolToRow); err != nil {
		t.Fatalf("printList: %v", err)
	}
	var got []v1alpha1.ToolInfo
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not a JSON list: %v\n%s", err, buf.String())
	}
	if len(got) != 2 || got[1].ID != "summarize-directory" {
		t.Errorf("decoded %+v", got)
	}
}

func TestPrintItemYAML(t *testing.T) {
	buf := captureOutput(t, "yaml")
	if err := printItem(testTools[0], toolHeaders(), toolToRow); err != nil {
		t.Fatalf("printItem: %v", err)
	}
	if strings.HasPrefix(buf.String(), "-") {
		t.Errorf("single item encoded as a list:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "get-weather") {
		t.Errorf("missing id:\n%s", buf.String())
	}
}

func TestCheckOutputFormat(t *testing.T) {
	for _, f := range []string{"table", "json", "yaml"} {
		captureOutput(t, f)
		if err := checkOutputFormat(); err != nil {
			t.Errorf("%s: %v", f, err)
		}
	}
	captureOutput(t, "xml")
	if err := checkOutputFormat(); err == nil {
		t.Error("expected error for xml")
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Now()
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "-"},
		{now.Add(-30 * time.Second), "30s"},
		{now.Add(-5 * time.Minute), "5m"},
		{now.Add(-3 * time.Hour), "3h"},
		{now.Add(-50 * time.Hour), "2d"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.at); got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}
