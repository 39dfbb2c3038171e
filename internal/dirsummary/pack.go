package dirsummary

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

type Style string

const (
	StyleXML      Style = "xml"
	StyleMarkdown Style = "markdown"
	StylePlain    Style = "plain"
)

// ParseStyle accepts the style names used on the command line.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(s)) {
	case "", StyleXML:
		return StyleXML, nil
	case StyleMarkdown, "md":
		return StyleMarkdown, nil
	case StylePlain, "txt", "text":
		return StylePlain, nil
	}
	return "", fmt.Errorf("unknown pack style %q (want xml, markdown or plain)", s)
}

const (
	binarySniffLen  = 8 << 10
	maxInlineSize   = 1 << 20
	packHeaderTitle = "This file is a merged representation of a directory, packed for consumption by an LLM."
)

type PackResult struct {
	TotalFiles int      `json:"totalFiles"`
	TotalChars int      `json:"totalChars"`
	Skipped    []string `json:"skipped,omitempty"`
}

// packedFile is a file selected for output. content is nil when the file is
// binary or too large to inline.
type packedFile struct {
	rel     string
	content []byte
	reason  string
}

type packWriter interface {
	header(w io.Writer)
	tree(w io.Writer, lines []string)
	file(w io.Writer, f packedFile)
	footer(w io.Writer)
}

// Pack writes the directory structure followed by every file's contents.
// Binary files (NUL within the first 8 KiB) and files over 1 MiB are listed
// but not inlined.
func Pack(ctx context.Context, opts Options, w io.Writer, style Style) (*PackResult, error) {
	_, entries, err := walk(ctx, opts)
	if err != nil {
		return nil, err
	}

	pw, err := writerFor(style)
	if err != nil {
		return nil, err
	}

	var files []packedFile
	res := &PackResult{}
	for _, e := range entries {
		if e.isDir {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := readPacked(e)
		if err != nil {
			return nil, err
		}
		if f.content == nil {
			res.Skipped = append(res.Skipped, e.rel)
		}
		res.TotalFiles++
		res.TotalChars += len(f.content)
		files = append(files, f)
	}

	bw := bufio.NewWriter(w)
	pw.header(bw)
	pw.tree(bw, treeLines(entries))
	for _, f := range files {
		pw.file(bw, f)
	}
	pw.footer(bw)
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("writing pack: %w", err)
	}
	return res, nil
}

func readPacked(e entry) (packedFile, error) {
	f := packedFile{rel: e.rel}
	if e.size > maxInlineSize {
		f.reason = "file too large"
		return f, nil
	}
	data, err := os.ReadFile(e.abs)
	if err != nil {
		return f, fmt.Errorf("reading %s: %w", e.rel, err)
	}
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		f.reason = "binary file"
		return f, nil
	}
	f.content = data
	return f, nil
}

// treeLines renders entries as an indented tree; directories end in "/".
func treeLines(entries []entry) []string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		depth := strings.Count(e.rel, "/")
		name := path.Base(e.rel)
		if e.isDir {
			name += "/"
		}
		lines = append(lines, strings.Repeat("  ", depth)+name)
	}
	return lines
}

func writerFor(style Style) (packWriter, error) {
	switch style {
	case StyleXML, "":
		return xmlPack{}, nil
	case StyleMarkdown:
		return markdownPack{}, nil
	case StylePlain:
		return plainPack{}, nil
	}
	return nil, fmt.Errorf("unknown pack style %q", style)
}

type xmlPack struct{}

func (xmlPack) header(w io.Writer) {
	fmt.Fprintf(w, "<file_summary>\n%s\n</file_summary>\n\n", packHeaderTitle)
}

func (xmlPack) tree(w io.Writer, lines []string) {
	fmt.Fprintf(w, "<directory_structure>\n%s\n</directory_structure>\n\n<files>\n", strings.Join(lines, "\n"))
}

func (xmlPack) file(w io.Writer, f packedFile) {
	if f.content == nil {
		fmt.Fprintf(w, "<file path=%q skipped=%q/>\n\n", f.rel, f.reason)
		return
	}
	fmt.Fprintf(w, "<file path=%q>\n%s\n</file>\n\n", f.rel, strings.TrimRight(string(f.content), "\n"))
}

func (xmlPack) footer(w io.Writer) {
	fmt.Fprintln(w, "</files>")
}

type markdownPack struct{}

func (markdownPack) header(w io.Writer) {
	fmt.Fprintf(w, "%s\n\n", packHeaderTitle)
}

func (markdownPack) tree(w io.Writer, lines []string) {
	fmt.Fprintf(w, "# Directory Structure\n```\n%s\n```\n\n# Files\n\n", strings.Join(lines, "\n"))
}

func (markdownPack) file(w io.Writer, f packedFile) {
	fmt.Fprintf(w, "## File: %s\n", f.rel)
	if f.content == nil {
		fmt.Fprintf(w, "_(%s, not included)_\n\n", f.reason)
		return
	}
	lang := strings.TrimPrefix(path.Ext(f.rel), ".")
	fmt.Fprintf(w, "```%s\n%s\n```\n\n", lang, strings.TrimRight(string(f.content), "\n"))
}

func (markdownPack) footer(io.Writer) {}

type plainPack struct{}

const plainRule = "================================================================"

func (plainPack) header(w io.Writer) {
	fmt.Fprintf(w, "%s\n\n", packHeaderTitle)
}

func (plainPack) tree(w io.Writer, lines []string) {
	fmt.Fprintf(w, "%s\nDirectory Structure\n%s\n%s\n\n", plainRule, plainRule, strings.Join(lines, "\n"))
}

func (plainPack) file(w io.Writer, f packedFile) {
	fmt.Fprintf(w, "%s\nFile: %s\n%s\n", plainRule, f.rel, plainRule)
	if f.content == nil {
		fmt.Fprintf(w, "(%s, not included)\n\n", f.reason)
		return
	}
	fmt.Fprintf(w, "%s\n\n", strings.TrimRight(string(f.content), "\n"))
}

func (plainPack) footer(io.Writer) {}
