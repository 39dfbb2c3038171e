// Package dirsummary walks a directory inside a sandbox root and reports
// what it contains: file counts, sizes, extension breakdown and the largest
// files. Pack renders the same walk as a single document for an LLM.
package dirsummary

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// MaxLargestFiles caps Summary.LargestFiles.
const MaxLargestFiles = 5

// NoExtension is the FileTypes key for files without an extension.
const NoExtension = "(none)"

type Options struct {
	// Root is the sandbox. Path is resolved relative to it.
	Root          string
	Path          string
	IncludeHidden bool
}

type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Path string `json:"path"`
}

type Summary struct {
	Path           string         `json:"path"`
	TotalFiles     int            `json:"totalFiles"`
	TotalSize      int64          `json:"totalSize"`
	FileTypes      map[string]int `json:"fileTypes"`
	LargestFiles   []FileInfo     `json:"largestFiles"`
	DirectoryCount int            `json:"directoryCount"`
	// Directories holds the names of immediate child directories.
	Directories []string `json:"directories"`
}

// entry is one walked file or directory. rel is slash-separated and
// relative to the walk root.
type entry struct {
	rel   string
	abs   string
	size  int64
	isDir bool
}

// walk lists every visible entry below opts.Path in lexical order.
func walk(ctx context.Context, opts Options) (string, []entry, error) {
	absRoot, err := ResolveRoot(opts.Root)
	if err != nil {
		return "", nil, err
	}
	base, err := ResolvePath(absRoot, opts.Path)
	if err != nil {
		return "", nil, err
	}
	var ignore ignoreSet
	ignore.load(base, nil)

	var entries []entry
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == base {
			return nil
		}

		name := d.Name()
		rel, _ := filepath.Rel(base, p)
		rel = filepath.ToSlash(rel)

		skip := alwaysSkip[name] ||
			(!opts.IncludeHidden && strings.HasPrefix(name, ".")) ||
			ignore.match(rel, d.IsDir())
		if skip {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		// Symlinks are neither followed nor counted.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			ignore.load(p, splitRel(rel))
		}

		e := entry{rel: rel, abs: p, isDir: d.IsDir()}
		if !d.IsDir() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if !fi.Mode().IsRegular() {
				return nil
			}
			e.size = fi.Size()
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return base, entries, nil
}

// Summarize walks opts.Path and aggregates what it finds.
func Summarize(ctx context.Context, opts Options) (*Summary, error) {
	_, entries, err := walk(ctx, opts)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Path:         opts.Path,
		FileTypes:    map[string]int{},
		LargestFiles: []FileInfo{},
		Directories:  []string{},
	}
	var files []FileInfo
	for _, e := range entries {
		if e.isDir {
			s.DirectoryCount++
			if !strings.Contains(e.rel, "/") {
				s.Directories = append(s.Directories, e.rel)
			}
			continue
		}
		s.TotalFiles++
		s.TotalSize += e.size
		s.FileTypes[extension(e.rel)]++
		files = append(files, FileInfo{Name: filepath.Base(e.rel), Size: e.size, Path: e.rel})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Size != files[j].Size {
			return files[i].Size > files[j].Size
		}
		return files[i].Path < files[j].Path
	})
	if len(files) > MaxLargestFiles {
		files = files[:MaxLargestFiles]
	}
	s.LargestFiles = append(s.LargestFiles, files...)
	sort.Strings(s.Directories)
	return s, nil
}

func extension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return NoExtension
	}
	return ext
}
