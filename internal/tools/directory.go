package tools

import (
	"context"

	"github.com/klubi/stratus/internal/dirsummary"
)

const DirectorySummaryID = "summarize-directory"

type DirectoryInput struct {
	Path          string `json:"path" validate:"required" jsonschema_description:"Directory path to analyze"`
	IncludeHidden bool   `json:"includeHidden,omitempty" default:"false" jsonschema_description:"Include hidden files"`
}

type DirectorySummary struct {
	TotalFiles     int                   `json:"totalFiles"`
	TotalSize      int64                 `json:"totalSize"`
	FileTypes      map[string]int        `json:"fileTypes"`
	LargestFiles   []dirsummary.FileInfo `json:"largestFiles" jsonschema:"maxItems=5"`
	DirectoryCount int                   `json:"directoryCount"`
}

// DirectorySummaryTool summarizes directories below root.
func DirectorySummaryTool(root string) *Tool {
	return New(DirectorySummaryID, "Get a structured summary of a directory",
		func(ctx context.Context, in DirectoryInput) (DirectorySummary, error) {
			s, err := dirsummary.Summarize(ctx, dirsummary.Options{
				Root:          root,
				Path:          in.Path,
				IncludeHidden: in.IncludeHidden,
			})
			if err != nil {
				return DirectorySummary{}, err
			}
			return DirectorySummary{
				TotalFiles:     s.TotalFiles,
				TotalSize:      s.TotalSize,
				FileTypes:      s.FileTypes,
				LargestFiles:   s.LargestFiles,
				DirectoryCount: s.DirectoryCount,
			}, nil
		})
}
