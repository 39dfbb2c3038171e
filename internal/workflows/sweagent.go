package workflows

import (
	"context"
	"errors"

	"github.com/klubi/stratus/internal/dirsummary"
	"github.com/klubi/stratus/internal/workflow"
)

const (
	SWEAgentKey       = "sweAgentWorkflow"
	ListDirectoriesID = "list-directories"
)

// DirectoryTrigger is the trigger data and step input of the swe-agent
// workflow.
type DirectoryTrigger struct {
	Path          string `json:"path" validate:"required" jsonschema_description:"Path to analyze"`
	IncludeHidden bool   `json:"includeHidden,omitempty" default:"false" jsonschema_description:"Include hidden directories"`
}

// DirectoryListing is the output of list-directories.
type DirectoryListing struct {
	Path           string         `json:"path"`
	Directories    []string       `json:"directories"`
	DirectoryCount int            `json:"directoryCount"`
	FileCount      int            `json:"fileCount"`
	FileTypes      map[string]int `json:"fileTypes"`
}

// SWEAgent lists and summarizes a directory below root.
func SWEAgent(root string) *workflow.Workflow {
	list := &workflow.Step{
		ID:          ListDirectoriesID,
		Description: "Lists directories at the given path",
		Input:       DirectoryTrigger{},
		Execute: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
			in, ok := workflow.InputAs[DirectoryTrigger](sc)
			if !ok {
				return nil, workflow.Permanent(errors.New("input data not found"))
			}
			s, err := dirsummary.Summarize(ctx, dirsummary.Options{
				Root:          root,
				Path:          in.Path,
				IncludeHidden: in.IncludeHidden,
			})
			if err != nil {
				// Sandbox and missing-path errors do not heal on retry.
				return nil, workflow.Permanent(err)
			}
			return DirectoryListing{
				Path:           in.Path,
				Directories:    s.Directories,
				DirectoryCount: s.DirectoryCount,
				FileCount:      s.TotalFiles,
				FileTypes:      s.FileTypes,
			}, nil
		},
	}

	return workflow.New("swe-agent-workflow", DirectoryTrigger{}).
		Step(list).
		Commit()
}
