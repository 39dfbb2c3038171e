// Package tools defines callable capabilities shared by agents and workflow
// steps. A Tool carries JSON Schemas for its input and output and executes
// on raw JSON, so it can be driven by a model's tool call or an HTTP body.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/klubi/stratus/internal/llm"
	"github.com/klubi/stratus/internal/schema"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

type Tool struct {
	ID           string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any

	execute func(ctx context.Context, input json.RawMessage) (any, error)
}

// New builds a Tool whose schemas are reflected from In and Out. Input is
// decoded, defaulted and validated before fn runs.
func New[In, Out any](id, description string, fn func(ctx context.Context, in In) (Out, error)) *Tool {
	var in In
	var out Out
	return &Tool{
		ID:           id,
		Description:  description,
		InputSchema:  schema.Reflect(in),
		OutputSchema: schema.Reflect(out),
		execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			decoded, err := schema.Decode[In](raw)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", id, err)
			}
			return fn(ctx, decoded)
		},
	}
}

// Execute runs the tool on raw JSON input.
func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	return t.execute(ctx, input)
}

// Spec describes the tool to a model.
func (t *Tool) Spec() llm.ToolSpec {
	return llm.ToolSpec{Name: t.ID, Description: t.Description, InputSchema: t.InputSchema}
}

func (t *Tool) Info() v1alpha1.ToolInfo {
	return v1alpha1.ToolInfo{
		ID:           t.ID,
		Description:  t.Description,
		InputSchema:  t.InputSchema,
		OutputSchema: t.OutputSchema,
	}
}

// Set is an ID-indexed collection of tools.
type Set map[string]*Tool

func NewSet(ts ...*Tool) Set {
	s := make(Set, len(ts))
	for _, t := range ts {
		s[t.ID] = t
	}
	return s
}

// IDs returns the tool IDs in sorted order.
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Specs returns model-facing specs in ID order.
func (s Set) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(s))
	for _, id := range s.IDs() {
		specs = append(specs, s[id].Spec())
	}
	return specs
}
