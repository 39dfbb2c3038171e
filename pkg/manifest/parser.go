// Package manifest parses YAML WorkflowRun manifests for `stratus apply`.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// ParseFile reads a YAML file at path. Multi-document YAML (separated by
// ---) is supported.
func ParseFile(path string) ([]*v1alpha1.WorkflowRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file %s: %w", path, err)
	}
	return ParseBytes(data)
}

// ParseBytes parses raw YAML into WorkflowRun resources.
func ParseBytes(data []byte) ([]*v1alpha1.WorkflowRun, error) {
	var runs []*v1alpha1.WorkflowRun
	decoder := yaml.NewDecoder(bytes.NewReader(data))

	for i := 0; ; i++ {
		var node yaml.Node
		if err := decoder.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding yaml document %d: %w", i, err)
		}
		if node.Kind == 0 {
			continue
		}

		var meta v1alpha1.TypeMeta
		if err := node.Decode(&meta); err != nil {
			return nil, fmt.Errorf("decoding type meta: %w", err)
		}
		if meta.Kind == "" && meta.APIVersion == "" {
			continue
		}
		if meta.Kind != v1alpha1.KindWorkflowRun {
			return nil, fmt.Errorf("document %d: unknown resource kind: %q", i, meta.Kind)
		}

		var run v1alpha1.WorkflowRun
		if err := node.Decode(&run); err != nil {
			return nil, fmt.Errorf("decoding WorkflowRun: %w", err)
		}
		if run.APIVersion == "" {
			run.APIVersion = v1alpha1.APIVersion
		}
		if err := Validate(&run); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

// Validate checks the fields a manifest must set.
func Validate(run *v1alpha1.WorkflowRun) error {
	if run.APIVersion != v1alpha1.APIVersion {
		return fmt.Errorf("validation failed: unsupported apiVersion %q", run.APIVersion)
	}
	if run.Spec.Workflow == "" {
		return errors.New("validation failed: spec.workflow must not be empty")
	}
	if run.Spec.TimeoutSeconds < 0 {
		return errors.New("validation failed: spec.timeoutSeconds must not be negative")
	}
	return nil
}

// Marshal renders runs as multi-document YAML.
func Marshal(runs ...*v1alpha1.WorkflowRun) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, r := range runs {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", r.Metadata.Name, err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
