package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dirInput struct {
	Path          string `json:"path" validate:"required" jsonschema_description:"Directory path to analyze"`
	IncludeHidden bool   `json:"includeHidden,omitempty" default:"false" jsonschema_description:"Include hidden files"`
	Limit         int    `json:"limit,omitempty" default:"5" validate:"min=1,max=50"`
	Style         string `json:"style,omitempty" default:"xml" validate:"oneof=xml markdown plain"`
}

func TestReflect(t *testing.T) {
	s := Reflect(dirInput{})

	assert.Equal(t, "object", s["type"])
	assert.Equal(t, []string{"path"}, s["required"])
	assert.Equal(t, false, s["additionalProperties"])
	assert.NotContains(t, s, "$schema")

	props := s["properties"].(map[string]any)
	require.Contains(t, props, "path")
	assert.Equal(t, "Directory path to analyze", props["path"].(map[string]any)["description"])
	assert.EqualValues(t, 5, props["limit"].(map[string]any)["default"])
	assert.Equal(t, "xml", props["style"].(map[string]any)["default"])
}

func TestReflectNil(t *testing.T) {
	s := Reflect(nil)
	assert.Equal(t, "object", s["type"])
}

func TestDecodeAppliesDefaults(t *testing.T) {
	in, err := Decode[dirInput]([]byte(`{"path":"./"}`))
	require.NoError(t, err)

	assert.Equal(t, "./", in.Path)
	assert.False(t, in.IncludeHidden)
	assert.Equal(t, 5, in.Limit)
	assert.Equal(t, "xml", in.Style)
}

func TestDecodeKeepsExplicitValues(t *testing.T) {
	in, err := Decode[dirInput]([]byte(`{"path":"src","includeHidden":true,"limit":9,"style":"plain"}`))
	require.NoError(t, err)

	assert.True(t, in.IncludeHidden)
	assert.Equal(t, 9, in.Limit)
	assert.Equal(t, "plain", in.Style)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"missing required", `{}`, "path"},
		{"empty input", ``, "path"},
		{"bad json", `{"path":`, "invalid input"},
		{"wrong type", `{"path": 3}`, "invalid input"},
		{"out of range", `{"path":"x","limit":99}`, "limit"},
		{"bad enum", `{"path":"x","style":"html"}`, "style"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[dirInput]([]byte(tt.raw))
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecodeMap(t *testing.T) {
	var in dirInput
	require.NoError(t, DecodeMap(map[string]any{"path": "./", "includeHidden": false}, &in))
	assert.Equal(t, "./", in.Path)

	err := DecodeMap(map[string]any{"includeHidden": true}, &dirInput{})
	assert.ErrorIs(t, err, ErrInvalid)
}
