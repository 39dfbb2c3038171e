package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubi/stratus/internal/dirsummary"
	"github.com/klubi/stratus/internal/schema"
	"github.com/klubi/stratus/internal/weather"
)

type echoIn struct {
	Text  string `json:"text" validate:"required"`
	Times int    `json:"times,omitempty" default:"1" validate:"min=1,max=3"`
}

type echoOut struct {
	Echo []string `json:"echo"`
}

func echoTool() *Tool {
	return New("echo", "Repeat text", func(ctx context.Context, in echoIn) (echoOut, error) {
		out := echoOut{}
		for i := 0; i < in.Times; i++ {
			out.Echo = append(out.Echo, in.Text)
		}
		return out, nil
	})
}

func TestNewDerivesSchemas(t *testing.T) {
	tool := echoTool()

	assert.Equal(t, []string{"text"}, tool.InputSchema["required"])
	assert.Contains(t, tool.OutputSchema["properties"], "echo")

	spec := tool.Spec()
	assert.Equal(t, "echo", spec.Name)
	assert.Equal(t, "Repeat text", spec.Description)

	info := tool.Info()
	assert.Equal(t, "echo", info.ID)
	assert.NotNil(t, info.InputSchema)
}

func TestExecuteAppliesDefaults(t *testing.T) {
	out, err := echoTool().Execute(context.Background(), json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, echoOut{Echo: []string{"hi"}}, out)

	out, err = echoTool().Execute(context.Background(), json.RawMessage(`{"text":"hi","times":2}`))
	require.NoError(t, err)
	assert.Len(t, out.(echoOut).Echo, 2)
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	_, err := echoTool().Execute(context.Background(), json.RawMessage(`{"times":2}`))
	require.ErrorIs(t, err, schema.ErrInvalid)
	assert.Contains(t, err.Error(), "tool echo")

	_, err = echoTool().Execute(context.Background(), json.RawMessage(`{"text":"x","times":9}`))
	assert.ErrorIs(t, err, schema.ErrInvalid)
}

func TestSet(t *testing.T) {
	s := NewSet(echoTool(), DirectorySummaryTool("."))
	assert.Equal(t, []string{"echo", "summarize-directory"}, s.IDs())

	specs := s.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "echo", specs[0].Name)
}

func TestDirectorySummaryTool(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte("package a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".secret"), []byte("x"), 0644))

	tool := DirectorySummaryTool(root)
	assert.Equal(t, DirectorySummaryID, tool.ID)

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"./"}`))
	require.NoError(t, err)

	sum := out.(DirectorySummary)
	assert.Equal(t, 1, sum.TotalFiles)
	assert.EqualValues(t, 9, sum.TotalSize)
	assert.Equal(t, map[string]int{".go": 1}, sum.FileTypes)
	assert.Equal(t, 1, sum.DirectoryCount)
	require.Len(t, sum.LargestFiles, 1)
	assert.Equal(t, "pkg/a.go", sum.LargestFiles[0].Path)

	out, err = tool.Execute(context.Background(), json.RawMessage(`{"path":".","includeHidden":true}`))
	require.NoError(t, err)
	assert.Equal(t, 2, out.(DirectorySummary).TotalFiles)
}

func TestDirectorySummaryToolSandbox(t *testing.T) {
	_, err := DirectorySummaryTool(t.TempDir()).Execute(context.Background(), json.RawMessage(`{"path":"../"}`))
	var pe *dirsummary.PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, dirsummary.CodeOutsideSandbox, pe.Code)
}

type fakeWeather struct {
	city string
}

func (f *fakeWeather) Current(ctx context.Context, city string) (*weather.Current, error) {
	f.city = city
	if city == "Atlantis" {
		return nil, weather.ErrLocationNotFound
	}
	return &weather.Current{Temperature: 21, Conditions: "Clear sky", Location: city}, nil
}

func TestWeatherTool(t *testing.T) {
	fw := &fakeWeather{}
	tool := WeatherTool(fw)

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"location":"London"}`))
	require.NoError(t, err)
	assert.Equal(t, "London", fw.city)
	assert.Equal(t, "Clear sky", out.(*weather.Current).Conditions)

	_, err = tool.Execute(context.Background(), json.RawMessage(`{"location":"Atlantis"}`))
	assert.ErrorIs(t, err, weather.ErrLocationNotFound)

	assert.Equal(t, []string{"location"}, tool.InputSchema["required"])
}
