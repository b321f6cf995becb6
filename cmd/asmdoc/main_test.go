package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/asmdoc/pkg/asm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definitionYAML = `
parts:
  - id: box
    name: Box
    shapeRef: {kind: box, size: [10, 10, 10]}
    colorRgba: [1, 0, 0]
nodes:
  - type: instance
    id: a
    partId: box
  - type: assembly
    id: grp
    name: Group
  - type: instance
    id: b
    partId: box
    parentId: grp
    translation: [20, 0, 0]
`

const script = `
;; Two boxes, one grouped.
(defpart "box" (box 10 10 10) :name "Box")
(instance "box" :id "a")
(assembly "grp" :name "Group"
  (instance "box" :id "b" :at [20 0 0]))
`

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	jsonOutput = false
	require.NoError(t, buildCmd.Flags().Set("output", ""))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestBuildYAML(t *testing.T) {
	in := writeFile(t, "design.yaml", definitionYAML)
	glbPath := filepath.Join(t.TempDir(), "design.glb")

	out, err := execute(t, "build", in, "-o", glbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "LABEL")
	assert.Contains(t, out, "Box")
	assert.Contains(t, out, "Group")

	data, err := os.ReadFile(glbPath)
	require.NoError(t, err)
	assert.Equal(t, "glTF", string(data[:4]))
}

func TestScriptToSTEPAndBack(t *testing.T) {
	in := writeFile(t, "design.lisp", script)
	stepPath := filepath.Join(t.TempDir(), "design.stp")

	_, err := execute(t, "export-step", in, stepPath)
	require.NoError(t, err)
	data, err := os.ReadFile(stepPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "ISO-10303-21;"))
	assert.Contains(t, string(data), "'design.stp'")

	out, err := execute(t, "parts", "--json", stepPath)
	require.NoError(t, err)
	var parts []asm.PartSummary
	require.NoError(t, json.Unmarshal([]byte(out), &parts))
	require.NotEmpty(t, parts)
	assert.Equal(t, 2, parts[0].InstanceCount)
}

func TestExportCompressedSTEP(t *testing.T) {
	in := writeFile(t, "design.yaml", definitionYAML)
	out := filepath.Join(t.TempDir(), "design.stp.gz")

	_, err := execute(t, "export-step", in, out)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, data[:2])

	// Compressed files are read back transparently.
	_, err = execute(t, "parts", out)
	assert.NoError(t, err)
}

func TestInspect(t *testing.T) {
	in := writeFile(t, "design.lisp", script)

	out, err := execute(t, "inspect", in)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Box [0:1:1] instance", lines[0])
	assert.Equal(t, "Group [0:1:2] assembly", lines[1])
	assert.Equal(t, "  Box [0:1:2:1] instance", lines[2])

	out, err = execute(t, "inspect", in, "0:1:2:1")
	require.NoError(t, err)
	assert.Contains(t, out, "translation: 20 0 0")
	assert.Contains(t, out, "part:        0:2:1 (Box)")
}

func TestInputErrors(t *testing.T) {
	_, err := execute(t, "parts", writeFile(t, "design.txt", "hello"))
	assert.ErrorContains(t, err, "unrecognized input type")

	bad := writeFile(t, "bad.lisp", "(defpart \"box\" (box 1 2))")
	_, err = execute(t, "parts", bad)
	assert.ErrorContains(t, err, "bad.lisp")
	assert.ErrorContains(t, err, "3 dimensions")

	_, err = execute(t, "build", writeFile(t, "design.yaml", definitionYAML), "-o", filepath.Join(t.TempDir(), "x.obj"))
	assert.ErrorContains(t, err, "unrecognized output type")
}

func TestOutputFormat(t *testing.T) {
	tests := map[string]format{
		"a.glb":    formatGLB,
		"a.GLB":    formatGLB,
		"a.stp":    formatSTEP,
		"a.step":   formatSTEP,
		"a.stp.gz": formatSTEP,
		"a.obj":    formatUnknown,
		"noext":    formatUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, outputFormat(in), in)
	}
}

// TestFourBoxesExample runs the shipped example script end to end.
func TestFourBoxesExample(t *testing.T) {
	out, err := execute(t, "parts", "--json", filepath.Join("..", "..", "examples", "four_boxes.lisp"))
	require.NoError(t, err)

	var parts []asm.PartSummary
	require.NoError(t, json.Unmarshal([]byte(out), &parts))
	require.Len(t, parts, 1)
	assert.Equal(t, "Box", parts[0].Name)
	assert.Equal(t, 4, parts[0].InstanceCount)
	require.NotNil(t, parts[0].Color)
	assert.Equal(t, 1.0, parts[0].Color.R)

	out, err = execute(t, "inspect", filepath.Join("..", "..", "examples", "four_boxes.lisp"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
}
