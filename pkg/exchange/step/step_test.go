package step

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/chazu/asmdoc/pkg/asm"
	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/kernel/sdfx"
	"github.com/chazu/asmdoc/pkg/structdef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(ts string) func() time.Time {
	return func() time.Time {
		t, _ := time.Parse(time.RFC3339, ts)
		return t
	}
}

// sampleDoc holds a red 10mm box at the origin and a 5mm sphere at x=20
// inside a named assembly, scaled and rotated.
func sampleDoc(t *testing.T) *asm.Document {
	t.Helper()
	d := asm.New(sdfx.New())
	t.Cleanup(func() { _ = d.Close() })
	red := kernel.RGB(1, 0, 0)
	blue := kernel.Color{B: 1, A: 0.5}
	_, err := d.Compile(&structdef.Definition{
		Parts: []structdef.PartDef{
			{ID: "box", Name: "Box", Color: &red,
				Shape: structdef.Prim(kernel.Primitive{Kind: kernel.PrimBox, Size: [3]float64{10, 10, 10}})},
			{ID: "ball", Name: "Ball",
				Shape: structdef.Prim(kernel.Primitive{Kind: kernel.PrimSphere, Radius: 5})},
		},
		Nodes: structdef.NodeList{
			&structdef.Instance{ID: "b1", PartID: "box", Name: "Base"},
			&structdef.Assembly{ID: "grp", Name: "Group"},
			&structdef.Instance{ID: "s1", PartID: "ball", Parent: "grp", Color: &blue,
				Translation: structdef.Floats{20, 0, 0},
				Rotation:    structdef.Floats{0, 0, 90},
				Scale:       structdef.Floats{1, 2, 3}},
		},
	})
	require.NoError(t, err)
	return d
}

func TestRoundTrip(t *testing.T) {
	src := sampleDoc(t)
	data, err := Export(src, Header{Author: "Ada", Organization: "ACME"}, Options{})
	require.NoError(t, err)

	d, err := Import(data, sdfx.New())
	require.NoError(t, err)
	defer d.Close()

	parts := d.GetDocumentParts()
	require.Len(t, parts, 2)
	assert.Equal(t, "Box", parts[0].Name)
	assert.Equal(t, "Ball", parts[1].Name)

	box, err := d.GetPartProperties(parts[0].Label)
	require.NoError(t, err)
	assert.InDelta(t, 1000, box.Volume, 1e-6)
	ball, err := d.GetPartProperties(parts[1].Label)
	require.NoError(t, err)
	assert.InDelta(t, 523.6, ball.Volume, 0.01)

	c, err := d.GetLabelColor(parts[0].Label)
	require.NoError(t, err)
	assert.True(t, c.HasColor)
	assert.Equal(t, kernel.RGB(1, 0, 0), c.Color())

	// Shallow import: both placements sit directly under the assembly root.
	insts := d.Store().Children(asm.AssemblyAddress)
	require.Len(t, insts, 2)

	base, err := d.GetLabelInfo(insts[0])
	require.NoError(t, err)
	assert.Equal(t, "Base", base.Name)
	assert.Equal(t, parts[0].Label, base.PartLabel)

	want, err := src.GetLabelTransform(src.Store().Children("0:1:2")[0])
	require.NoError(t, err)
	got, err := d.GetLabelTransform(insts[1])
	require.NoError(t, err)
	for i := range want.Matrix {
		assert.InDelta(t, want.Matrix[i], got.Matrix[i], 1e-9, "matrix[%d]", i)
	}
	assert.InDeltaSlice(t, []float64{1, 2, 3}, got.Scale[:], 1e-9)

	sc, err := d.GetLabelColor(insts[1])
	require.NoError(t, err)
	assert.InDelta(t, 1, sc.B, 1e-9)
	assert.InDelta(t, 0.5, sc.A, 1e-9)
}

func TestExportHeader(t *testing.T) {
	d := sampleDoc(t)
	data, err := Export(d, Header{Author: "Grace O'Neil", Organization: "Étoile GmbH", FileName: "demo.step"},
		Options{Now: fixedNow("2026-10-19T12:30:00Z")})
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "ISO-10303-21;")
	assert.Contains(t, text, "'2026-10-19T12:30:00'")
	assert.Contains(t, text, "('Grace O''Neil')")
	assert.Contains(t, text, "CSG_SOLID('Box'")
	assert.Contains(t, text, "NEXT_ASSEMBLY_USAGE_OCCURRENCE(")
	assert.Contains(t, text, "CARTESIAN_TRANSFORMATION_OPERATOR_3D_NON_UNIFORM(")
	assert.Contains(t, text, "SURFACE_STYLE_TRANSPARENT(0.5)")

	_, h, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Header{Author: "Grace O'Neil", Organization: "Étoile GmbH", FileName: "demo.step"}, h)
}

var timestamp = regexp.MustCompile(`'\d{4}-\d\d-\d\dT\d\d:\d\d:\d\d'`)

func TestExportDeterministic(t *testing.T) {
	h := Header{Author: "a", Organization: "o"}
	first, err := Export(sampleDoc(t), h, Options{Now: fixedNow("2026-01-01T00:00:00Z")})
	require.NoError(t, err)
	second, err := Export(sampleDoc(t), h, Options{Now: fixedNow("2027-06-30T08:00:00Z")})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t,
		timestamp.ReplaceAllString(string(first), "'T'"),
		timestamp.ReplaceAllString(string(second), "'T'"))
}

func TestCompressed(t *testing.T) {
	data, err := Export(sampleDoc(t), Header{}, Options{Compress: true})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0x1f, 0x8b}), "gzip magic")

	d, err := Import(data, sdfx.New())
	require.NoError(t, err)
	defer d.Close()
	assert.Len(t, d.GetDocumentParts(), 2)
}

func TestCompoundAndCylinder(t *testing.T) {
	k := sdfx.New()
	src := asm.New(k)
	defer src.Close()
	_, err := src.Compile(&structdef.Definition{
		Parts: []structdef.PartDef{{ID: "c", Name: "Combo", Shape: structdef.Prim(kernel.Primitive{
			Kind: kernel.PrimCompound,
			Children: []kernel.Primitive{
				{Kind: kernel.PrimBox, Size: [3]float64{1, 1, 1}},
				{Kind: kernel.PrimCylinder, Radius: 1, Height: 4},
				{Kind: kernel.PrimSphere, Radius: 2},
			},
		})}},
	})
	require.NoError(t, err)
	data, err := Export(src, Header{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("BOOLEAN_RESULT(")))

	d, err := Import(data, sdfx.New())
	require.NoError(t, err)
	defer d.Close()

	parts := d.GetDocumentParts()
	require.Len(t, parts, 1)
	assert.Equal(t, asm.TypeCompound, parts[0].Type)

	shape, err := d.GetShapeFromLabel(parts[0].Label)
	require.NoError(t, err)
	prim, err := d.Kernel().Describe(shape)
	require.NoError(t, err)
	require.Len(t, prim.Children, 3)
	assert.Equal(t, kernel.PrimCylinder, prim.Children[1].Kind)
	assert.Equal(t, 4.0, prim.Children[1].Height)

	// A part nothing places is imported with one instance at the origin.
	assert.Equal(t, 1, parts[0].InstanceCount)
}

func TestImportFailure(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not step", "hello world"},
		{"truncated", "ISO-10303-21;\nHEADER;\nENDSEC;\nDATA;\n#1=PRODUCT('a',"},
		{"no products", "ISO-10303-21;\nHEADER;\nENDSEC;\nDATA;\n#1=CARTESIAN_POINT('',(0.,0.,0.));\nENDSEC;\nEND-ISO-10303-21;\n"},
		{"dangling", "ISO-10303-21;\nHEADER;\nENDSEC;\nDATA;\n#1=PRODUCT_DEFINITION('design','',#9,#8);\nENDSEC;\nEND-ISO-10303-21;\n"},
		{"bad gzip", "\x1f\x8bnot really gzip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Import([]byte(tt.data), sdfx.New())
			assert.Nil(t, d)
			assert.ErrorIs(t, err, asm.ErrImportFailure)
		})
	}
}

func TestImportUnsupportedSolid(t *testing.T) {
	data, err := Export(sampleDoc(t), Header{}, Options{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		old, new string
	}{
		{"csg primitive", "SPHERE(", "TORUS("},
		{"brep solid", "CSG_SOLID('Ball'", "MANIFOLD_SOLID_BREP('Ball'"},
		{"faceted brep", "CSG_SOLID('Box'", "FACETED_BREP('Box'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Contains(t, string(data), tt.old)
			bad := bytes.Replace(data, []byte(tt.old), []byte(tt.new), 1)
			name, _, _ := strings.Cut(tt.new, "(")

			k := sdfx.New()
			d, err := Import(bad, k)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, asm.ErrImportFailure)
			assert.ErrorContains(t, err, name)
			assert.Equal(t, 0, k.Live(), "no handles may leak from a failed import")
		})
	}
}

func TestExportClosed(t *testing.T) {
	d := asm.New(sdfx.New())
	require.NoError(t, d.Close())
	_, err := Export(d, Header{}, Options{})
	assert.ErrorIs(t, err, asm.ErrExportFailure)
}

func TestExportDanglingInstance(t *testing.T) {
	d := sampleDoc(t)
	parts := d.GetDocumentParts()
	require.Equal(t, "Ball", parts[1].Name)
	ball := parts[1].Label
	dangling := d.Instances(ball)
	require.Len(t, dangling, 1)

	_, err := d.Apply(&structdef.Definition{Removals: []string{string(ball)}})
	require.NoError(t, err)
	require.Len(t, d.GetAssemblyHierarchy().Nodes, 3, "the instance outlives its part")

	_, err = Export(d, Header{}, Options{})
	require.ErrorIs(t, err, asm.ErrExportFailure)
	var aerr *asm.Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, dangling[0], aerr.Address)
	assert.ErrorContains(t, err, string(ball))
}

func TestImportAssemblyColorNotInherited(t *testing.T) {
	src := asm.New(sdfx.New())
	defer src.Close()
	red := kernel.RGB(1, 0, 0)
	blue := kernel.RGB(0, 0, 1)
	_, err := src.Compile(&structdef.Definition{
		Parts: []structdef.PartDef{
			{ID: "ball", Name: "Ball", Shape: structdef.Prim(kernel.Primitive{Kind: kernel.PrimSphere, Radius: 1})},
		},
		Nodes: structdef.NodeList{
			&structdef.Assembly{ID: "grp", Name: "Group", Color: &red},
			&structdef.Instance{ID: "plain", PartID: "ball", Parent: "grp", Name: "Plain"},
			&structdef.Instance{ID: "tinted", PartID: "ball", Parent: "grp", Name: "Tinted", Color: &blue},
		},
	})
	require.NoError(t, err)
	data, err := Export(src, Header{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("STYLED_ITEM(")), "group and tinted occurrence")

	d, err := Import(data, sdfx.New())
	require.NoError(t, err)
	defer d.Close()

	insts := d.Store().Children(asm.AssemblyAddress)
	require.Len(t, insts, 2)
	for i, want := range []asm.LabelColor{{}, {HasColor: true, B: 1, A: 1}} {
		got, err := d.GetLabelColor(insts[i])
		require.NoError(t, err)
		assert.Equal(t, want, got, "instance %d", i)
	}
}
