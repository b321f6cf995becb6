package kernel

import (
	"encoding/json"
	"testing"
)

// --- Mesh helper method tests ---

func TestMeshVertexCount(t *testing.T) {
	tests := []struct {
		name     string
		vertices []float32
		want     int
	}{
		{"empty", nil, 0},
		{"one vertex", []float32{1, 2, 3}, 1},
		{"four vertices", []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Vertices: tt.vertices}
			if got := m.VertexCount(); got != tt.want {
				t.Errorf("VertexCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeshTriangleCount(t *testing.T) {
	tests := []struct {
		name    string
		indices []uint32
		want    int
	}{
		{"empty", nil, 0},
		{"one triangle", []uint32{0, 1, 2}, 1},
		{"two triangles", []uint32{0, 1, 2, 2, 3, 0}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Indices: tt.indices}
			if got := m.TriangleCount(); got != tt.want {
				t.Errorf("TriangleCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeshIsEmpty(t *testing.T) {
	t.Run("empty mesh", func(t *testing.T) {
		m := &Mesh{}
		if !m.IsEmpty() {
			t.Error("IsEmpty() = false for empty mesh, want true")
		}
	})
	t.Run("non-empty mesh", func(t *testing.T) {
		m := &Mesh{Vertices: []float32{1, 2, 3}}
		if m.IsEmpty() {
			t.Error("IsEmpty() = true for non-empty mesh, want false")
		}
	})
}

// quad returns two unindexed triangles forming the unit square in the XY plane.
func quad() *Mesh {
	return &Mesh{
		Vertices: []float32{
			0, 0, 0, 1, 0, 0, 1, 1, 0,
			0, 0, 0, 1, 1, 0, 0, 1, 0,
		},
		Normals: []float32{
			0, 0, 1, 0, 0, 1, 0, 0, 1,
			0, 0, 1, 0, 0, 1, 0, 0, 1,
		},
		Indices: []uint32{0, 1, 2, 3, 4, 5},
	}
}

func TestMeshWeld(t *testing.T) {
	m := quad()
	w := m.Weld(1e-6)
	if w.VertexCount() != 4 {
		t.Fatalf("welded vertex count = %d, want 4", w.VertexCount())
	}
	if w.TriangleCount() != 2 {
		t.Fatalf("welded triangle count = %d, want 2", w.TriangleCount())
	}
	if len(w.Normals) != len(w.Vertices) {
		t.Fatalf("normals length %d != vertices length %d", len(w.Normals), len(w.Vertices))
	}
	for i := 0; i < len(w.Normals); i += 3 {
		if w.Normals[i+2] < 0.999 {
			t.Errorf("normal %d = %v, want +Z", i/3, w.Normals[i:i+3])
		}
	}
	if m.VertexCount() != 6 {
		t.Error("Weld must not modify the receiver")
	}
}

func TestMeshProjectUVs(t *testing.T) {
	m := quad()
	m.ProjectUVs()
	if len(m.UVs) != m.VertexCount()*2 {
		t.Fatalf("uv length = %d, want %d", len(m.UVs), m.VertexCount()*2)
	}
	for i, uv := range m.UVs {
		if uv < 0 || uv > 1 {
			t.Errorf("uv[%d] = %f, outside 0..1", i, uv)
		}
	}
}

func TestMeshBounds(t *testing.T) {
	min, max := quad().Bounds()
	if min != [3]float32{0, 0, 0} || max != [3]float32{1, 1, 0} {
		t.Errorf("Bounds() = %v %v", min, max)
	}
}

// --- Primitive and color tests ---

func TestPrimitiveValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Primitive
		wantErr bool
	}{
		{"box", Primitive{Kind: PrimBox, Size: [3]float64{1, 2, 3}}, false},
		{"flat box", Primitive{Kind: PrimBox, Size: [3]float64{1, 0, 3}}, true},
		{"sphere", Primitive{Kind: PrimSphere, Radius: 5}, false},
		{"negative sphere", Primitive{Kind: PrimSphere, Radius: -1}, true},
		{"cylinder", Primitive{Kind: PrimCylinder, Radius: 1, Height: 2}, false},
		{"empty compound", Primitive{Kind: PrimCompound}, true},
		{"bad child", Primitive{Kind: PrimCompound, Children: []Primitive{{Kind: PrimSphere}}}, true},
		{"zero kind", Primitive{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrimitiveJSON(t *testing.T) {
	var p Primitive
	if err := json.Unmarshal([]byte(`{"kind":"cylinder","radius":2,"height":8}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Kind != PrimCylinder || p.Radius != 2 || p.Height != 8 {
		t.Errorf("decoded %+v", p)
	}
	if p.String() != "cylinder(r=2,h=8)" {
		t.Errorf("String() = %q", p.String())
	}
}

func TestColorUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Color
	}{
		{`[1,0,0]`, Color{R: 1, A: 1}},
		{`[0,1,0,0.5]`, Color{G: 1, A: 0.5}},
		{`{"r":0.2,"g":0.4,"b":0.6}`, Color{R: 0.2, G: 0.4, B: 0.6, A: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var c Color
			if err := json.Unmarshal([]byte(tt.in), &c); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if c != tt.want {
				t.Errorf("got %+v, want %+v", c, tt.want)
			}
		})
	}

	var c Color
	if err := json.Unmarshal([]byte(`[1,2]`), &c); err == nil {
		t.Error("expected error for two components")
	}
}

func TestShapeKindString(t *testing.T) {
	kinds := map[ShapeKind]string{
		KindSolid:    "solid",
		KindShell:    "shell",
		KindWire:     "wire",
		KindCompound: "compound",
		KindUnknown:  "unknown",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(k), k.String(), want)
		}
	}
}
