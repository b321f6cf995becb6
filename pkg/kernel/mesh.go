package kernel

import "math"

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, uvs has 2 floats per vertex when present,
// indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"`      // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`       // [nx0,ny0,nz0, ...]
	UVs      []float32 `json:"uvs,omitempty"` // [u0,v0, u1,v1, ...]
	Indices  []uint32  `json:"indices"`       // [i0,i1,i2, ...] triangles
	PartName string    `json:"partName"`      // which document part this came from
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Bounds returns the axis-aligned bounds of the vertex positions.
func (m *Mesh) Bounds() (min, max [3]float32) {
	if m.IsEmpty() {
		return min, max
	}
	for i := 0; i < 3; i++ {
		min[i] = math.MaxFloat32
		max[i] = -math.MaxFloat32
	}
	for v := 0; v < len(m.Vertices); v += 3 {
		for i := 0; i < 3; i++ {
			c := m.Vertices[v+i]
			if c < min[i] {
				min[i] = c
			}
			if c > max[i] {
				max[i] = c
			}
		}
	}
	return min, max
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	return &Mesh{
		Vertices: append([]float32(nil), m.Vertices...),
		Normals:  append([]float32(nil), m.Normals...),
		UVs:      append([]float32(nil), m.UVs...),
		Indices:  append([]uint32(nil), m.Indices...),
		PartName: m.PartName,
	}
}

// weldKey quantizes a position so nearly coincident vertices collapse.
type weldKey [3]int64

// Weld merges vertices whose positions coincide within tol, averaging their
// normals, and rewrites the index buffer. UVs of the first occurrence win.
// Faces that share edges end up sharing vertices, which is what "merged
// faces" means for the scene exporter.
func (m *Mesh) Weld(tol float64) *Mesh {
	if tol <= 0 {
		tol = 1e-6
	}
	out := &Mesh{PartName: m.PartName}
	remap := make([]uint32, m.VertexCount())
	seen := make(map[weldKey]uint32, m.VertexCount())
	hasUV := len(m.UVs) == m.VertexCount()*2

	for v := 0; v < m.VertexCount(); v++ {
		x, y, z := m.Vertices[v*3], m.Vertices[v*3+1], m.Vertices[v*3+2]
		key := weldKey{
			int64(math.Round(float64(x) / tol)),
			int64(math.Round(float64(y) / tol)),
			int64(math.Round(float64(z) / tol)),
		}
		if idx, ok := seen[key]; ok {
			remap[v] = idx
			if len(m.Normals) == len(m.Vertices) {
				out.Normals[idx*3] += m.Normals[v*3]
				out.Normals[idx*3+1] += m.Normals[v*3+1]
				out.Normals[idx*3+2] += m.Normals[v*3+2]
			}
			continue
		}
		idx := uint32(out.VertexCount())
		seen[key] = idx
		remap[v] = idx
		out.Vertices = append(out.Vertices, x, y, z)
		if len(m.Normals) == len(m.Vertices) {
			out.Normals = append(out.Normals, m.Normals[v*3], m.Normals[v*3+1], m.Normals[v*3+2])
		}
		if hasUV {
			out.UVs = append(out.UVs, m.UVs[v*2], m.UVs[v*2+1])
		}
	}

	for i := 0; i < len(out.Normals); i += 3 {
		nx, ny, nz := float64(out.Normals[i]), float64(out.Normals[i+1]), float64(out.Normals[i+2])
		l := math.Sqrt(nx*nx + ny*ny + nz*nz)
		if l > 1e-12 {
			out.Normals[i] = float32(nx / l)
			out.Normals[i+1] = float32(ny / l)
			out.Normals[i+2] = float32(nz / l)
		}
	}

	out.Indices = make([]uint32, 0, len(m.Indices))
	for t := 0; t+2 < len(m.Indices); t += 3 {
		a, b, c := remap[m.Indices[t]], remap[m.Indices[t+1]], remap[m.Indices[t+2]]
		if a == b || b == c || a == c {
			continue // degenerate after welding
		}
		out.Indices = append(out.Indices, a, b, c)
	}
	return out
}

// ProjectUVs fills UVs with a box projection over the mesh bounds: each
// vertex is projected onto the plane most perpendicular to its normal and
// normalized into 0..1.
func (m *Mesh) ProjectUVs() {
	min, max := m.Bounds()
	var ext [3]float32
	for i := 0; i < 3; i++ {
		ext[i] = max[i] - min[i]
		if ext[i] == 0 {
			ext[i] = 1
		}
	}
	m.UVs = make([]float32, 0, m.VertexCount()*2)
	for v := 0; v < m.VertexCount(); v++ {
		p := [3]float32{
			(m.Vertices[v*3] - min[0]) / ext[0],
			(m.Vertices[v*3+1] - min[1]) / ext[1],
			(m.Vertices[v*3+2] - min[2]) / ext[2],
		}
		axis := 2
		if len(m.Normals) == len(m.Vertices) {
			n := [3]float32{abs32(m.Normals[v*3]), abs32(m.Normals[v*3+1]), abs32(m.Normals[v*3+2])}
			switch {
			case n[0] >= n[1] && n[0] >= n[2]:
				axis = 0
			case n[1] >= n[2]:
				axis = 1
			}
		}
		switch axis {
		case 0:
			m.UVs = append(m.UVs, p[1], p[2])
		case 1:
			m.UVs = append(m.UVs, p[0], p[2])
		default:
			m.UVs = append(m.UVs, p[0], p[1])
		}
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
