// Package glb writes assembly documents as binary glTF 2.0.
//
// The glTF node tree mirrors the assembly hierarchy below the assembly root:
// one node per assembly or instance label, each carrying its local
// translation, rotation and scale. Each part is tessellated once; its vertex
// data is shared by one mesh per distinct resolved color among its
// instances. Parts without instances still get one mesh that no node uses.
//
// An instance whose part-label was removed fails the export.
package glb

import (
	"bytes"
	"context"
	"fmt"

	"github.com/chazu/asmdoc/pkg/asm"
	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/tessellate"
	"github.com/chazu/asmdoc/pkg/xform"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"
)

// Options control tessellation and vertex attributes.
type Options struct {
	MeshDeflection float64 // linear deflection in model units
	MeshAngle      float64 // angular deflection in radians
	MergeFaces     bool    // weld coincident vertices
	ForceUVExport  bool    // emit TEXCOORD_0
}

// DefaultOptions returns moderate tolerances.
func DefaultOptions() Options {
	d := tessellate.DefaultOptions()
	return Options{MeshDeflection: d.Deflection, MeshAngle: d.Angle}
}

const generator = "asmdoc"

// Export encodes doc as a GLB file.
func Export(doc *asm.Document, opts Options) ([]byte, error) {
	return ExportContext(context.Background(), doc, opts)
}

// ExportContext is Export with cancellation, checked before each part is
// tessellated.
func ExportContext(ctx context.Context, doc *asm.Document, opts Options) ([]byte, error) {
	if doc.Closed() {
		return nil, &asm.Error{Kind: asm.KindExportFailure, Err: asm.ErrClosed}
	}
	b := &builder{
		ctx: ctx,
		doc: doc,
		out: gltf.NewDocument(),
		tess: tessellate.New(doc, tessellate.Options{
			Deflection: opts.MeshDeflection,
			Angle:      opts.MeshAngle,
			MergeFaces: opts.MergeFaces,
			ForceUVs:   opts.ForceUVExport,
		}),
		geometry:  make(map[asm.Address]*geometry),
		meshes:    make(map[variant]int),
		materials: make(map[kernel.Color]int),
	}
	b.out.Asset.Generator = generator

	roots, err := b.children(asm.AssemblyAddress)
	if err != nil {
		return nil, err
	}
	b.out.Scenes[0].Nodes = roots
	if err := b.unplaced(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(b.out); err != nil {
		return nil, &asm.Error{Kind: asm.KindExportFailure, Err: fmt.Errorf("encode: %w", err)}
	}
	doc.Logger().Debug("exported glb",
		zap.Int("nodes", len(b.out.Nodes)),
		zap.Int("meshes", len(b.out.Meshes)),
		zap.Int("materials", len(b.out.Materials)),
		zap.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}

// geometry holds the accessors of one tessellated part.
type geometry struct {
	empty     bool
	positions int
	normals   int
	uvs       int // -1 when absent
	indices   int
}

// variant is one part drawn in one resolved color.
type variant struct {
	part  asm.Address
	color asm.LabelColor
}

type builder struct {
	ctx  context.Context
	doc  *asm.Document
	out  *gltf.Document
	tess *tessellate.Tessellator

	geometry  map[asm.Address]*geometry
	meshes    map[variant]int
	materials map[kernel.Color]int
}

// children adds a node for every child of parent and returns their indices.
func (b *builder) children(parent asm.Address) ([]int, error) {
	var out []int
	for _, addr := range b.doc.Store().Children(parent) {
		idx, err := b.node(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, nil
}

func (b *builder) node(addr asm.Address) (int, error) {
	l, _ := b.doc.Store().Get(addr)
	info, err := b.doc.GetLabelInfo(addr)
	if err != nil {
		return 0, &asm.Error{Kind: asm.KindExportFailure, Address: addr, Err: err}
	}
	n := &gltf.Node{Name: info.Name}
	setTRS(n, l.Transform())

	switch l.Kind() {
	case asm.LabelAssembly:
		kids, err := b.children(addr)
		if err != nil {
			return 0, err
		}
		n.Children = kids
	case asm.LabelInstance:
		if _, ok := b.doc.Store().Get(l.PartRef()); !ok {
			return 0, &asm.Error{Kind: asm.KindExportFailure, Address: addr,
				Err: fmt.Errorf("instance places missing part %s", l.PartRef())}
		}
		mesh, ok, err := b.mesh(l.PartRef(), info.Color)
		if err != nil {
			return 0, err
		}
		if ok {
			n.Mesh = gltf.Index(mesh)
		}
	}
	b.out.Nodes = append(b.out.Nodes, n)
	return len(b.out.Nodes) - 1, nil
}

// unplaced adds a mesh in the part's own color for every part-label no
// instance reached. No node refers to these meshes.
func (b *builder) unplaced() error {
	for _, part := range b.doc.Store().Children(asm.LibraryAddress) {
		if _, ok := b.geometry[part]; ok {
			continue
		}
		c, err := b.doc.GetLabelColor(part)
		if err != nil {
			return &asm.Error{Kind: asm.KindExportFailure, Address: part, Err: err}
		}
		if _, _, err := b.mesh(part, c); err != nil {
			return err
		}
	}
	return nil
}

// mesh returns the mesh for part drawn in color. ok is false when the part
// tessellates to nothing.
func (b *builder) mesh(part asm.Address, color asm.LabelColor) (int, bool, error) {
	g, err := b.geometryOf(part)
	if err != nil || g.empty {
		return 0, false, err
	}
	key := variant{part: part, color: color}
	if idx, ok := b.meshes[key]; ok {
		return idx, true, nil
	}

	prim := &gltf.Primitive{
		Indices: gltf.Index(g.indices),
		Attributes: map[string]int{
			gltf.POSITION: g.positions,
			gltf.NORMAL:   g.normals,
		},
	}
	if g.uvs >= 0 {
		prim.Attributes[gltf.TEXCOORD_0] = g.uvs
	}
	if color.HasColor {
		prim.Material = gltf.Index(b.material(color.Color()))
	}
	name := part.String()
	if l, ok := b.doc.Store().Get(part); ok && l.Name() != "" {
		name = l.Name()
	}
	b.out.Meshes = append(b.out.Meshes, &gltf.Mesh{Name: name, Primitives: []*gltf.Primitive{prim}})
	idx := len(b.out.Meshes) - 1
	b.meshes[key] = idx
	return idx, true, nil
}

// geometryOf tessellates part on first use and writes its buffers.
func (b *builder) geometryOf(part asm.Address) (*geometry, error) {
	if g, ok := b.geometry[part]; ok {
		return g, nil
	}
	if err := b.ctx.Err(); err != nil {
		return nil, &asm.Error{Kind: asm.KindExportFailure, Address: part, Err: err}
	}
	if _, err := b.doc.GetShapeFromLabel(part); err != nil {
		return nil, &asm.Error{Kind: asm.KindExportFailure, Address: part, Err: err}
	}
	m, err := b.tess.Part(part)
	if err != nil {
		return nil, &asm.Error{Kind: asm.KindExportFailure, Address: part, Err: err}
	}
	g := &geometry{empty: m.IsEmpty() || len(m.Indices) == 0, uvs: -1}
	if !g.empty {
		g.positions = modeler.WritePosition(b.out, triples(m.Vertices))
		g.normals = modeler.WriteNormal(b.out, triples(m.Normals))
		if len(m.UVs) > 0 {
			g.uvs = modeler.WriteTextureCoord(b.out, pairs(m.UVs))
		}
		g.indices = modeler.WriteIndices(b.out, m.Indices)
	}
	b.geometry[part] = g
	return g, nil
}

func (b *builder) material(c kernel.Color) int {
	if idx, ok := b.materials[c]; ok {
		return idx
	}
	pbr := &gltf.PBRMetallicRoughness{}
	setArray4(&pbr.BaseColorFactor, c.Array())
	setScalar(&pbr.MetallicFactor, 0)
	setScalar(&pbr.RoughnessFactor, 0.6)
	m := &gltf.Material{
		Name:                 fmt.Sprintf("color_%d", len(b.out.Materials)),
		PBRMetallicRoughness: pbr,
		DoubleSided:          true,
	}
	if c.A < 1 {
		m.AlphaMode = gltf.AlphaBlend
	}
	b.out.Materials = append(b.out.Materials, m)
	idx := len(b.out.Materials) - 1
	b.materials[c] = idx
	return idx
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

type float interface{ ~float32 | ~float64 }

func setTRS(n *gltf.Node, t xform.Transform) {
	setVec(n.Translation[:], t.Translation[:]...)
	q := t.QuatXYZW()
	setVec(n.Rotation[:], q[:]...)
	setVec(n.Scale[:], t.Scale[:]...)
}

func setVec[T float](dst []T, src ...float64) {
	for i := range dst {
		dst[i] = T(src[i])
	}
}

func setArray4[T float](dst **[4]T, src [4]float64) {
	var a [4]T
	setVec(a[:], src[:]...)
	*dst = &a
}

func setScalar[T float](dst **T, v float64) {
	x := T(v)
	*dst = &x
}

func triples(flat []float32) [][3]float32 {
	out := make([][3]float32, len(flat)/3)
	for i := range out {
		out[i] = [3]float32{flat[3*i], flat[3*i+1], flat[3*i+2]}
	}
	return out
}

func pairs(flat []float32) [][2]float32 {
	out := make([][2]float32, len(flat)/2)
	for i := range out {
		out[i] = [2]float32{flat[2*i], flat[2*i+1]}
	}
	return out
}
