package host

import (
	"context"
	"fmt"
	"math"

	"github.com/chazu/asmdoc/pkg/asm"
	"github.com/chazu/asmdoc/pkg/exchange/glb"
	"github.com/chazu/asmdoc/pkg/tessellate"
)

// meshData tessellates every placed instance in world space. Instances
// without a resolved color take the next palette entry.
func meshData(ctx context.Context, d *asm.Document, opts glb.Options) ([]MeshData, error) {
	places, err := tessellate.Placements(d)
	if err != nil {
		return nil, err
	}
	meshes, err := tessellate.Flatten(ctx, d, tessellate.Options{
		Deflection: opts.MeshDeflection,
		Angle:      opts.MeshAngle,
		MergeFaces: opts.MergeFaces,
		ForceUVs:   opts.ForceUVExport,
	})
	if err != nil {
		return nil, err
	}

	out := make([]MeshData, 0, len(meshes))
	for i, m := range meshes {
		p := places[i]
		color := colorPalette[i%len(colorPalette)]
		if p.Color.HasColor {
			color = hexColor(p.Color)
		}
		out = append(out, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			PartName: m.PartName,
			Label:    p.Instance.String(),
			Color:    color,
		})
	}
	return out, nil
}

func hexColor(c asm.LabelColor) string {
	b := func(v float64) uint8 {
		return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return fmt.Sprintf("#%02X%02X%02X", b(c.R), b(c.G), b(c.B))
}
