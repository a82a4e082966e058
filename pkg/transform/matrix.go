package transform

import (
	"github.com/deadsy/sdfx/sdf"

	"github.com/chazu/ik/pkg/tree"
)

// Matrix returns p as an sdfx homogeneous transform (rotate, then
// translate), suitable for placing sdf.SDF3 geometry on a solved node.
func Matrix(p Pose) sdf.M44 {
	axis, angle := p.Rotation.AxisAngle()
	m := sdf.Translate3d(p.Position.V3())
	if angle == 0 {
		return m
	}
	return m.Mul(sdf.Rotate3d(axis.V3(), angle))
}

// GlobalMatrices returns the global transform of every node under root,
// treating the stored values as local.
func GlobalMatrices(root *tree.Node) map[tree.NodeID]sdf.M44 {
	poses := GlobalPoses(root)
	out := make(map[tree.NodeID]sdf.M44, len(poses))
	for n, p := range poses {
		out[n.ID] = Matrix(p)
	}
	return out
}
