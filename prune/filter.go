package prune

import (
	"github.com/samber/lo"

	"go.viam.com/meshprune/mesh"
)

// FilterPolygons returns, in their original order, the polygons that reference no marked
// vertex. A polygon touching even one marked vertex is dropped whole; nothing is repaired
// or re-indexed. The input slice is not modified.
func FilterPolygons(polygons []mesh.Polygon, mask *RemovalMask) []mesh.Polygon {
	return lo.Filter(polygons, func(poly mesh.Polygon, _ int) bool {
		return !lo.SomeBy(poly, mask.Contains)
	})
}
