// Package mesh defines the indexed polygon mesh shared by the reconstruction and pruning stages.
package mesh

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// A Polygon is one face of a mesh: an ordered list of three or more indices into the
// mesh's vertex array.
type Polygon []int

// Mesh is a vertex array plus the polygons that reference it. No manifoldness is assumed.
type Mesh struct {
	Vertices []r3.Vector
	Polygons []Polygon
}

// New returns a mesh over the given vertices and polygons. Neither slice is copied.
func New(vertices []r3.Vector, polygons []Polygon) *Mesh {
	return &Mesh{Vertices: vertices, Polygons: polygons}
}

// NumVertices returns the number of vertices in the mesh.
func (m *Mesh) NumVertices() int {
	return len(m.Vertices)
}

// NumPolygons returns the number of polygons in the mesh.
func (m *Mesh) NumPolygons() int {
	return len(m.Polygons)
}

// Validate checks that every polygon has at least three vertices and only references
// vertices that exist.
func (m *Mesh) Validate() error {
	n := len(m.Vertices)
	for i, poly := range m.Polygons {
		if len(poly) < 3 {
			return errors.Errorf("polygon %d has %d vertices, need at least 3", i, len(poly))
		}
		for _, idx := range poly {
			if idx < 0 || idx >= n {
				return errors.Errorf("polygon %d references vertex %d out of range [0,%d)", i, idx, n)
			}
		}
	}
	return nil
}

// WithPolygons returns a mesh that shares this mesh's vertex array but has the given
// polygons. Vertex indices therefore stay valid across the two meshes.
func (m *Mesh) WithPolygons(polygons []Polygon) *Mesh {
	return &Mesh{Vertices: m.Vertices, Polygons: polygons}
}

// Triangles returns every triangle of the mesh, fanning polygons with more than three
// vertices around their first vertex.
func (m *Mesh) Triangles() [][3]int {
	tris := make([][3]int, 0, len(m.Polygons))
	for _, poly := range m.Polygons {
		for i := 1; i+1 < len(poly); i++ {
			tris = append(tris, [3]int{poly[0], poly[i], poly[i+1]})
		}
	}
	return tris
}

// Bounds returns the axis aligned bounding box of the vertices. ok is false for an empty mesh.
func (m *Mesh) Bounds() (minPt, maxPt r3.Vector, ok bool) {
	if len(m.Vertices) == 0 {
		return r3.Vector{}, r3.Vector{}, false
	}
	minPt, maxPt = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		minPt = r3.Vector{X: min(minPt.X, v.X), Y: min(minPt.Y, v.Y), Z: min(minPt.Z, v.Z)}
		maxPt = r3.Vector{X: max(maxPt.X, v.X), Y: max(maxPt.Y, v.Y), Z: max(maxPt.Z, v.Z)}
	}
	return minPt, maxPt, true
}
