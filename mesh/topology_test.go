package mesh

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestTopologyQuadStrip(t *testing.T) {
	topo := ComputeTopology(makeQuadStrip())
	test.That(t, topo, test.ShouldResemble, Topology{
		Polygons:           2,
		ReferencedVertices: 4,
		BoundaryEdges:      4,
		NonManifoldEdges:   0,
		Components:         1,
	})
}

func TestTopologyTetrahedronIsClosed(t *testing.T) {
	m := New(
		[]r3.Vector{{}, {X: 1}, {Y: 1}, {Z: 1}},
		[]Polygon{{0, 2, 1}, {0, 1, 3}, {1, 2, 3}, {0, 3, 2}},
	)
	topo := ComputeTopology(m)
	test.That(t, topo.BoundaryEdges, test.ShouldEqual, 0)
	test.That(t, topo.NonManifoldEdges, test.ShouldEqual, 0)
	test.That(t, topo.Components, test.ShouldEqual, 1)
}

func TestTopologyFragmentsAndFins(t *testing.T) {
	// Two disjoint triangles plus a third sharing edge 0-1 with two others.
	m := New(
		make([]r3.Vector, 8),
		[]Polygon{{0, 1, 2}, {0, 1, 3}, {0, 1, 4}, {5, 6, 7}},
	)
	topo := ComputeTopology(m)
	test.That(t, topo.Components, test.ShouldEqual, 2)
	test.That(t, topo.NonManifoldEdges, test.ShouldEqual, 1)
	test.That(t, topo.ReferencedVertices, test.ShouldEqual, 8)

	// Unreferenced vertices are not components.
	sparse := New(make([]r3.Vector, 10), []Polygon{{0, 1, 2}})
	test.That(t, ComputeTopology(sparse).Components, test.ShouldEqual, 1)
	test.That(t, ComputeTopology(sparse).ReferencedVertices, test.ShouldEqual, 3)
}
