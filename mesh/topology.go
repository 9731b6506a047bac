package mesh

// Topology summarizes the connectivity of a mesh. Pruning can open boundaries and split a
// surface into fragments; this is how those consequences get reported.
type Topology struct {
	Polygons           int
	ReferencedVertices int
	BoundaryEdges      int // edges used by exactly one polygon
	NonManifoldEdges   int // edges used by more than two polygons
	Components         int // groups of polygons connected through shared vertices
}

type edge struct {
	a, b int
}

func newEdge(a, b int) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a, b}
}

// ComputeTopology walks the polygons of the mesh once. The mesh must be valid.
func ComputeTopology(m *Mesh) Topology {
	topo := Topology{Polygons: len(m.Polygons)}

	edgeUses := make(map[edge]int, len(m.Polygons)*3/2)
	uf := newUnionFind(len(m.Vertices))
	referenced := make([]bool, len(m.Vertices))

	for _, poly := range m.Polygons {
		for i, idx := range poly {
			next := poly[(i+1)%len(poly)]
			if idx != next {
				edgeUses[newEdge(idx, next)]++
			}
			uf.union(poly[0], idx)
			referenced[idx] = true
		}
	}

	for _, uses := range edgeUses {
		switch {
		case uses == 1:
			topo.BoundaryEdges++
		case uses > 2:
			topo.NonManifoldEdges++
		}
	}

	roots := make(map[int]struct{})
	for idx, ref := range referenced {
		if !ref {
			continue
		}
		topo.ReferencedVertices++
		roots[uf.find(idx)] = struct{}{}
	}
	topo.Components = len(roots)
	return topo
}

type unionFind struct {
	parent []int
	rank   []uint8
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]uint8, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}
