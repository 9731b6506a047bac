package pointcloud

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor is a stored point returned by a nearest neighbor query.
type Neighbor struct {
	Index    int
	Distance float64 // Euclidean
}

// KDTree is a read-only nearest neighbor index over a fixed set of points. It never changes
// after NewKDTree returns, so any number of goroutines may query it at once.
type KDTree struct {
	tree   *kdtree.Tree
	points []r3.Vector
}

// NewKDTree builds an index over a copy of the given points. Point i of the input is
// reported as Neighbor.Index i by every query.
func NewKDTree(points []r3.Vector) (*KDTree, error) {
	if len(points) == 0 {
		return nil, ErrEmptyCloud
	}
	entries := make(indexedPoints, len(points))
	stored := make([]r3.Vector, len(points))
	for i, p := range points {
		if !isFinite(p) {
			return nil, errors.Errorf("point %d has a non-finite coordinate %v", i, p)
		}
		entries[i] = indexedPoint{index: i, Vector: p}
		stored[i] = p
	}
	// kdtree.New reorders entries in place; stored keeps the caller's order.
	return &KDTree{tree: kdtree.New(entries, false), points: stored}, nil
}

// Len returns the number of indexed points.
func (kd *KDTree) Len() int {
	return len(kd.points)
}

// Point returns the indexed point i.
func (kd *KDTree) Point(i int) r3.Vector {
	return kd.points[i]
}

// KNearestNeighbors returns up to k stored points closest to p, nearest first. A stored
// point equal to p is included at distance 0.
func (kd *KDTree) KNearestNeighbors(p r3.Vector, k int) []Neighbor {
	if k <= 0 {
		return nil
	}
	if k > len(kd.points) {
		k = len(kd.points)
	}
	return kd.search(indexedPoint{index: -1, Vector: p}, k, k)
}

// KNearestNeighborsOf returns up to k stored points closest to stored point i, nearest
// first, never including i itself. Other stored points at the same position are returned
// with distance 0.
func (kd *KDTree) KNearestNeighborsOf(i, k int) []Neighbor {
	if k <= 0 {
		return nil
	}
	want := k + 1
	if want > len(kd.points) {
		want = len(kd.points)
	}
	return kd.search(indexedPoint{index: i, Vector: kd.points[i]}, want, k)
}

// search keeps the `want` closest entries, drops the entry sharing the query's index, and
// returns at most `limit` of the rest.
func (kd *KDTree) search(q indexedPoint, want, limit int) []Neighbor {
	keep := kdtree.NewNKeeper(want)
	kd.tree.NearestSet(keep, q)

	neighbors := make([]Neighbor, 0, len(keep.Heap))
	for _, c := range keep.Heap {
		// the keeper is seeded with a sentinel that survives when fewer than want points exist.
		if c.Comparable == nil {
			continue
		}
		found := c.Comparable.(indexedPoint)
		if q.index >= 0 && found.index == q.index {
			continue
		}
		neighbors = append(neighbors, Neighbor{Index: found.index, Distance: math.Sqrt(c.Dist)})
	}
	sort.Slice(neighbors, func(a, b int) bool {
		if neighbors[a].Distance != neighbors[b].Distance {
			return neighbors[a].Distance < neighbors[b].Distance
		}
		return neighbors[a].Index < neighbors[b].Index
	})
	if len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors
}

// indexedPoint is the kdtree.Comparable stored in the tree.
type indexedPoint struct {
	index int
	r3.Vector
}

func (p indexedPoint) coord(d kdtree.Dim) float64 {
	switch d {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// Compare returns the signed distance of p from the plane through c perpendicular to d.
func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coord(d) - c.(indexedPoint).coord(d)
}

// Dims returns the number of dimensions described by the receiver.
func (p indexedPoint) Dims() int {
	return 3
}

// Distance returns the squared Euclidean distance, which is what kdtree prunes against.
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	return p.Sub(c.(indexedPoint).Vector).Norm2()
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p indexedPoints) Len() int                      { return len(p) }
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	return plane{indexedPoints: p, Dim: d}.Pivot()
}
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane is a wrapping type that allows a set of points to be sorted along a dimension.
type plane struct {
	kdtree.Dim
	indexedPoints
}

func (p plane) Less(i, j int) bool {
	return p.indexedPoints[i].coord(p.Dim) < p.indexedPoints[j].coord(p.Dim)
}

func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.indexedPoints = p.indexedPoints[start:end]
	return p
}

func (p plane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}
