package pointcloud

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func bruteForceNeighbors(pts []r3.Vector, q r3.Vector, skip, k int) []Neighbor {
	var all []Neighbor
	for i, p := range pts {
		if i == skip {
			continue
		}
		all = append(all, Neighbor{Index: i, Distance: p.Distance(q)})
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].Distance != all[b].Distance {
			return all[a].Distance < all[b].Distance
		}
		return all[a].Index < all[b].Index
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}

func randomCloud(n int, seed int64) []r3.Vector {
	//nolint:gosec
	r := rand.New(rand.NewSource(seed))
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = NewVector(r.Float64()*10, r.Float64()*10, r.Float64()*10)
	}
	return pts
}

func TestNewKDTree(t *testing.T) {
	_, err := NewKDTree(nil)
	test.That(t, err, test.ShouldBeError, ErrEmptyCloud)

	_, err = NewKDTree([]r3.Vector{{}, {X: math.NaN()}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "point 1")

	pts := []r3.Vector{{X: 3}, {X: 1}, {X: 2}}
	kd, err := NewKDTree(pts)
	test.That(t, err, test.ShouldBeNil)
	pts[0] = NewVector(100, 100, 100)
	test.That(t, kd.Len(), test.ShouldEqual, 3)
	test.That(t, kd.Point(0), test.ShouldResemble, r3.Vector{X: 3})
	test.That(t, kd.Point(1), test.ShouldResemble, r3.Vector{X: 1})
}

func TestKNearestNeighbors(t *testing.T) {
	pts := []r3.Vector{{X: 0}, {X: 1}, {X: 3}, {X: 6}, {X: 10}}
	kd, err := NewKDTree(pts)
	test.That(t, err, test.ShouldBeNil)

	t.Run("query point", func(t *testing.T) {
		got := kd.KNearestNeighbors(NewVector(2.9, 0, 0), 3)
		test.That(t, got, test.ShouldHaveLength, 3)
		test.That(t, got[0].Index, test.ShouldEqual, 2)
		test.That(t, got[1].Index, test.ShouldEqual, 1)
		test.That(t, got[2].Index, test.ShouldEqual, 0)
		test.That(t, got[0].Distance, test.ShouldAlmostEqual, 0.1)
		test.That(t, got[2].Distance, test.ShouldAlmostEqual, 2.9)
	})

	t.Run("stored point includes itself", func(t *testing.T) {
		got := kd.KNearestNeighbors(pts[1], 2)
		test.That(t, got, test.ShouldResemble, []Neighbor{{Index: 1, Distance: 0}, {Index: 0, Distance: 1}})
	})

	t.Run("excluding self", func(t *testing.T) {
		got := kd.KNearestNeighborsOf(1, 2)
		test.That(t, got, test.ShouldResemble, []Neighbor{{Index: 0, Distance: 1}, {Index: 2, Distance: 2}})
	})

	t.Run("fewer points than k", func(t *testing.T) {
		test.That(t, kd.KNearestNeighbors(pts[0], 50), test.ShouldHaveLength, 5)
		test.That(t, kd.KNearestNeighborsOf(4, 50), test.ShouldHaveLength, 4)
	})

	t.Run("non-positive k", func(t *testing.T) {
		test.That(t, kd.KNearestNeighbors(pts[0], 0), test.ShouldBeEmpty)
		test.That(t, kd.KNearestNeighborsOf(0, -1), test.ShouldBeEmpty)
	})

	t.Run("single point", func(t *testing.T) {
		single, err := NewKDTree([]r3.Vector{{X: 1, Y: 2, Z: 3}})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, single.KNearestNeighborsOf(0, 10), test.ShouldBeEmpty)
		test.That(t, single.KNearestNeighbors(r3.Vector{}, 10), test.ShouldHaveLength, 1)
	})
}

func TestKNearestNeighborsDuplicates(t *testing.T) {
	pts := []r3.Vector{{X: 1}, {X: 5}, {X: 1}, {X: 1}, {X: 2}}
	kd, err := NewKDTree(pts)
	test.That(t, err, test.ShouldBeNil)

	got := kd.KNearestNeighborsOf(2, 3)
	test.That(t, got, test.ShouldResemble, []Neighbor{
		{Index: 0, Distance: 0},
		{Index: 3, Distance: 0},
		{Index: 4, Distance: 1},
	})

	// every copy but the query itself comes back at distance zero
	all := make([]r3.Vector, 6)
	kd, err = NewKDTree(all)
	test.That(t, err, test.ShouldBeNil)
	got = kd.KNearestNeighborsOf(3, 10)
	test.That(t, got, test.ShouldHaveLength, 5)
	for i, n := range got {
		test.That(t, n.Distance, test.ShouldEqual, 0.)
		test.That(t, n.Index, test.ShouldNotEqual, 3)
		if i > 0 {
			test.That(t, n.Index, test.ShouldBeGreaterThan, got[i-1].Index)
		}
	}
}

func TestKNearestNeighborsMatchesBruteForce(t *testing.T) {
	pts := randomCloud(500, 7)
	kd, err := NewKDTree(pts)
	test.That(t, err, test.ShouldBeNil)

	for _, i := range []int{0, 17, 250, 499} {
		want := bruteForceNeighbors(pts, pts[i], i, 10)
		got := kd.KNearestNeighborsOf(i, 10)
		test.That(t, got, test.ShouldHaveLength, len(want))
		for j := range want {
			test.That(t, got[j].Index, test.ShouldEqual, want[j].Index)
			test.That(t, got[j].Distance, test.ShouldAlmostEqual, want[j].Distance)
		}
	}
}

func TestKDTreeConcurrentQueries(t *testing.T) {
	pts := randomCloud(300, 11)
	kd, err := NewKDTree(pts)
	test.That(t, err, test.ShouldBeNil)

	want := make([][]Neighbor, len(pts))
	for i := range pts {
		want[i] = kd.KNearestNeighborsOf(i, 8)
	}

	var wg sync.WaitGroup
	mismatches := make([]int, 4)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range pts {
				got := kd.KNearestNeighborsOf(i, 8)
				if len(got) != len(want[i]) || got[0] != want[i][0] {
					mismatches[w]++
				}
			}
		}(w)
	}
	wg.Wait()
	test.That(t, mismatches, test.ShouldResemble, []int{0, 0, 0, 0})
}
