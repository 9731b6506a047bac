package pointcloud

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/meshprune/logging"
)

func TestNewNormalEstimator(t *testing.T) {
	_, err := NewNormalEstimator(0, nil)
	test.That(t, err, test.ShouldNotBeNil)

	ne, err := NewNormalEstimator(10, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ne.K, test.ShouldEqual, 10)
	test.That(t, ne.Viewpoint, test.ShouldResemble, r3.Vector{})
}

func TestEstimateNormalsPlane(t *testing.T) {
	var pts []r3.Vector
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			pts = append(pts, NewVector(float64(x), float64(y), 5))
		}
	}
	ne, err := NewNormalEstimator(10, nil)
	test.That(t, err, test.ShouldBeNil)

	normals, err := ne.EstimateNormals(context.Background(), pts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, normals, test.ShouldHaveLength, len(pts))
	for _, n := range normals {
		test.That(t, math.Abs(n.X), test.ShouldBeLessThan, 1e-9)
		test.That(t, math.Abs(n.Y), test.ShouldBeLessThan, 1e-9)
		// the plane sits at z=5 so the origin is below it
		test.That(t, n.Z, test.ShouldAlmostEqual, -1)
	}

	ne.Viewpoint = NewVector(0, 0, 100)
	normals, err = ne.EstimateNormals(context.Background(), pts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, normals[0].Z, test.ShouldAlmostEqual, 1)
}

func TestEstimateNormalsDegenerate(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	ne, err := NewNormalEstimator(10, logger)
	test.That(t, err, test.ShouldBeNil)

	normals, err := ne.EstimateNormals(context.Background(), []r3.Vector{{X: 1}, {X: 2}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, normals, test.ShouldResemble, []r3.Vector{{}, {}})

	normals, err = ne.EstimateNormals(context.Background(), make([]r3.Vector, 5))
	test.That(t, err, test.ShouldBeNil)
	for _, n := range normals {
		test.That(t, n, test.ShouldResemble, r3.Vector{})
	}

	entries := logs.FilterMessage("estimated normals").All()
	test.That(t, entries, test.ShouldHaveLength, 2)
	test.That(t, entries[0].ContextMap()["without_normal"], test.ShouldEqual, int64(2))
	test.That(t, entries[1].ContextMap()["points"], test.ShouldEqual, int64(5))
	test.That(t, entries[1].ContextMap()["without_normal"], test.ShouldEqual, int64(5))

	_, err = ne.EstimateNormals(context.Background(), nil)
	test.That(t, err, test.ShouldBeError, ErrEmptyCloud)
}
