package reconstruction

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/meshprune/logging"
	"go.viam.com/meshprune/mesh"
	"go.viam.com/meshprune/pointcloud"
	"go.viam.com/meshprune/prune"
)

type fakeOutliers struct {
	keep int
	err  error
}

func (f *fakeOutliers) RemoveOutliers(_ context.Context, pts []r3.Vector) ([]r3.Vector, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.keep < len(pts) {
		return pts[:f.keep], nil
	}
	return pts, nil
}

type fakeNormals struct{}

func (fakeNormals) EstimateNormals(_ context.Context, pts []r3.Vector) ([]r3.Vector, error) {
	normals := make([]r3.Vector, len(pts))
	for i := range normals {
		normals[i] = r3.Vector{Z: 1}
	}
	return normals, nil
}

// fakeSurface triangulates the input points as a fan around the first one.
type fakeSurface struct {
	err error
}

func (f *fakeSurface) Reconstruct(_ context.Context, pts, normals []r3.Vector) (*mesh.Mesh, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(pts) != len(normals) {
		return nil, errors.New("mismatched normals")
	}
	var polygons []mesh.Polygon
	for i := 1; i+1 < len(pts); i++ {
		polygons = append(polygons, mesh.Polygon{0, i, i + 1})
	}
	return mesh.New(pts, polygons), nil
}

type fakePruner struct {
	err error
}

func (f *fakePruner) Prune(_ context.Context, m *mesh.Mesh) (*prune.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &prune.Result{Mesh: m, PolygonsBefore: len(m.Polygons), PolygonsAfter: len(m.Polygons)}, nil
}

type captureWriter struct {
	path string
	mesh *mesh.Mesh
	err  error
}

func (w *captureWriter) WriteMesh(path string, m *mesh.Mesh) error {
	w.path, w.mesh = path, m
	return w.err
}

func ring(n int) []r3.Vector {
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{X: float64(i % 7), Y: float64(i / 7)}
	}
	return pts
}

func TestPipelineRun(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	pruner, err := prune.NewPruner(prune.Config{NeighborCount: 4, Quantile: 0.1}, logger)
	test.That(t, err, test.ShouldBeNil)
	writer := &captureWriter{}

	p := &Pipeline{
		Outliers: &fakeOutliers{keep: 40},
		Normals:  fakeNormals{},
		Surface:  &fakeSurface{},
		Pruner:   pruner,
		Writer:   writer,
		Logger:   logger,
	}
	report, err := p.Run(context.Background(), ring(49), "out.obj")
	test.That(t, err, test.ShouldBeNil)

	_, err = uuid.Parse(report.RunID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.InputPoints, test.ShouldEqual, 49)
	test.That(t, report.FilteredPoints, test.ShouldEqual, 40)
	test.That(t, report.MeshVertices, test.ShouldEqual, 40)
	test.That(t, report.PolygonsBefore, test.ShouldEqual, 38)
	test.That(t, report.PolygonsAfter, test.ShouldBeLessThanOrEqualTo, 38)
	test.That(t, report.OutputPath, test.ShouldEqual, "out.obj")

	test.That(t, writer.path, test.ShouldEqual, "out.obj")
	test.That(t, writer.mesh.Polygons, test.ShouldHaveLength, report.PolygonsAfter)

	done := logs.FilterMessage("pipeline done").All()
	test.That(t, done, test.ShouldHaveLength, 1)
	test.That(t, done[0].ContextMap()["run"], test.ShouldEqual, report.RunID)
}

func TestPipelineErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	newPipeline := func() *Pipeline {
		return &Pipeline{
			Outliers: &fakeOutliers{keep: 100},
			Normals:  fakeNormals{},
			Surface:  &fakeSurface{},
			Pruner:   &fakePruner{},
			Writer:   &captureWriter{},
			Logger:   logger,
		}
	}

	t.Run("empty cloud", func(t *testing.T) {
		_, err := newPipeline().Run(context.Background(), nil, "out.obj")
		test.That(t, errors.Is(err, pointcloud.ErrEmptyCloud), test.ShouldBeTrue)
	})

	t.Run("everything filtered", func(t *testing.T) {
		p := newPipeline()
		p.Outliers = &fakeOutliers{keep: 0}
		_, err := p.Run(context.Background(), ring(10), "out.obj")
		test.That(t, errors.Is(err, pointcloud.ErrEmptyCloud), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "after outlier removal")
	})

	t.Run("outlier failure", func(t *testing.T) {
		p := newPipeline()
		p.Outliers = &fakeOutliers{err: errors.New("bad filter")}
		_, err := p.Run(context.Background(), ring(10), "out.obj")
		test.That(t, err.Error(), test.ShouldContainSubstring, "bad filter")
	})

	t.Run("surface failure", func(t *testing.T) {
		p := newPipeline()
		p.Surface = &fakeSurface{err: errors.New("solver down")}
		_, err := p.Run(context.Background(), ring(10), "out.obj")
		test.That(t, err.Error(), test.ShouldContainSubstring, "solver down")
	})

	t.Run("no polygons", func(t *testing.T) {
		_, err := newPipeline().Run(context.Background(), ring(2), "out.obj")
		test.That(t, errors.Is(err, ErrReconstructionFailed), test.ShouldBeTrue)
	})

	t.Run("prune errors pass through", func(t *testing.T) {
		p := newPipeline()
		p.Pruner = &fakePruner{err: &prune.InvalidParameterError{Name: "quantile", Value: 2.0, Reason: "must be in [0, 1)"}}
		_, err := p.Run(context.Background(), ring(10), "out.obj")
		var paramErr *prune.InvalidParameterError
		test.That(t, errors.As(err, &paramErr), test.ShouldBeTrue)
	})

	t.Run("write failure", func(t *testing.T) {
		p := newPipeline()
		p.Writer = &captureWriter{err: errors.New("disk full")}
		_, err := p.Run(context.Background(), ring(10), "out.obj")
		test.That(t, err.Error(), test.ShouldContainSubstring, "disk full")
	})
}
