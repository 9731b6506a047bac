package reconstruction

import (
	"context"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/meshprune/logging"
	"go.viam.com/meshprune/pointcloud"
)

// Pipeline runs every stage from raw points to a written mesh.
type Pipeline struct {
	Outliers OutlierRemover
	Normals  NormalEstimator
	Surface  SurfaceReconstructor
	Pruner   MeshPruner
	Writer   MeshWriter
	Logger   logging.Logger
}

// Report describes a completed pipeline run.
type Report struct {
	RunID          string
	InputPoints    int
	FilteredPoints int
	MeshVertices   int
	PolygonsBefore int
	PolygonsAfter  int
	Threshold      float64
	OutputPath     string
	Took           time.Duration
}

// Run processes cloud and writes the pruned mesh to outPath. Errors from the pruning stage
// are returned unwrapped so callers can match on the prune error types.
func (p *Pipeline) Run(ctx context.Context, cloud []r3.Vector, outPath string) (*Report, error) {
	ctx, span := trace.StartSpan(ctx, "reconstruction::Pipeline::Run")
	defer span.End()

	start := time.Now()
	report := &Report{RunID: uuid.NewString(), InputPoints: len(cloud), OutputPath: outPath}

	logger := p.Logger
	if logger == nil {
		logger = logging.NewBlankLogger("reconstruction")
	}
	logger = logger.WithFields("run", report.RunID)

	if len(cloud) == 0 {
		return nil, errors.Wrap(pointcloud.ErrEmptyCloud, "input")
	}

	filtered, err := p.Outliers.RemoveOutliers(ctx, cloud)
	if err != nil {
		return nil, errors.Wrap(err, "removing outliers")
	}
	if len(filtered) == 0 {
		return nil, errors.Wrap(pointcloud.ErrEmptyCloud, "no points left after outlier removal")
	}
	report.FilteredPoints = len(filtered)
	logger.Infow("removed outliers", "in", len(cloud), "kept", len(filtered))

	normals, err := p.Normals.EstimateNormals(ctx, filtered)
	if err != nil {
		return nil, errors.Wrap(err, "estimating normals")
	}

	m, err := p.Surface.Reconstruct(ctx, filtered, normals)
	if err != nil {
		return nil, errors.Wrap(err, "reconstructing surface")
	}
	if m == nil || len(m.Polygons) == 0 {
		return nil, ErrReconstructionFailed
	}
	report.MeshVertices = len(m.Vertices)
	logger.Infow("reconstructed surface", "vertices", len(m.Vertices), "polygons", len(m.Polygons))

	res, err := p.Pruner.Prune(ctx, m)
	if err != nil {
		return nil, err
	}
	report.PolygonsBefore = res.PolygonsBefore
	report.PolygonsAfter = res.PolygonsAfter
	report.Threshold = res.Threshold

	if err := p.Writer.WriteMesh(outPath, res.Mesh); err != nil {
		return nil, errors.Wrapf(err, "writing %q", outPath)
	}
	report.Took = time.Since(start)
	logger.Infow("pipeline done",
		"output", outPath, "polygons_before", report.PolygonsBefore, "polygons_after", report.PolygonsAfter,
		"took", report.Took)
	return report, nil
}
