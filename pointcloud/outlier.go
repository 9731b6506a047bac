package pointcloud

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/meshprune/logging"
	"go.viam.com/meshprune/utils"
)

// StatisticalOutlierFilter drops points whose mean distance to their MeanK nearest
// neighbors exceeds the cloud-wide mean of that quantity by more than StdDevMulThresh
// sample standard deviations.
type StatisticalOutlierFilter struct {
	MeanK           int
	StdDevMulThresh float64

	logger logging.Logger
}

// NewStatisticalOutlierFilter returns a filter with the given parameters.
func NewStatisticalOutlierFilter(meanK int, stdDevMulThresh float64, logger logging.Logger) (*StatisticalOutlierFilter, error) {
	if meanK <= 0 {
		return nil, errors.Errorf("outlier filter mean_k must be positive, got %d", meanK)
	}
	if stdDevMulThresh < 0 {
		return nil, errors.Errorf("outlier filter std_dev_mul_thresh must not be negative, got %v", stdDevMulThresh)
	}
	return &StatisticalOutlierFilter{MeanK: meanK, StdDevMulThresh: stdDevMulThresh, logger: logger}, nil
}

// RemoveOutliers returns the inlier points in their original order.
func (f *StatisticalOutlierFilter) RemoveOutliers(ctx context.Context, pts []r3.Vector) ([]r3.Vector, error) {
	if len(pts) == 0 {
		return nil, ErrEmptyCloud
	}
	if len(pts) < 2 {
		// no neighbors to compare against
		return append([]r3.Vector(nil), pts...), nil
	}

	kd, err := NewKDTree(pts)
	if err != nil {
		return nil, err
	}

	meanDists := make([]float64, len(pts))
	err = utils.GroupWorkParallel(ctx, len(pts), nil, func(_, _, _, _ int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
		return func(_, i int) {
			neighbors := kd.KNearestNeighborsOf(i, f.MeanK)
			var sum float64
			for _, n := range neighbors {
				sum += n.Distance
			}
			meanDists[i] = sum / float64(len(neighbors))
		}, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "computing neighbor distances")
	}

	mean, stdDev := stat.MeanStdDev(meanDists, nil)
	threshold := mean + f.StdDevMulThresh*stdDev

	inliers := make([]r3.Vector, 0, len(pts))
	for i, p := range pts {
		if meanDists[i] <= threshold {
			inliers = append(inliers, p)
		}
	}
	if f.logger != nil {
		f.logger.Debugw("statistical outlier removal",
			"in", len(pts), "kept", len(inliers), "mean", mean, "stddev", stdDev, "threshold", threshold)
	}
	return inliers, nil
}
