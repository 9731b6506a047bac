package cli

import (
	"github.com/pkg/errors"

	"go.viam.com/meshprune/pointcloud"
	"go.viam.com/meshprune/prune"
	"go.viam.com/meshprune/reconstruction"
)

// UserMessage turns an error returned by a command into the one line shown to the user.
func UserMessage(err error) string {
	var (
		emptyErr *prune.EmptyMeshError
		paramErr *prune.InvalidParameterError
	)
	switch {
	case errors.As(err, &emptyErr):
		return "nothing to prune: " + emptyErr.Error()
	case errors.As(err, &paramErr):
		return "bad parameter: " + paramErr.Error()
	case errors.Is(err, reconstruction.ErrReconstructionFailed):
		return "surface reconstruction produced no polygons"
	case errors.Is(err, pointcloud.ErrEmptyCloud):
		return "no points to work with: " + err.Error()
	default:
		return err.Error()
	}
}
