package reconstruction

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/meshprune/logging"
	"go.viam.com/meshprune/mesh"
	"go.viam.com/meshprune/meshio"
)

const (
	// DefaultPoissonBinary is looked up on PATH when no binary is configured.
	DefaultPoissonBinary = "PoissonRecon"
	// DefaultPoissonDepth is the octree depth handed to the solver.
	DefaultPoissonDepth = 8
)

// PoissonCommand reconstructs surfaces by running an external Poisson solver that takes
// "--in", "--out" and "--depth" arguments and reads and writes PLY.
type PoissonCommand struct {
	Binary    string
	Depth     int
	ExtraArgs []string

	logger logging.Logger
}

// NewPoissonCommand returns a reconstructor running binary at the given depth.
func NewPoissonCommand(binary string, depth int, extraArgs []string, logger logging.Logger) (*PoissonCommand, error) {
	if binary == "" {
		return nil, errors.New("poisson binary must be set")
	}
	if depth < 1 {
		return nil, errors.Errorf("poisson depth must be at least 1, got %d", depth)
	}
	if logger == nil {
		logger = logging.NewBlankLogger("poisson")
	}
	return &PoissonCommand{Binary: binary, Depth: depth, ExtraArgs: extraArgs, logger: logger}, nil
}

// Reconstruct writes the oriented points to a scratch directory, runs the solver over
// them and reads back its mesh.
func (pc *PoissonCommand) Reconstruct(ctx context.Context, pts, normals []r3.Vector) (*mesh.Mesh, error) {
	if len(pts) != len(normals) {
		return nil, errors.Errorf("have %d normals for %d points", len(normals), len(pts))
	}
	ctx, span := trace.StartSpan(ctx, "reconstruction::PoissonCommand::Reconstruct")
	defer span.End()

	dir, err := os.MkdirTemp("", "meshprune-poisson-")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(func() error { return os.RemoveAll(dir) })

	inPath := filepath.Join(dir, "in.ply")
	outPath := filepath.Join(dir, "out.ply")
	if err := writeOrientedPoints(inPath, pts, normals); err != nil {
		return nil, err
	}

	args := append([]string{"--in", inPath, "--out", outPath, "--depth", strconv.Itoa(pc.Depth)}, pc.ExtraArgs...)
	pc.logger.Debugw("running poisson reconstruction", "binary", pc.Binary, "args", args)

	//nolint:gosec
	cmd := exec.CommandContext(ctx, pc.Binary, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(err, "%s failed: %s", pc.Binary, strings.TrimSpace(output.String()))
	}

	m, err := meshio.ReadMeshFile(outPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading poisson output")
	}
	if len(m.Polygons) == 0 {
		return nil, ErrReconstructionFailed
	}
	return m, nil
}

func writeOrientedPoints(path string, pts, normals []r3.Vector) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return meshio.WritePLYPoints(f, pts, normals)
}
