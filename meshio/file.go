package meshio

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/meshprune/logging"
	"go.viam.com/meshprune/mesh"
)

// ReadMeshFile reads a mesh, choosing the codec from the file extension.
func ReadMeshFile(path string) (*mesh.Mesh, error) {
	var read func(io.Reader) (*mesh.Mesh, error)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".obj":
		read = ReadOBJ
	case ".ply":
		read = ReadPLY
	default:
		return nil, errors.Errorf("do not know how to read mesh file %q", path)
	}

	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	m, err := read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	return m, nil
}

// WriteOBJFile writes the mesh to path as OBJ, replacing any existing file.
func WriteOBJFile(path string, m *mesh.Mesh) error {
	return writeFile(path, m, WriteOBJ)
}

// WriteMeshFile writes the mesh using the codec matching the file extension.
func WriteMeshFile(path string, m *mesh.Mesh) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".obj":
		return writeFile(path, m, WriteOBJ)
	case ".ply":
		return writeFile(path, m, WritePLY)
	default:
		return errors.Errorf("do not know how to write mesh file %q", path)
	}
}

func writeFile(path string, m *mesh.Mesh, write func(io.Writer, *mesh.Mesh) error) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	if err := write(f, m); err != nil {
		return errors.Wrapf(err, "writing %q", path)
	}
	return nil
}

// OBJWriter writes meshes to disk, as OBJ unless the path ends in .ply, and logs what it
// wrote.
type OBJWriter struct {
	Logger logging.Logger
}

// WriteMesh writes m to path.
func (w OBJWriter) WriteMesh(path string, m *mesh.Mesh) error {
	var err error
	if strings.EqualFold(filepath.Ext(path), ".ply") {
		err = WriteMeshFile(path, m)
	} else {
		err = WriteOBJFile(path, m)
	}
	if err != nil {
		return err
	}
	if w.Logger != nil {
		size := "unknown size"
		if info, statErr := os.Stat(path); statErr == nil {
			size = units.HumanSize(float64(info.Size()))
		}
		w.Logger.Infow("wrote mesh", "path", path, "vertices", m.NumVertices(), "polygons", m.NumPolygons(), "size", size)
	}
	return nil
}
