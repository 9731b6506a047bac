package meshio

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/meshprune/logging"
)

func TestMeshFiles(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"strip.obj", "strip.ply", "STRIP.OBJ"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			test.That(t, WriteMeshFile(path, quadStrip()), test.ShouldBeNil)
			m, err := ReadMeshFile(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, m, test.ShouldResemble, quadStrip())
		})
	}

	_, err := ReadMeshFile(filepath.Join(dir, "strip.stl"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "do not know how to read")

	test.That(t, WriteMeshFile(filepath.Join(dir, "strip.stl"), quadStrip()), test.ShouldNotBeNil)

	_, err = ReadMeshFile(filepath.Join(dir, "missing.obj"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestOBJWriter(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	path := filepath.Join(t.TempDir(), "out.obj")

	test.That(t, OBJWriter{Logger: logger}.WriteMesh(path, quadStrip()), test.ShouldBeNil)
	m, err := ReadMeshFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.NumPolygons(), test.ShouldEqual, 2)

	entries := logs.FilterMessage("wrote mesh").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].ContextMap()["polygons"], test.ShouldEqual, int64(2))

	err = OBJWriter{}.WriteMesh(filepath.Join(t.TempDir(), "no", "such", "dir.obj"), quadStrip())
	test.That(t, err, test.ShouldNotBeNil)
}
