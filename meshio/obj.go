// Package meshio reads and writes the mesh file formats used at the edges of the pipeline:
// Wavefront OBJ and Stanford PLY.
package meshio

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/meshprune/mesh"
)

const maxOBJLineLength = 1 << 20

// ReadOBJ reads the vertices ("v") and faces ("f") of a Wavefront OBJ stream. Texture and
// normal references in faces are ignored, as are all other statements.
func ReadOBJ(in io.Reader) (*mesh.Mesh, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxOBJLineLength)

	var (
		vertices []r3.Vector
		polygons []mesh.Polygon
		lineNum  int
	)
	for scanner.Scan() {
		lineNum++
		line, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, errors.Errorf("line %d: vertex needs 3 coordinates, got %d", lineNum, len(fields)-1)
			}
			var coords [3]float64
			for i := range coords {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, errors.Wrapf(err, "line %d: invalid vertex coordinate", lineNum)
				}
				coords[i] = f
			}
			vertices = append(vertices, r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]})
		case "f":
			if len(fields) < 4 {
				return nil, errors.Errorf("line %d: face needs at least 3 vertices, got %d", lineNum, len(fields)-1)
			}
			poly := make(mesh.Polygon, 0, len(fields)-1)
			for _, token := range fields[1:] {
				idx, err := parseOBJIndex(token, len(vertices))
				if err != nil {
					return nil, errors.Wrapf(err, "line %d", lineNum)
				}
				poly = append(poly, idx)
			}
			polygons = append(polygons, poly)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading obj")
	}

	m := mesh.New(vertices, polygons)
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid obj mesh")
	}
	return m, nil
}

// parseOBJIndex turns a face token like "7", "7/2" or "-1//3" into a zero-based vertex index.
func parseOBJIndex(token string, numVertices int) (int, error) {
	vertexRef, _, _ := strings.Cut(token, "/")
	idx, err := strconv.Atoi(vertexRef)
	if err != nil {
		return 0, errors.Errorf("invalid face index %q", token)
	}
	switch {
	case idx > 0:
		return idx - 1, nil
	case idx < 0:
		return numVertices + idx, nil
	default:
		return 0, errors.New("face index 0 is not valid in obj")
	}
}

// WriteOBJ writes every vertex of the mesh, referenced or not, followed by its faces.
func WriteOBJ(out io.Writer, m *mesh.Mesh) error {
	w := bufio.NewWriter(out)

	if _, err := io.WriteString(w, "# meshprune\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "# vertices "+strconv.Itoa(len(m.Vertices))+
		", faces "+strconv.Itoa(len(m.Polygons))+"\n"); err != nil {
		return err
	}

	buf := make([]byte, 0, 96)
	for _, v := range m.Vertices {
		buf = append(buf[:0], "v "...)
		buf = strconv.AppendFloat(buf, v.X, 'g', -1, 64)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, v.Y, 'g', -1, 64)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, v.Z, 'g', -1, 64)
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	for _, poly := range m.Polygons {
		buf = append(buf[:0], 'f')
		for _, idx := range poly {
			buf = append(buf, ' ')
			buf = strconv.AppendInt(buf, int64(idx+1), 10)
		}
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return w.Flush()
}
