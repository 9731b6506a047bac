package meshio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/meshprune/mesh"
)

type plyFormat int

const (
	plyASCII plyFormat = iota
	plyBinaryLittleEndian
	plyBinaryBigEndian
)

type plyScalar int

const (
	plyInt8 plyScalar = iota
	plyUint8
	plyInt16
	plyUint16
	plyInt32
	plyUint32
	plyFloat32
	plyFloat64
)

var plyScalarNames = map[string]plyScalar{
	"char": plyInt8, "int8": plyInt8,
	"uchar": plyUint8, "uint8": plyUint8,
	"short": plyInt16, "int16": plyInt16,
	"ushort": plyUint16, "uint16": plyUint16,
	"int": plyInt32, "int32": plyInt32,
	"uint": plyUint32, "uint32": plyUint32,
	"float": plyFloat32, "float32": plyFloat32,
	"double": plyFloat64, "float64": plyFloat64,
}

func (s plyScalar) size() int {
	switch s {
	case plyInt8, plyUint8:
		return 1
	case plyInt16, plyUint16:
		return 2
	case plyInt32, plyUint32, plyFloat32:
		return 4
	default:
		return 8
	}
}

type plyProperty struct {
	name      string
	isList    bool
	countType plyScalar
	valueType plyScalar
}

type plyElement struct {
	name       string
	count      int
	properties []plyProperty
}

type plyHeader struct {
	format   plyFormat
	elements []*plyElement
}

func readPLYHeader(in *bufio.Reader) (*plyHeader, error) {
	magic, err := in.ReadString('\n')
	if err != nil {
		return nil, errors.Wrap(err, "reading ply magic")
	}
	if strings.TrimSpace(magic) != "ply" {
		return nil, errors.New("not a ply file")
	}

	header := &plyHeader{format: -1}
	for lineNum := 2; ; lineNum++ {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "reading ply header line %d", lineNum)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) != 3 {
				return nil, errors.Errorf("header line %d: malformed format %q", lineNum, strings.TrimSpace(line))
			}
			switch fields[1] {
			case "ascii":
				header.format = plyASCII
			case "binary_little_endian":
				header.format = plyBinaryLittleEndian
			case "binary_big_endian":
				header.format = plyBinaryBigEndian
			default:
				return nil, errors.Errorf("unsupported ply format %q", fields[1])
			}
		case "comment", "obj_info":
		case "element":
			if len(fields) != 3 {
				return nil, errors.Errorf("header line %d: malformed element %q", lineNum, strings.TrimSpace(line))
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return nil, errors.Errorf("header line %d: invalid element count %q", lineNum, fields[2])
			}
			header.elements = append(header.elements, &plyElement{name: fields[1], count: count})
		case "property":
			if len(header.elements) == 0 {
				return nil, errors.Errorf("header line %d: property before any element", lineNum)
			}
			prop, err := parsePLYProperty(fields)
			if err != nil {
				return nil, errors.Wrapf(err, "header line %d", lineNum)
			}
			elem := header.elements[len(header.elements)-1]
			elem.properties = append(elem.properties, prop)
		case "end_header":
			if header.format < 0 {
				return nil, errors.New("ply header has no format line")
			}
			return header, nil
		default:
			return nil, errors.Errorf("header line %d: unknown keyword %q", lineNum, fields[0])
		}
	}
}

func parsePLYProperty(fields []string) (plyProperty, error) {
	if len(fields) >= 2 && fields[1] == "list" {
		if len(fields) != 5 {
			return plyProperty{}, errors.New("malformed list property")
		}
		countType, ok := plyScalarNames[fields[2]]
		if !ok {
			return plyProperty{}, errors.Errorf("unknown ply type %q", fields[2])
		}
		valueType, ok := plyScalarNames[fields[3]]
		if !ok {
			return plyProperty{}, errors.Errorf("unknown ply type %q", fields[3])
		}
		return plyProperty{name: fields[4], isList: true, countType: countType, valueType: valueType}, nil
	}
	if len(fields) != 3 {
		return plyProperty{}, errors.New("malformed property")
	}
	valueType, ok := plyScalarNames[fields[1]]
	if !ok {
		return plyProperty{}, errors.Errorf("unknown ply type %q", fields[1])
	}
	return plyProperty{name: fields[2], valueType: valueType}, nil
}

// plyValueReader yields successive scalar values of the body regardless of encoding.
type plyValueReader interface {
	next(t plyScalar) (float64, error)
}

type plyASCIIReader struct {
	scanner *bufio.Scanner
}

func (r *plyASCIIReader) next(_ plyScalar) (float64, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	return strconv.ParseFloat(r.scanner.Text(), 64)
}

type plyBinaryReader struct {
	in    io.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (r *plyBinaryReader) next(t plyScalar) (float64, error) {
	b := r.buf[:t.size()]
	if _, err := io.ReadFull(r.in, b); err != nil {
		return 0, err
	}
	switch t {
	case plyInt8:
		return float64(int8(b[0])), nil
	case plyUint8:
		return float64(b[0]), nil
	case plyInt16:
		return float64(int16(r.order.Uint16(b))), nil
	case plyUint16:
		return float64(r.order.Uint16(b)), nil
	case plyInt32:
		return float64(int32(r.order.Uint32(b))), nil
	case plyUint32:
		return float64(r.order.Uint32(b)), nil
	case plyFloat32:
		return float64(math.Float32frombits(r.order.Uint32(b))), nil
	default:
		return math.Float64frombits(r.order.Uint64(b)), nil
	}
}

// ReadPLY reads the vertex positions and faces of a PLY stream in ascii or binary
// encoding. Properties other than x, y, z and the face index list are read and dropped.
// A file with no face element yields a mesh with no polygons.
func ReadPLY(inRaw io.Reader) (*mesh.Mesh, error) {
	in := bufio.NewReader(inRaw)
	header, err := readPLYHeader(in)
	if err != nil {
		return nil, err
	}

	var values plyValueReader
	switch header.format {
	case plyASCII:
		scanner := bufio.NewScanner(in)
		scanner.Split(bufio.ScanWords)
		values = &plyASCIIReader{scanner: scanner}
	case plyBinaryLittleEndian:
		values = &plyBinaryReader{in: in, order: binary.LittleEndian}
	case plyBinaryBigEndian:
		values = &plyBinaryReader{in: in, order: binary.BigEndian}
	}

	var (
		vertices []r3.Vector
		polygons []mesh.Polygon
	)
	for _, elem := range header.elements {
		switch elem.name {
		case "vertex":
			vertices, err = readPLYVertices(values, elem)
		case "face":
			polygons, err = readPLYFaces(values, elem)
		default:
			err = skipPLYElement(values, elem)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading ply element %q", elem.name)
		}
	}

	m := mesh.New(vertices, polygons)
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid ply mesh")
	}
	return m, nil
}

func readPLYVertices(values plyValueReader, elem *plyElement) ([]r3.Vector, error) {
	slot := map[string]int{"x": -1, "y": -1, "z": -1}
	for i, prop := range elem.properties {
		if _, ok := slot[prop.name]; ok && !prop.isList {
			slot[prop.name] = i
		}
	}
	for _, axis := range []string{"x", "y", "z"} {
		if slot[axis] < 0 {
			return nil, errors.Errorf("vertex element has no %q property", axis)
		}
	}

	vertices := make([]r3.Vector, 0, elem.count)
	row := make([]float64, len(elem.properties))
	for i := 0; i < elem.count; i++ {
		for j, prop := range elem.properties {
			if prop.isList {
				if err := skipPLYList(values, prop); err != nil {
					return nil, errors.Wrapf(err, "vertex %d", i)
				}
				continue
			}
			v, err := values.next(prop.valueType)
			if err != nil {
				return nil, errors.Wrapf(err, "vertex %d", i)
			}
			row[j] = v
		}
		vertices = append(vertices, r3.Vector{X: row[slot["x"]], Y: row[slot["y"]], Z: row[slot["z"]]})
	}
	return vertices, nil
}

func readPLYFaces(values plyValueReader, elem *plyElement) ([]mesh.Polygon, error) {
	listIdx := -1
	for i, prop := range elem.properties {
		if prop.isList && (prop.name == "vertex_indices" || prop.name == "vertex_index") {
			listIdx = i
			break
		}
	}
	if listIdx < 0 {
		return nil, errors.New("face element has no vertex_indices list")
	}

	polygons := make([]mesh.Polygon, 0, elem.count)
	for i := 0; i < elem.count; i++ {
		for j, prop := range elem.properties {
			if j != listIdx {
				if err := skipPLYProperty(values, prop); err != nil {
					return nil, errors.Wrapf(err, "face %d", i)
				}
				continue
			}
			n, err := values.next(prop.countType)
			if err != nil {
				return nil, errors.Wrapf(err, "face %d", i)
			}
			poly := make(mesh.Polygon, int(n))
			for k := range poly {
				idx, err := values.next(prop.valueType)
				if err != nil {
					return nil, errors.Wrapf(err, "face %d", i)
				}
				poly[k] = int(idx)
			}
			polygons = append(polygons, poly)
		}
	}
	return polygons, nil
}

func skipPLYElement(values plyValueReader, elem *plyElement) error {
	for i := 0; i < elem.count; i++ {
		for _, prop := range elem.properties {
			if err := skipPLYProperty(values, prop); err != nil {
				return err
			}
		}
	}
	return nil
}

func skipPLYProperty(values plyValueReader, prop plyProperty) error {
	if prop.isList {
		return skipPLYList(values, prop)
	}
	_, err := values.next(prop.valueType)
	return err
}

func skipPLYList(values plyValueReader, prop plyProperty) error {
	n, err := values.next(prop.countType)
	if err != nil {
		return err
	}
	for k := 0; k < int(n); k++ {
		if _, err := values.next(prop.valueType); err != nil {
			return err
		}
	}
	return nil
}

// WritePLYPoints writes an ascii PLY of points, with nx ny nz properties when normals is
// non-nil. normals must then have one entry per point.
func WritePLYPoints(out io.Writer, pts, normals []r3.Vector) error {
	if normals != nil && len(normals) != len(pts) {
		return errors.Errorf("have %d normals for %d points", len(normals), len(pts))
	}
	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "ply\nformat ascii 1.0\nelement vertex %d\n"+
		"property double x\nproperty double y\nproperty double z\n", len(pts)); err != nil {
		return err
	}
	if normals != nil {
		if _, err := io.WriteString(w, "property double nx\nproperty double ny\nproperty double nz\n"); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "end_header\n"); err != nil {
		return err
	}

	buf := make([]byte, 0, 192)
	for i, p := range pts {
		buf = appendVector(buf[:0], p)
		if normals != nil {
			buf = append(buf, ' ')
			buf = appendVector(buf, normals[i])
		}
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WritePLY writes an ascii PLY of the mesh's vertices and faces.
func WritePLY(out io.Writer, m *mesh.Mesh) error {
	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "ply\nformat ascii 1.0\ncomment meshprune\nelement vertex %d\n"+
		"property double x\nproperty double y\nproperty double z\n"+
		"element face %d\nproperty list uchar int vertex_indices\nend_header\n",
		len(m.Vertices), len(m.Polygons)); err != nil {
		return err
	}

	buf := make([]byte, 0, 96)
	for _, v := range m.Vertices {
		buf = append(appendVector(buf[:0], v), '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	for i, poly := range m.Polygons {
		if len(poly) > math.MaxUint8 {
			return errors.Errorf("polygon %d has %d vertices, ply writer supports at most %d", i, len(poly), math.MaxUint8)
		}
		buf = strconv.AppendInt(buf[:0], int64(len(poly)), 10)
		for _, idx := range poly {
			buf = append(buf, ' ')
			buf = strconv.AppendInt(buf, int64(idx), 10)
		}
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return w.Flush()
}

func appendVector(buf []byte, v r3.Vector) []byte {
	buf = strconv.AppendFloat(buf, v.X, 'g', -1, 64)
	buf = append(buf, ' ')
	buf = strconv.AppendFloat(buf, v.Y, 'g', -1, 64)
	buf = append(buf, ' ')
	return strconv.AppendFloat(buf, v.Z, 'g', -1, 64)
}
