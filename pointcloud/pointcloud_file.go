package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/meshprune/logging"
	"go.viam.com/meshprune/meshio"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

// float64 represents integers exactly only within this range.
const (
	maxPreciseFloat64 = float64(1 << 53)
	minPreciseFloat64 = -maxPreciseFloat64
)

// NewFromFile returns the points read in from the given file, choosing the reader
// from the file extension.
func NewFromFile(fn string, logger logging.Logger) ([]r3.Vector, error) {
	ext := strings.ToLower(filepath.Ext(fn))
	if ext == ".las" {
		return NewFromLASFile(fn, logger)
	}

	var read func(io.Reader) ([]r3.Vector, error)
	switch ext {
	case ".pcd":
		read = ReadPCD
	case ".xyz", ".txt":
		read = ReadXYZ
	case ".ply":
		read = readPLYPoints
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}

	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	pts, err := read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", fn)
	}
	return pts, nil
}

func readPLYPoints(in io.Reader) ([]r3.Vector, error) {
	m, err := meshio.ReadPLY(in)
	if err != nil {
		return nil, err
	}
	return m.Vertices, nil
}

// NewFromLASFile returns the points of a LAS file. If any lossiness of points could occur
// from reading it in, it's reported but is not an error.
func NewFromLASFile(fn string, logger logging.Logger) ([]r3.Vector, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	pts := make([]r3.Vector, 0, lf.Header.NumberPoints)
	var imprecise int
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, errors.Wrapf(err, "reading LAS point %d", i)
		}
		data := p.PointData()

		x, y, z := data.X, data.Y, data.Z
		if x < minPreciseFloat64 || x > maxPreciseFloat64 ||
			y < minPreciseFloat64 || y > maxPreciseFloat64 ||
			z < minPreciseFloat64 || z > maxPreciseFloat64 {
			imprecise++
		}
		pts = append(pts, r3.Vector{X: x, Y: y, Z: z})
	}
	if imprecise > 0 && logger != nil {
		logger.Warnw("potential floating point lossiness for LAS points",
			"count", imprecise, "range", fmt.Sprintf("[%f,%f]", minPreciseFloat64, maxPreciseFloat64))
	}
	return pts, nil
}

// WriteToLASFile writes the points out to a LAS file.
func WriteToLASFile(pts []r3.Vector, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	if err = lf.AddHeader(lidario.LasHeader{PointFormatID: 0}); err != nil {
		return
	}
	for _, p := range pts {
		pr0 := &lidario.PointRecord0{
			X: p.X,
			Y: p.Y,
			Z: p.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			PointSourceID: 1,
		}
		if err = lf.AddLasPoint(pr0); err != nil {
			return
		}
	}
	return
}

// ReadXYZ reads whitespace separated "x y z" lines. Columns past the third are ignored;
// blank lines and lines starting with '#' are skipped.
func ReadXYZ(in io.Reader) ([]r3.Vector, error) {
	scanner := bufio.NewScanner(in)
	var pts []r3.Vector
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		})
		if len(tokens) < 3 {
			return nil, errors.Errorf("line %d: expected at least 3 columns, got %d", lineNum, len(tokens))
		}
		var coords [3]float64
		for i := range coords {
			f, err := strconv.ParseFloat(tokens[i], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNum)
			}
			coords[i] = f
		}
		pts = append(pts, r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pts, nil
}

// WritePCD writes the points as an unorganized x y z cloud.
func WritePCD(out io.Writer, pts []r3.Vector, outputType PCDType) error {
	var data string
	switch outputType {
	case PCDAscii:
		data = "ascii"
	case PCDBinary:
		data = "binary"
	case PCDCompressed:
		return errors.New("compressed PCD not yet implemented")
	default:
		return errors.Errorf("unknown pcd type %d", outputType)
	}

	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "VERSION .7\n"+
		"FIELDS x y z\n"+
		"SIZE 4 4 4\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n", len(pts), len(pts), data); err != nil {
		return err
	}

	buf := make([]byte, 12)
	for _, p := range pts {
		var err error
		switch outputType {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(p.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(p.Z)))
			_, err = w.Write(buf)
		default:
			_, err = fmt.Fprintf(w, "%g %g %g\n", float32(p.X), float32(p.Y), float32(p.Z))
		}
		if err != nil {
			return err
		}
	}
	return w.Flush()
}

type pcdField struct {
	name  string
	size  int
	type_ string
	count int
}

type pcdHeader struct {
	fields    []pcdField
	width     uint64
	height    uint64
	viewpoint [7]float64
	points    uint64
	data      PCDType
}

// pointStride is the byte length of one binary point record.
func (h *pcdHeader) pointStride() int {
	var stride int
	for _, f := range h.fields {
		stride += f.size * f.count
	}
	return stride
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	value = strings.TrimSpace(value)
	tokens := strings.Fields(value)
	if field != name {
		return fmt.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return fmt.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		if len(tokens) < 3 || tokens[0] != "x" || tokens[1] != "y" || tokens[2] != "z" {
			return fmt.Errorf("unsupported pcd fields %s, need x y z first", value)
		}
		header.fields = make([]pcdField, len(tokens))
		for i, token := range tokens {
			header.fields[i] = pcdField{name: token, count: 1}
		}
	case "SIZE":
		if len(tokens) != len(header.fields) {
			return fmt.Errorf("unexpected number of fields in SIZE line")
		}
		for i, token := range tokens {
			size, err := strconv.Atoi(token)
			if err != nil || (size != 1 && size != 2 && size != 4 && size != 8) {
				return fmt.Errorf("invalid SIZE field %s", token)
			}
			header.fields[i].size = size
		}
	case "TYPE":
		if len(tokens) != len(header.fields) {
			return fmt.Errorf("unexpected number of fields in TYPE line")
		}
		for i, token := range tokens {
			if token != "F" && token != "I" && token != "U" {
				return fmt.Errorf("invalid TYPE field %s", token)
			}
			header.fields[i].type_ = token
		}
		for _, f := range header.fields[:3] {
			if f.type_ != "F" || (f.size != 4 && f.size != 8) {
				return fmt.Errorf("field %s must be F4 or F8, got %s%d", f.name, f.type_, f.size)
			}
		}
	case "COUNT":
		if len(tokens) != len(header.fields) {
			return fmt.Errorf("unexpected number of fields in COUNT line")
		}
		for i, token := range tokens {
			count, err := strconv.Atoi(token)
			if err != nil || count < 1 {
				return fmt.Errorf("invalid COUNT field %s", token)
			}
			header.fields[i].count = count
		}
		for _, f := range header.fields[:3] {
			if f.count != 1 {
				return fmt.Errorf("field %s must have COUNT 1, got %d", f.name, f.count)
			}
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid WIDTH field %s: %w", value, err)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid HEIGHT field %s: %w", value, err)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return fmt.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		for i, token := range tokens {
			header.viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return fmt.Errorf("invalid VIEWPOINT field %s: %w", token, err)
			}
		}
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid POINTS field %s: %w", value, err)
		}
		if points != header.width*header.height {
			return fmt.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, header.width*header.height)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return fmt.Errorf("unsupported pcd data type %s", value)
		}
	}

	return nil
}

// ReadPCD reads the x y z positions of a PCD stream. Header lines must appear in the
// standard order; fields after z are skipped.
func ReadPCD(inRaw io.Reader) ([]r3.Vector, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("error reading header line %d: %w", headerLineCount, err)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header)
	case PCDBinary:
		return readPCDBinary(in, header)
	default:
		return nil, errors.New("compressed pcd not yet supported")
	}
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) ([]r3.Vector, error) {
	var columns int
	for _, f := range header.fields {
		columns += f.count
	}

	pts := make([]r3.Vector, 0, header.points)
	for i := 0; i < int(header.points); i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, fmt.Errorf("reading point %d: %w", i, err)
		}
		tokens := strings.Fields(line)
		if len(tokens) != columns {
			return nil, fmt.Errorf("unexpected number of fields in point %d", i)
		}
		var coords [3]float64
		for j := range coords {
			coords[j], err = strconv.ParseFloat(tokens[j], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid point %d field %s: %w", i, tokens[j], err)
			}
		}
		pts = append(pts, r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]})
	}
	return pts, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) ([]r3.Vector, error) {
	buf := make([]byte, header.pointStride())
	pts := make([]r3.Vector, 0, header.points)
	for i := 0; i < int(header.points); i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, fmt.Errorf("reading point %d: %w", i, err)
		}
		var coords [3]float64
		offset := 0
		for j := range coords {
			switch header.fields[j].size {
			case 8:
				coords[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf[offset:]))
			default:
				coords[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[offset:])))
			}
			offset += header.fields[j].size
		}
		pts = append(pts, r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]})
	}
	return pts, nil
}
