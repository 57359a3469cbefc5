package geom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// EWKB flag bits accepted on input.
const (
	ewkbZ    = 0x80000000
	ewkbM    = 0x40000000
	ewkbSRID = 0x20000000
)

// MarshalWKB encodes g as little-endian ISO WKB. Empty points are written
// with NaN ordinates.
func MarshalWKB(g *Geometry) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeWKB(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeWKB(w *bytes.Buffer, g *Geometry) error {
	w.WriteByte(1)
	writeUint32(w, uint32(g.Type))

	switch g.Flat() {
	case Point:
		c := Coord{X: math.NaN(), Y: math.NaN(), Z: math.NaN(), M: math.NaN()}
		if len(g.Coords) > 0 {
			c = g.Coords[0]
		}
		writeCoord(w, c, g.HasZ(), g.HasM())
	case LineString, CircularString:
		writeCoords(w, g.Coords, g.HasZ(), g.HasM())
	case Polygon:
		writeUint32(w, uint32(len(g.Parts)))
		for _, r := range g.Parts {
			writeCoords(w, r.Coords, g.HasZ(), g.HasM())
		}
	case MultiPoint, MultiLineString, MultiPolygon, GeometryCollection,
		CompoundCurve, CurvePolygon, MultiCurve, MultiSurface:
		writeUint32(w, uint32(len(g.Parts)))
		for _, p := range g.Parts {
			if err := writeWKB(w, p); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedType, g.Type)
	}
	return nil
}

func writeUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeFloat(w *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.Write(b[:])
}

func writeCoord(w *bytes.Buffer, c Coord, z, m bool) {
	writeFloat(w, c.X)
	writeFloat(w, c.Y)
	if z {
		writeFloat(w, c.Z)
	}
	if m {
		writeFloat(w, c.M)
	}
}

func writeCoords(w *bytes.Buffer, coords []Coord, z, m bool) {
	writeUint32(w, uint32(len(coords)))
	for _, c := range coords {
		writeCoord(w, c, z, m)
	}
}

// UnmarshalWKB decodes ISO WKB, also accepting PostGIS EWKB flags. An EWKB
// SRID is skipped.
func UnmarshalWKB(data []byte) (*Geometry, error) {
	r := &wkbReader{data: data}
	g, err := r.geometry(0)
	if err != nil {
		return nil, err
	}
	return g, nil
}

type wkbReader struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

const maxWKBDepth = 32

func (r *wkbReader) read(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWKB, io.ErrUnexpectedEOF)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *wkbReader) uint32() (uint32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *wkbReader) float() (float64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(r.order.Uint64(b)), nil
}

func (r *wkbReader) count() (int, error) {
	n, err := r.uint32()
	if err != nil {
		return 0, err
	}
	// every element needs at least 8 bytes
	if int(n) > (len(r.data)-r.pos)/8+1 {
		return 0, fmt.Errorf("%w: count %d exceeds data", ErrInvalidWKB, n)
	}
	return int(n), nil
}

func (r *wkbReader) geometry(depth int) (*Geometry, error) {
	if depth > maxWKBDepth {
		return nil, fmt.Errorf("%w: nesting too deep", ErrInvalidWKB)
	}
	bo, err := r.read(1)
	if err != nil {
		return nil, err
	}
	switch bo[0] {
	case 0:
		r.order = binary.BigEndian
	case 1:
		r.order = binary.LittleEndian
	default:
		return nil, fmt.Errorf("%w: byte order %d", ErrInvalidWKB, bo[0])
	}

	code, err := r.uint32()
	if err != nil {
		return nil, err
	}
	z := code&ewkbZ != 0
	m := code&ewkbM != 0
	if code&ewkbSRID != 0 {
		if _, err := r.uint32(); err != nil {
			return nil, err
		}
	}
	code &^= ewkbZ | ewkbM | ewkbSRID
	t := Type(code)
	if t.Flat() > MultiSurface || t.Flat() == Unknown || code >= 4000 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedType, code)
	}
	t = compose(t.Flat(), z || t.HasZ(), m || t.HasM())
	g := &Geometry{Type: t}

	switch t.Flat() {
	case Point:
		c, err := r.coord(t.HasZ(), t.HasM())
		if err != nil {
			return nil, err
		}
		if !(math.IsNaN(c.X) && math.IsNaN(c.Y)) {
			g.Coords = []Coord{c}
		}
	case LineString, CircularString:
		if g.Coords, err = r.coords(t.HasZ(), t.HasM()); err != nil {
			return nil, err
		}
	case Polygon:
		n, err := r.count()
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			coords, err := r.coords(t.HasZ(), t.HasM())
			if err != nil {
				return nil, err
			}
			g.Parts = append(g.Parts, &Geometry{Type: LineString.WithLayout(t), Coords: coords})
		}
	default:
		n, err := r.count()
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			p, err := r.geometry(depth + 1)
			if err != nil {
				return nil, err
			}
			p.setLayout(t.HasZ(), t.HasM())
			g.Parts = append(g.Parts, p)
		}
	}
	return g, nil
}

func (r *wkbReader) coord(z, m bool) (Coord, error) {
	var c Coord
	var err error
	if c.X, err = r.float(); err != nil {
		return c, err
	}
	if c.Y, err = r.float(); err != nil {
		return c, err
	}
	if z {
		if c.Z, err = r.float(); err != nil {
			return c, err
		}
	}
	if m {
		if c.M, err = r.float(); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (r *wkbReader) coords(z, m bool) ([]Coord, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	out := make([]Coord, n)
	for i := range out {
		if out[i], err = r.coord(z, m); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// String returns the geometry as ISO WKT, e.g. "POINT Z (1 2 3)".
func (g *Geometry) String() string {
	if g == nil {
		return "<nil>"
	}
	var b strings.Builder
	writeWKT(&b, g, true)
	return b.String()
}

func writeWKT(b *strings.Builder, g *Geometry, tagged bool) {
	if tagged {
		b.WriteString(g.Type.String())
		b.WriteByte(' ')
	}
	if g.IsEmpty() {
		b.WriteString("EMPTY")
		return
	}

	switch g.Flat() {
	case Point, LineString, CircularString:
		writeWKTCoords(b, g, g.Coords)
	case Polygon:
		b.WriteByte('(')
		for i, r := range g.Parts {
			if i > 0 {
				b.WriteByte(',')
			}
			writeWKTCoords(b, g, r.Coords)
		}
		b.WriteByte(')')
	default:
		b.WriteByte('(')
		// members of plain multi types are untagged; curve containers tag
		// every non-LineString member
		plain := g.Flat() == MultiPoint || g.Flat() == MultiLineString || g.Flat() == MultiPolygon
		for i, p := range g.Parts {
			if i > 0 {
				b.WriteByte(',')
			}
			switch {
			case g.Flat() == GeometryCollection:
				writeWKT(b, p, true)
			case plain, p.Flat() == LineString || p.Flat() == Polygon:
				writeWKT(b, p, false)
			default:
				writeWKT(b, p, true)
			}
		}
		b.WriteByte(')')
	}
}

func writeWKTCoords(b *strings.Builder, g *Geometry, coords []Coord) {
	b.WriteByte('(')
	for i, c := range coords {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(formatOrdinate(c.X))
		b.WriteByte(' ')
		b.WriteString(formatOrdinate(c.Y))
		if g.HasZ() {
			b.WriteByte(' ')
			b.WriteString(formatOrdinate(c.Z))
		}
		if g.HasM() {
			b.WriteByte(' ')
			b.WriteString(formatOrdinate(c.M))
		}
	}
	b.WriteByte(')')
}

func formatOrdinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
