// Package srs describes coordinate reference systems and the transformations
// between them.
//
// The math of a coordinate operation is a black box behind the Transformer
// interface. A Factory builds transformers for a pair of CRS descriptors; the
// built-in DefaultFactory covers geographic WGS 84 and Web Mercator, which is
// enough to move data between the two most common web and GPS spaces.
package srs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Common errors returned by this package.
var (
	ErrUnknownCRS      = errors.New("srs: unknown coordinate reference system")
	ErrUnsupportedPair = errors.New("srs: no coordinate operation between systems")
	ErrNotInvertible   = errors.New("srs: transformation is not invertible")
	ErrOutOfDomain     = errors.New("srs: coordinate outside of transformation domain")
)

// Kind classifies a coordinate reference system.
type Kind int

const (
	KindUnknown Kind = iota
	KindGeographic
	KindProjected
	KindEngineering
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindGeographic:
		return "geographic"
	case KindProjected:
		return "projected"
	case KindEngineering:
		return "engineering"
	default:
		return "unknown"
	}
}

// AxisOrder describes how coordinates are stored in data relative to the
// authority definition of the CRS.
type AxisOrder int

const (
	// AxisTraditional stores easting/longitude first, northing/latitude second.
	AxisTraditional AxisOrder = iota

	// AxisAuthority stores axes in the order the authority declares them.
	// For EPSG:4326 this is latitude first.
	AxisAuthority
)

// CRS is a coordinate reference system descriptor.
//
// Two descriptors are equivalent when IsSame reports true. Transform caches use
// pointer identity instead: each distinct *CRS seen on data is a distinct key.
type CRS struct {
	Authority string // Authority name (e.g., "EPSG")
	Code      int    // Authority code (e.g., 4326 for WGS84)
	Name      string // CRS name
	WKT       string // Well-Known Text representation, if known
	Kind      Kind

	// DataAxis is the axis order coordinates are stored in.
	DataAxis AxisOrder

	// authorityNorthFirst is true when the authority declares latitude or
	// northing as the first axis.
	authorityNorthFirst bool
}

// WGS84 returns the geographic WGS 84 CRS (EPSG:4326) in traditional GIS axis order.
func WGS84() *CRS {
	return &CRS{
		Authority:           "EPSG",
		Code:                4326,
		Name:                "WGS 84",
		Kind:                KindGeographic,
		authorityNorthFirst: true,
	}
}

// CRS84 returns the OGC CRS84 definition (longitude, latitude on WGS 84).
func CRS84() *CRS {
	return &CRS{
		Authority: "OGC",
		Code:      84,
		Name:      "WGS 84 (CRS84)",
		Kind:      KindGeographic,
	}
}

// WebMercator returns the WGS 84 / Pseudo-Mercator CRS (EPSG:3857).
func WebMercator() *CRS {
	return &CRS{
		Authority: "EPSG",
		Code:      3857,
		Name:      "WGS 84 / Pseudo-Mercator",
		Kind:      KindProjected,
	}
}

// Parse resolves a user supplied CRS definition.
//
// Accepted forms:
//
//	EPSG:4326
//	4326
//	urn:ogc:def:crs:EPSG::3857
//	WGS84, CRS84, OGC:CRS84
//	EPSG:900913 (alias of 3857)
//
// Codes other than the built-in ones are accepted as opaque descriptors so they
// can still be assigned to output layers; transforming them requires a Factory
// that knows them.
func Parse(def string) (*CRS, error) {
	s := strings.TrimSpace(def)
	if s == "" {
		return nil, fmt.Errorf("%w: empty definition", ErrUnknownCRS)
	}
	upper := strings.ToUpper(s)

	switch upper {
	case "WGS84", "WGS 84":
		return WGS84(), nil
	case "CRS84", "OGC:CRS84", "URN:OGC:DEF:CRS:OGC:1.3:CRS84":
		return CRS84(), nil
	}

	authority := "EPSG"
	code := upper
	switch {
	case strings.HasPrefix(upper, "URN:OGC:DEF:CRS:"):
		parts := strings.Split(upper, ":")
		if len(parts) < 7 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCRS, def)
		}
		authority = parts[4]
		code = parts[len(parts)-1]
	case strings.Contains(upper, ":"):
		idx := strings.Index(upper, ":")
		authority = upper[:idx]
		code = upper[idx+1:]
	}

	n, err := strconv.Atoi(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCRS, def)
	}
	return FromCode(authority, n)
}

// FromCode returns a descriptor for an authority code.
func FromCode(authority string, code int) (*CRS, error) {
	authority = strings.ToUpper(authority)
	if authority == "OGC" && code == 84 {
		return CRS84(), nil
	}
	if authority != "EPSG" {
		return nil, fmt.Errorf("%w: %s:%d", ErrUnknownCRS, authority, code)
	}

	switch code {
	case 4326:
		return WGS84(), nil
	case 3857, 900913, 3785, 102100:
		return WebMercator(), nil
	}

	if code <= 0 {
		return nil, fmt.Errorf("%w: EPSG:%d", ErrUnknownCRS, code)
	}

	// Geographic EPSG codes live in the 4000-4999 range.
	kind := KindProjected
	if code >= 4000 && code < 5000 {
		kind = KindGeographic
	}
	return &CRS{
		Authority:           "EPSG",
		Code:                code,
		Name:                fmt.Sprintf("EPSG:%d", code),
		Kind:                kind,
		authorityNorthFirst: kind == KindGeographic,
	}, nil
}

// IsGeographic reports whether coordinates are longitude/latitude angles.
func (c *CRS) IsGeographic() bool {
	return c != nil && c.Kind == KindGeographic
}

// IsSame reports whether two descriptors define the same coordinate space,
// ignoring the data axis order.
func (c *CRS) IsSame(o *CRS) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c == o {
		return true
	}
	if c.key() == o.key() {
		return true
	}
	if c.WKT != "" && c.WKT == o.WKT {
		return true
	}
	// CRS84 and EPSG:4326 differ only by authority axis order.
	return c.isWGS84Geographic() && o.isWGS84Geographic()
}

// SwapsAxes reports whether stored coordinates are northing/latitude first.
func (c *CRS) SwapsAxes() bool {
	return c != nil && c.DataAxis == AxisAuthority && c.authorityNorthFirst
}

// WithDataAxis returns a copy of the descriptor using the given data axis order.
func (c *CRS) WithDataAxis(order AxisOrder) *CRS {
	cp := *c
	cp.DataAxis = order
	return &cp
}

// String returns the authority code form, e.g. "EPSG:4326".
func (c *CRS) String() string {
	if c == nil {
		return "<none>"
	}
	if c.Authority == "" {
		if c.Name != "" {
			return c.Name
		}
		return "<custom>"
	}
	return c.key()
}

func (c *CRS) key() string {
	return c.Authority + ":" + strconv.Itoa(c.Code)
}

func (c *CRS) isWGS84Geographic() bool {
	return (c.Authority == "EPSG" && c.Code == 4326) || (c.Authority == "OGC" && c.Code == 84)
}

func (c *CRS) isWebMercator() bool {
	return c.Authority == "EPSG" && c.Code == 3857
}
