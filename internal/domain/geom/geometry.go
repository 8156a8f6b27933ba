// internal/domain/geom/geometry.go

package geom

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidGeometry is returned when an input ring cannot be used for
// spatial queries.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Point is a single lng/lat coordinate pair.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Polygon is a single closed ring of coordinates. The first and last point
// must coincide and the ring must enclose a non-zero area.
type Polygon []Point

// Region is a set of rings treated as their geometric union. It is the shape
// of a coverage remainder, which may come back from the spatial engine as a
// MultiPolygon.
type Region []Polygon

// Validate checks that the ring is usable: at least four points, explicitly
// closed, and with non-zero planar area.
func (p Polygon) Validate() error {
	if len(p) < 4 {
		return fmt.Errorf("%w: ring has %d points, need at least 4", ErrInvalidGeometry, len(p))
	}

	first := p[0]
	last := p[len(p)-1]
	if first.Lng != last.Lng || first.Lat != last.Lat {
		return fmt.Errorf("%w: ring is not closed", ErrInvalidGeometry)
	}

	if p.area() == 0 {
		return fmt.Errorf("%w: ring has zero area", ErrInvalidGeometry)
	}

	return nil
}

// area computes the absolute shoelace area of the ring in square degrees.
// Only used to reject degenerate rings, so planar math is sufficient.
func (p Polygon) area() float64 {
	var sum float64
	for i := 0; i < len(p)-1; i++ {
		sum += p[i].Lng*p[i+1].Lat - p[i+1].Lng*p[i].Lat
	}
	return math.Abs(sum / 2)
}

// WKT renders the ring as a PostGIS POLYGON literal.
func (p Polygon) WKT() string {
	var b strings.Builder
	b.WriteString("POLYGON((")
	writeRing(&b, p)
	b.WriteString("))")
	return b.String()
}

// WKT renders the region as a POLYGON or MULTIPOLYGON literal depending on
// how many rings it holds.
func (r Region) WKT() string {
	if len(r) == 0 {
		return "MULTIPOLYGON EMPTY"
	}
	if len(r) == 1 {
		return r[0].WKT()
	}

	var b strings.Builder
	b.WriteString("MULTIPOLYGON(")
	for i, ring := range r {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("((")
		writeRing(&b, ring)
		b.WriteString("))")
	}
	b.WriteString(")")
	return b.String()
}

// Empty reports whether the region contains no rings.
func (r Region) Empty() bool {
	return len(r) == 0
}

func writeRing(b *strings.Builder, ring Polygon) {
	for i, pt := range ring {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(pt.Lng, 'f', -1, 64))
		b.WriteString(" ")
		b.WriteString(strconv.FormatFloat(pt.Lat, 'f', -1, 64))
	}
}

// geoJSONGeometry mirrors the subset of GeoJSON that ST_AsGeoJSON produces
// for polygonal results.
type geoJSONGeometry struct {
	Type        string            `json:"type"`
	Coordinates json.RawMessage   `json:"coordinates"`
	Geometries  []geoJSONGeometry `json:"geometries"`
}

// ParseGeoJSON decodes a Polygon or MultiPolygon produced by the spatial
// engine into a Region. Interior rings (holes) are dropped: for cache
// coverage a hole only means a slice of geography gets re-fetched, which is
// the conservative direction. An empty geometry decodes to an empty Region.
func ParseGeoJSON(data []byte) (Region, error) {
	var g geoJSONGeometry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	return regionFromGeometry(g)
}

func regionFromGeometry(g geoJSONGeometry) (Region, error) {
	switch g.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		if len(rings) == 0 {
			return Region{}, nil
		}
		ring, err := ringFromCoords(rings[0])
		if err != nil {
			return nil, err
		}
		return Region{ring}, nil

	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		region := Region{}
		for _, rings := range polys {
			if len(rings) == 0 {
				continue
			}
			ring, err := ringFromCoords(rings[0])
			if err != nil {
				return nil, err
			}
			region = append(region, ring)
		}
		return region, nil

	case "GeometryCollection":
		// ST_Difference returns an empty collection when nothing remains.
		region := Region{}
		for _, sub := range g.Geometries {
			part, err := regionFromGeometry(sub)
			if err != nil {
				return nil, err
			}
			region = append(region, part...)
		}
		return region, nil

	default:
		return nil, fmt.Errorf("%w: unsupported geometry type %q", ErrInvalidGeometry, g.Type)
	}
}

func ringFromCoords(coords [][]float64) (Polygon, error) {
	ring := make(Polygon, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("%w: coordinate with %d values", ErrInvalidGeometry, len(c))
		}
		ring = append(ring, Point{Lng: c[0], Lat: c[1]})
	}
	return ring, nil
}
