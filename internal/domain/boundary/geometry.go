package boundary

import "fmt"

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// InRange reports whether the coordinate is a legal WGS84 position.
func (p Point) InRange() bool {
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// BBox is an axis-aligned bound over a geometry, used for cheap rejection
// before an exact point-in-polygon test.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Contains reports whether p falls inside the box (inclusive).
func (b BBox) Contains(p Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Ring is a sequence of vertices. A closing vertex equal to the first is
// accepted but not required.
type Ring []Point

// SignedArea returns twice the shoelace area of the ring. Positive means
// counterclockwise winding (an outer ring under the right-hand rule),
// negative means clockwise (a hole).
func (r Ring) SignedArea() float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += r[i].Lon*r[j].Lat - r[j].Lon*r[i].Lat
	}
	return sum
}

// Polygon is a set of rings in GeoJSON convention: ring 0 is the outer
// ring, every subsequent ring is a hole.
type Polygon struct {
	Rings []Ring `json:"rings"`
}

// Geometry is a boundary with its full shape: metadata plus one or more
// polygons (a multipolygon when len > 1) and a tight bounding box computed
// at construction.
type Geometry struct {
	Metadata Metadata  `json:"metadata"`
	Polygons []Polygon `json:"polygons"`
	BBox     BBox      `json:"bbox"`
}

// NewGeometry validates metadata and shape, computes the bounding box, and
// returns a geometry the caller must treat as immutable.
func NewGeometry(md Metadata, polygons []Polygon) (*Geometry, error) {
	if err := ValidateMetadata(md); err != nil {
		return nil, &ValidationError{BoundaryID: md.ID, Err: err}
	}
	if err := validatePolygons(polygons); err != nil {
		return nil, &ValidationError{BoundaryID: md.ID, Err: err}
	}
	return &Geometry{
		Metadata: md,
		Polygons: polygons,
		BBox:     computeBBox(polygons),
	}, nil
}

// Validate re-runs construction-time checks. Useful for geometries decoded
// from external payloads rather than built through NewGeometry.
func (g *Geometry) Validate() error {
	if err := ValidateMetadata(g.Metadata); err != nil {
		return &ValidationError{BoundaryID: g.Metadata.ID, Err: err}
	}
	if err := validatePolygons(g.Polygons); err != nil {
		return &ValidationError{BoundaryID: g.Metadata.ID, Err: err}
	}
	want := computeBBox(g.Polygons)
	if g.BBox != want {
		return &ValidationError{BoundaryID: g.Metadata.ID, Err: fmt.Errorf("%w: got %+v want %+v", ErrLooseBBox, g.BBox, want)}
	}
	return nil
}

func computeBBox(polygons []Polygon) BBox {
	b := BBox{MinLon: 180, MinLat: 90, MaxLon: -180, MaxLat: -90}
	for _, poly := range polygons {
		for _, ring := range poly.Rings {
			for _, pt := range ring {
				if pt.Lon < b.MinLon {
					b.MinLon = pt.Lon
				}
				if pt.Lat < b.MinLat {
					b.MinLat = pt.Lat
				}
				if pt.Lon > b.MaxLon {
					b.MaxLon = pt.Lon
				}
				if pt.Lat > b.MaxLat {
					b.MaxLat = pt.Lat
				}
			}
		}
	}
	return b
}
