package resolve

import "github.com/civicproof/boundary-registry/internal/domain/boundary"

// Contains reports whether p lies inside the boundary's geometry: inside any
// constituent polygon's outer ring and not inside one of that polygon's
// holes.
func Contains(g *boundary.Geometry, p boundary.Point) bool {
	for _, poly := range g.Polygons {
		if pointInPolygon(p, poly) {
			return true
		}
	}
	return false
}

// pointInPolygon applies the even-odd rule: a hit on the outer ring counts
// only when the point is not inside any hole ring.
func pointInPolygon(p boundary.Point, poly boundary.Polygon) bool {
	if len(poly.Rings) == 0 {
		return false
	}
	if !pointInRing(p, poly.Rings[0]) {
		return false
	}
	for i := 1; i < len(poly.Rings); i++ {
		if pointInRing(p, poly.Rings[i]) {
			return false
		}
	}
	return true
}

// pointInRing ray-casts from p toward +longitude and counts edge crossings.
// The epsilon guards the division when an edge is nearly horizontal.
func pointInRing(p boundary.Point, ring boundary.Ring) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x, y := p.Lon, p.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi+1e-12)+xi {
			inside = !inside
		}
	}
	return inside
}
