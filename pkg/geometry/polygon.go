package geometry

import "math"

// Corners returns the rectangle's corners in winding order: top-left,
// top-right, bottom-right, bottom-left.
func (r Rect) Corners() []Point2D {
	return []Point2D{
		{X: r.X, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y + r.Height},
		{X: r.X, Y: r.Y + r.Height},
	}
}

// RotatedCorners returns the corners of r rotated clockwise by degrees
// about its centre, in the same winding order as Corners.
func RotatedCorners(r Rect, degrees float64) []Point2D {
	pts := r.Corners()
	if degrees == 0 {
		return pts
	}
	sin, cos := math.Sincos(degrees * math.Pi / 180)
	c := r.Center()
	for i, p := range pts {
		dx, dy := p.X-c.X, p.Y-c.Y
		pts[i] = Point2D{
			X: c.X + dx*cos - dy*sin,
			Y: c.Y + dx*sin + dy*cos,
		}
	}
	return pts
}

// PolygonBounds returns the axis-aligned box enclosing polygon.
func PolygonBounds(polygon []Point2D) Rect {
	if len(polygon) == 0 {
		return Rect{}
	}
	minX, minY := polygon[0].X, polygon[0].Y
	maxX, maxY := minX, minY
	for _, p := range polygon[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return NewRect(minX, minY, maxX-minX, maxY-minY)
}

// IntersectPolygons computes the intersection of two convex polygons using
// the Sutherland-Hodgman algorithm. Both input polygons must be convex
// and wound like Rect.Corners.
// Returns nil if there is no intersection or if inputs are invalid.
func IntersectPolygons(subject, clip []Point2D) []Point2D {
	if len(subject) < 3 || len(clip) < 3 {
		return nil
	}

	output := make([]Point2D, len(subject))
	copy(output, subject)

	// Clip against each edge of the clip polygon
	for i := 0; i < len(clip); i++ {
		if len(output) == 0 {
			return nil
		}
		output = clipPolygonByEdge(output, clip[i], clip[(i+1)%len(clip)])
	}

	if len(output) < 3 {
		return nil
	}
	return output
}

// clipPolygonByEdge clips a polygon against a single edge.
func clipPolygonByEdge(polygon []Point2D, edgeStart, edgeEnd Point2D) []Point2D {
	var clipped []Point2D

	for i := 0; i < len(polygon); i++ {
		current := polygon[i]
		next := polygon[(i+1)%len(polygon)]

		currentInside := isInsideEdge(current, edgeStart, edgeEnd)
		nextInside := isInsideEdge(next, edgeStart, edgeEnd)

		if currentInside {
			clipped = append(clipped, current)
			if !nextInside {
				// Exiting
				if p, ok := lineIntersection(current, next, edgeStart, edgeEnd); ok {
					clipped = append(clipped, p)
				}
			}
		} else if nextInside {
			// Entering
			if p, ok := lineIntersection(current, next, edgeStart, edgeEnd); ok {
				clipped = append(clipped, p)
			}
		}
	}
	return clipped
}

// isInsideEdge checks if a point is on the inner side of the directed
// edge for polygons wound like Rect.Corners.
func isInsideEdge(p, edgeStart, edgeEnd Point2D) bool {
	return (edgeEnd.X-edgeStart.X)*(p.Y-edgeStart.Y)-
		(edgeEnd.Y-edgeStart.Y)*(p.X-edgeStart.X) >= 0
}

// lineIntersection returns where line p1-p2 crosses line e1-e2.
func lineIntersection(p1, p2, e1, e2 Point2D) (Point2D, bool) {
	denom := (p1.X-p2.X)*(e1.Y-e2.Y) - (p1.Y-p2.Y)*(e1.X-e2.X)
	if math.Abs(denom) < 1e-10 {
		// Parallel
		return Point2D{}, false
	}
	t := ((p1.X-e1.X)*(e1.Y-e2.Y) - (p1.Y-e1.Y)*(e1.X-e2.X)) / denom
	return Point2D{
		X: p1.X + t*(p2.X-p1.X),
		Y: p1.Y + t*(p2.Y-p1.Y),
	}, true
}

// PointInPolygon tests if a point is inside a polygon using ray casting.
func PointInPolygon(p Point2D, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)
	for i := 0; i < n; i++ {
		pi, pj := polygon[i], polygon[(i+1)%n]
		// Ray from p going right crosses edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}
	return inside
}

// PolygonArea returns the unsigned area of a simple polygon.
func PolygonArea(polygon []Point2D) float64 {
	var sum float64
	n := len(polygon)
	for i := 0; i < n; i++ {
		a, b := polygon[i], polygon[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(sum) / 2
}

// Overlaps reports whether two convex polygons share a region of
// positive area. Polygons that only touch do not overlap.
func Overlaps(a, b []Point2D) bool {
	return PolygonArea(IntersectPolygons(a, b)) > 1e-9
}
