package timing

import (
	"math"
	"time"
)

// Point is a screen coordinate in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

const (
	defaultCursorSteps = 25
	maxCursorSteps     = 500
	// perpendicular control-point offset as a fraction of the span
	maxCurveBend = 0.25
)

// CursorPath returns steps+1 points along a cubic Bézier curve from start
// to end, endpoints included. Control points sit at 20–40% and 60–80% of the
// span with a random sideways bend, so the path is never a straight line.
func (m *Model) CursorPath(start, end Point, steps int) []Point {
	if steps <= 0 {
		steps = defaultCursorSteps
	}
	if steps > maxCursorSteps {
		steps = maxCursorSteps
	}

	dx, dy := end.X-start.X, end.Y-start.Y
	dist := math.Hypot(dx, dy)
	// unit normal; arbitrary when the span is degenerate
	nx, ny := 0.0, 1.0
	if dist > 0 {
		nx, ny = -dy/dist, dx/dist
	}
	span := math.Max(dist, 10)

	t1 := between(m.fast, 0.2, 0.4)
	t2 := between(m.fast, 0.6, 0.8)
	b1 := between(m.fast, -maxCurveBend, maxCurveBend) * span
	b2 := between(m.fast, -maxCurveBend, maxCurveBend) * span

	c1 := Point{X: start.X + dx*t1 + nx*b1, Y: start.Y + dy*t1 + ny*b1}
	c2 := Point{X: start.X + dx*t2 + nx*b2, Y: start.Y + dy*t2 + ny*b2}

	path := make([]Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		path = append(path, bezier(start, c1, c2, end, float64(i)/float64(steps)))
	}
	path[0], path[steps] = start, end
	return path
}

// MoveDuration is how long the persona takes to travel from start to end.
func (m *Model) MoveDuration(start, end Point) time.Duration {
	p := m.Persona()
	dist := math.Hypot(end.X-start.X, end.Y-start.Y)
	travel := time.Duration(dist / p.PointerSpeed * float64(time.Second))
	return p.ReactionTime + travel
}

func bezier(p0, p1, p2, p3 Point, t float64) Point {
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}
