// Package grid defines the regular latitude/longitude grid that assembled
// meteorological fields are produced on.
package grid

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// Grid is a regular lon/lat output grid defined by its SW and NE corners
// and the cell size along each axis.
type Grid struct {
	xll, yll float64
	xur, yur float64
	dx, dy   float64
	x, y     []float64
}

// New constructs a grid. Swapped corners are canonicalized so the first
// corner is always the southwest one. The grid must have at least three
// points along each axis.
func New(xll, yll, xur, yur, dx, dy float64) (*Grid, error) {
	if xll > xur {
		xll, xur = xur, xll
	}
	if yll > yur {
		yll, yur = yur, yll
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("grid resolution must be positive, got dx=%g dy=%g", dx, dy)
	}

	g := &Grid{xll: xll, yll: yll, xur: xur, yur: yur, dx: dx, dy: dy}
	g.x = arange(xll, xur, dx)
	g.y = arange(yll, yur, dy)

	if len(g.x) < 3 || len(g.y) < 3 {
		return nil, fmt.Errorf("grid must have at least 3 points per axis, got %dx%d", len(g.x), len(g.y))
	}
	return g, nil
}

// arange includes the end point when it lands on the step, matching the
// half-open range extended by one step.
func arange(start, end, step float64) []float64 {
	var out []float64
	for v := start; v <= end+step/2; v += step {
		out = append(out, v)
	}
	return out
}

// NX returns the number of points along the longitude axis.
func (g *Grid) NX() int { return len(g.x) }

// NY returns the number of points along the latitude axis.
func (g *Grid) NY() int { return len(g.y) }

// N returns the total number of grid points.
func (g *Grid) N() int { return len(g.x) * len(g.y) }

// X returns the longitude of column i.
func (g *Grid) X(i int) float64 { return g.x[i] }

// Y returns the latitude of row j.
func (g *Grid) Y(j int) float64 { return g.y[j] }

// XColumn returns the longitude axis. With convert360 set, longitudes are
// reported on the [0, 360) circle.
func (g *Grid) XColumn(convert360 bool) []float64 {
	out := make([]float64, len(g.x))
	for i, v := range g.x {
		if convert360 && v < 0 {
			v += 360.0
		}
		out[i] = v
	}
	return out
}

// YColumn returns the latitude axis.
func (g *Grid) YColumn() []float64 {
	out := make([]float64, len(g.y))
	copy(out, g.y)
	return out
}

// XLowerLeft returns the SW corner longitude.
func (g *Grid) XLowerLeft() float64 { return g.xll }

// YLowerLeft returns the SW corner latitude.
func (g *Grid) YLowerLeft() float64 { return g.yll }

// XRes returns the longitude cell size.
func (g *Grid) XRes() float64 { return g.dx }

// YRes returns the latitude cell size.
func (g *Grid) YRes() float64 { return g.dy }

// Corner returns the lower-left corner of cell (i, j).
func (g *Grid) Corner(i, j int) geom.Point {
	return geom.Point{X: g.x[i], Y: g.y[j]}
}

// Center returns the midpoint of cell (i, j).
func (g *Grid) Center(i, j int) geom.Point {
	return geom.Point{X: g.x[i] + g.dx/2, Y: g.y[j] + g.dy/2}
}

// IndexOf returns the cell whose corner is nearest (x, y), so that
// IndexOf(Corner(i, j)) round-trips to (i, j). The result is not bounds
// checked; callers hold points outside the grid themselves.
func (g *Grid) IndexOf(x, y float64) (int, int) {
	i := int(math.Round((x - g.xll) / g.dx))
	j := int(math.Round((y - g.yll) / g.dy))
	return i, j
}

// Polygon returns the grid's outline.
func (g *Grid) Polygon() geom.Polygon {
	return geom.Polygon{{
		{X: g.xll, Y: g.yll},
		{X: g.xur, Y: g.yll},
		{X: g.xur, Y: g.yur},
		{X: g.xll, Y: g.yur},
	}}
}

// Bounds returns the grid's bounding box.
func (g *Grid) Bounds() *geom.Bounds {
	return g.Polygon().Bounds()
}

// PointInside reports whether a point falls inside the grid outline.
func (g *Grid) PointInside(p geom.Point) bool {
	return p.X >= g.xll && p.X <= g.xur && p.Y >= g.yll && p.Y <= g.yur
}
