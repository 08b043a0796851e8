// Package triangulation builds a Delaunay triangulation over scattered
// source points and interpolates values from them with barycentric weights.
// Triangulations are built in a projected plane; callers project both the
// source and target points before use.
package triangulation

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
)

// Triangulation is an immutable triangulation of a point set.
type Triangulation struct {
	points    []geom.Point
	triangles [][3]int
	index     *rtree.Rtree
}

type triEntry struct {
	idx    int
	bounds *geom.Bounds
}

func (t *triEntry) Bounds() *geom.Bounds { return t.bounds }

// The remaining geom.Geom methods exist only to satisfy the rtree's
// interface; the index uses Bounds alone.
func (t *triEntry) Similar(geom.Geom, float64) bool             { return false }
func (t *triEntry) Transform(proj.Transformer) (geom.Geom, error) { return t, nil }
func (t *triEntry) Len() int                                    { return 0 }
func (t *triEntry) Points() func() geom.Point                   { return func() geom.Point { return geom.Point{} } }

// New triangulates the given points.
func New(points []geom.Point) (*Triangulation, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("need at least 3 points to triangulate, got %d", len(points))
	}

	tris := delaunay(points)
	if len(tris) == 0 {
		return nil, fmt.Errorf("degenerate point set, no triangles produced")
	}

	t := &Triangulation{
		points:    points,
		triangles: tris,
		index:     rtree.NewTree(25, 50),
	}
	for i, tri := range tris {
		b := geom.NewBounds()
		for _, v := range tri {
			b.Extend(points[v].Bounds())
		}
		t.index.Insert(&triEntry{idx: i, bounds: b})
	}
	return t, nil
}

// Matches reports whether the triangulation was built over exactly these
// points, allowing interpolation weights to be reused between snapshots.
func (t *Triangulation) Matches(points []geom.Point) bool {
	if len(points) != len(t.points) {
		return false
	}
	for i, p := range points {
		if p != t.points[i] {
			return false
		}
	}
	return true
}

// NumTriangles returns the triangle count.
func (t *Triangulation) NumTriangles() int { return len(t.triangles) }

// WeightSet holds precomputed barycentric weights for a set of target
// points. Targets outside the triangulation carry a negative triangle index.
type WeightSet struct {
	triangle []int
	weights  [][3]float64
}

// Len returns the number of target points the weights cover.
func (w *WeightSet) Len() int { return len(w.triangle) }

// Weights locates each target point and precomputes its barycentric weights.
func (t *Triangulation) Weights(targets []geom.Point) *WeightSet {
	w := &WeightSet{
		triangle: make([]int, len(targets)),
		weights:  make([][3]float64, len(targets)),
	}
	for i, p := range targets {
		w.triangle[i] = -1
		pb := p.Bounds()
		for _, item := range t.index.SearchIntersect(pb) {
			ti := item.(*triEntry).idx
			if w0, w1, w2, ok := t.barycentric(ti, p); ok {
				w.triangle[i] = ti
				w.weights[i] = [3]float64{w0, w1, w2}
				break
			}
		}
	}
	return w
}

// Interpolate evaluates the source values at each weighted target point.
// Targets outside the triangulation get NaN.
func (t *Triangulation) Interpolate(w *WeightSet, z []float64) ([]float64, error) {
	if len(z) != len(t.points) {
		return nil, fmt.Errorf("have %d values for %d points", len(z), len(t.points))
	}
	out := make([]float64, w.Len())
	for i := range out {
		ti := w.triangle[i]
		if ti < 0 {
			out[i] = math.NaN()
			continue
		}
		tri := t.triangles[ti]
		wt := w.weights[i]
		out[i] = wt[0]*z[tri[0]] + wt[1]*z[tri[1]] + wt[2]*z[tri[2]]
	}
	return out, nil
}

const insideTol = 1e-10

func (t *Triangulation) barycentric(ti int, p geom.Point) (w0, w1, w2 float64, inside bool) {
	tri := t.triangles[ti]
	a, b, c := t.points[tri[0]], t.points[tri[1]], t.points[tri[2]]

	det := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if det == 0 {
		return 0, 0, 0, false
	}
	w0 = ((b.Y-c.Y)*(p.X-c.X) + (c.X-b.X)*(p.Y-c.Y)) / det
	w1 = ((c.Y-a.Y)*(p.X-c.X) + (a.X-c.X)*(p.Y-c.Y)) / det
	w2 = 1 - w0 - w1
	inside = w0 >= -insideTol && w1 >= -insideTol && w2 >= -insideTol
	return
}

// delaunay runs incremental Bowyer-Watson insertion under a super-triangle.
func delaunay(points []geom.Point) [][3]int {
	b := geom.NewBounds()
	for _, p := range points {
		b.Extend(p.Bounds())
	}
	dx, dy := b.Max.X-b.Min.X, b.Max.Y-b.Min.Y
	d := math.Max(dx, dy)
	if d == 0 {
		return nil
	}
	midX, midY := (b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2

	// Super-triangle vertices appended after the real points.
	n := len(points)
	verts := make([]geom.Point, n, n+3)
	copy(verts, points)
	verts = append(verts,
		geom.Point{X: midX - 20*d, Y: midY - d},
		geom.Point{X: midX + 20*d, Y: midY - d},
		geom.Point{X: midX, Y: midY + 20*d},
	)

	type tri struct {
		v [3]int
		// circumcircle
		cx, cy, r2 float64
	}
	mkTri := func(i, j, k int) tri {
		a, bb, c := verts[i], verts[j], verts[k]
		ax, ay := a.X, a.Y
		bx, by := bb.X, bb.Y
		cx, cy := c.X, c.Y
		dd := 2 * (ax*(by-cy) + bx*(cy-ay) + cx*(ay-by))
		var ux, uy float64
		if dd != 0 {
			ux = ((ax*ax+ay*ay)*(by-cy) + (bx*bx+by*by)*(cy-ay) + (cx*cx+cy*cy)*(ay-by)) / dd
			uy = ((ax*ax+ay*ay)*(cx-bx) + (bx*bx+by*by)*(ax-cx) + (cx*cx+cy*cy)*(bx-ax)) / dd
		} else {
			ux, uy = math.Inf(1), math.Inf(1)
		}
		r2 := (ax-ux)*(ax-ux) + (ay-uy)*(ay-uy)
		return tri{v: [3]int{i, j, k}, cx: ux, cy: uy, r2: r2}
	}

	tris := []tri{mkTri(n, n+1, n+2)}

	type edge struct{ a, b int }
	normEdge := func(a, b int) edge {
		if a > b {
			a, b = b, a
		}
		return edge{a, b}
	}

	for pi := 0; pi < n; pi++ {
		p := verts[pi]

		// Triangles whose circumcircle contains the new point.
		var keep []tri
		edgeCount := make(map[edge]int)
		for _, t := range tris {
			dx := p.X - t.cx
			dy := p.Y - t.cy
			if dx*dx+dy*dy <= t.r2 {
				edgeCount[normEdge(t.v[0], t.v[1])]++
				edgeCount[normEdge(t.v[1], t.v[2])]++
				edgeCount[normEdge(t.v[2], t.v[0])]++
			} else {
				keep = append(keep, t)
			}
		}

		// Boundary edges of the cavity appear exactly once.
		for e, count := range edgeCount {
			if count == 1 {
				keep = append(keep, mkTri(e.a, e.b, pi))
			}
		}
		tris = keep
	}

	var out [][3]int
	for _, t := range tris {
		if t.v[0] >= n || t.v[1] >= n || t.v[2] >= n {
			continue
		}
		out = append(out, t.v)
	}
	return out
}
