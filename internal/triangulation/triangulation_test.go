package triangulation

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
)

func unitSquare() []geom.Point {
	return []geom.Point{
		{X: 0, Y: 0},
		{X: 1, Y: 0},
		{X: 0, Y: 1},
		{X: 1, Y: 1},
	}
}

func TestNewRequiresThreePoints(t *testing.T) {
	if _, err := New([]geom.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}); err == nil {
		t.Error("two points should not triangulate")
	}
}

func TestUnitSquareTriangulation(t *testing.T) {
	tr, err := New(unitSquare())
	if err != nil {
		t.Fatal(err)
	}
	if got := tr.NumTriangles(); got != 2 {
		t.Errorf("unit square has %d triangles, want 2", got)
	}
}

func TestBarycentricInterpolation(t *testing.T) {
	tr, err := New(unitSquare())
	if err != nil {
		t.Fatal(err)
	}

	// A plane z = x + 2y is reproduced exactly by linear interpolation.
	z := []float64{0, 1, 2, 3}

	targets := []geom.Point{
		{X: 0.5, Y: 0.5},
		{X: 0.25, Y: 0.75},
		{X: 0, Y: 0},
		{X: 1, Y: 1},
	}
	w := tr.Weights(targets)
	got, err := tr.Interpolate(w, z)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range targets {
		want := p.X + 2*p.Y
		if math.Abs(got[i]-want) > 1e-12 {
			t.Errorf("interp at (%g,%g) = %g, want %g", p.X, p.Y, got[i], want)
		}
	}
}

func TestOutsidePointsAreNaN(t *testing.T) {
	tr, err := New(unitSquare())
	if err != nil {
		t.Fatal(err)
	}
	w := tr.Weights([]geom.Point{{X: 2, Y: 2}, {X: -1, Y: 0.5}})
	got, err := tr.Interpolate(w, []float64{0, 1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if !math.IsNaN(v) {
			t.Errorf("target %d outside the hull should be NaN, got %g", i, v)
		}
	}
}

func TestMatches(t *testing.T) {
	pts := unitSquare()
	tr, err := New(pts)
	if err != nil {
		t.Fatal(err)
	}
	if !tr.Matches(unitSquare()) {
		t.Error("identical point set should match")
	}
	moved := unitSquare()
	moved[3].X = 1.5
	if tr.Matches(moved) {
		t.Error("different point set should not match")
	}
	if tr.Matches(pts[:3]) {
		t.Error("shorter point set should not match")
	}
}

func TestValueCountMismatch(t *testing.T) {
	tr, err := New(unitSquare())
	if err != nil {
		t.Fatal(err)
	}
	w := tr.Weights([]geom.Point{{X: 0.5, Y: 0.5}})
	if _, err := tr.Interpolate(w, []float64{1, 2}); err == nil {
		t.Error("value count mismatch should error")
	}
}

func TestLargerScatteredSet(t *testing.T) {
	// A jittered grid of points; every interior target must land in a
	// triangle and reproduce a linear field.
	var pts []geom.Point
	for j := 0; j <= 10; j++ {
		for i := 0; i <= 10; i++ {
			x := float64(i) + 0.3*math.Sin(float64(j))
			y := float64(j) + 0.3*math.Cos(float64(i))
			pts = append(pts, geom.Point{X: x, Y: y})
		}
	}
	tr, err := New(pts)
	if err != nil {
		t.Fatal(err)
	}

	z := make([]float64, len(pts))
	for i, p := range pts {
		z[i] = 3*p.X - p.Y + 7
	}

	targets := []geom.Point{{X: 5, Y: 5}, {X: 2.5, Y: 7.5}, {X: 8, Y: 3}}
	w := tr.Weights(targets)
	got, err := tr.Interpolate(w, z)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range targets {
		want := 3*p.X - p.Y + 7
		if math.Abs(got[i]-want) > 1e-9 {
			t.Errorf("interp at (%g,%g) = %g, want %g", p.X, p.Y, got[i], want)
		}
	}
}
