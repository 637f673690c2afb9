package coords

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiplyAndInverse(t *testing.T) {
	m := Scale(2, 3).Multiply(Translate(10, 20))
	p := m.Transform(Point{1, 1})
	assert.Equal(t, Point{12, 23}, p)

	inv, err := m.Inverse()
	require.NoError(t, err)
	back := inv.Transform(p)
	assert.InDelta(t, 1, back.X, 1e-9)
	assert.InDelta(t, 1, back.Y, 1e-9)

	_, err = Scale(0, 1).Inverse()
	assert.Error(t, err)
}

func TestRotateDegreesExact(t *testing.T) {
	assert.Equal(t, Point{-2, 1}, RotateDegrees(90).Transform(Point{1, 2}))
	assert.Equal(t, Identity(), RotateDegrees(-360))
	assert.Equal(t, RotateDegrees(270), RotateDegrees(-90))

	q := RotateDegrees(45).Transform(Point{1, 0})
	assert.InDelta(t, math.Sqrt2/2, q.X, 1e-9)
	assert.InDelta(t, math.Sqrt2/2, q.Y, 1e-9)
}

func TestTransformRect(t *testing.T) {
	r := RotateDegrees(90).TransformRect(Rect{0, 0, 100, 50})
	assert.Equal(t, Rect{-50, 0, 0, 100}, r)
	assert.Equal(t, 50.0, r.Width())
	assert.Equal(t, Rect{0, 0, 5, 5}, Rect{5, 5, 0, 0}.Normalize())
}

func TestIntersect(t *testing.T) {
	media := Rect{200, 200, 812, 992}
	got, ok := media.Intersect(Rect{0, 0, 500, 500})
	require.True(t, ok)
	assert.Equal(t, Rect{200, 200, 500, 500}, got)

	_, ok = media.Intersect(Rect{0, 0, 100, 100})
	assert.False(t, ok)
}
