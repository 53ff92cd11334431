package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawPixelCorners(t *testing.T) {
	c := New()
	red := Opaque(255, 0, 0)

	corners := []Point{{0, 0}, {63, 0}, {0, 63}, {63, 63}}
	for _, p := range corners {
		c.DrawPixel(p.X, p.Y, red)
		assert.Equal(t, red, c.At(p.X, p.Y), "corner %+v", p)
	}
}

func TestDrawPixelOutOfBoundsIsNoOp(t *testing.T) {
	c := New()
	red := Opaque(255, 0, 0)

	// Must not panic, and must not perturb any in-bounds pixel.
	c.DrawPixel(-1, 0, red)
	c.DrawPixel(64, 0, red)
	c.DrawPixel(0, -1, red)
	c.DrawPixel(0, 64, red)

	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			require.Equal(t, Color{}, c.At(x, y))
		}
	}
}

func TestClearZeroesBuffer(t *testing.T) {
	c := New()
	c.DrawRect(Point{0, 0}, Size{64, 64}, Opaque(1, 2, 3))
	c.Clear()
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			require.Equal(t, Color{}, c.At(x, y))
		}
	}
}

func TestDrawRectZeroSizeIsNoOp(t *testing.T) {
	c := New()
	c.DrawRect(Point{10, 10}, Size{0, 5}, Opaque(1, 1, 1))
	c.DrawRect(Point{10, 10}, Size{5, 0}, Opaque(1, 1, 1))
	assert.Equal(t, Color{}, c.At(10, 10))
}

func TestAlphaBlendSourceOver(t *testing.T) {
	c := New()
	c.DrawPixel(5, 5, Opaque(255, 0, 0))
	c.DrawPixel(5, 5, Color{R: 0, G: 255, B: 0, A: 128})
	got := c.At(5, 5)
	// half-strength green over red should roughly average the channels.
	assert.InDelta(t, 128, int(got.R), 2)
	assert.InDelta(t, 127, int(got.G), 2)
	assert.Equal(t, uint8(255), got.A)
}

func TestDrawTextEmptyIsNoOpAndReturnsZero(t *testing.T) {
	c := New()
	w := c.DrawText("", Point{0, 0}, Opaque(255, 255, 255), AlignLeft)
	assert.Equal(t, 0, w)
}

func TestDrawTextUnknownCharRendersAsQuestionMark(t *testing.T) {
	c1, c2 := New(), New()
	w1 := c1.DrawText("~", Point{0, 0}, Opaque(255, 255, 255), AlignLeft)
	w2 := c2.DrawText("?", Point{0, 0}, Opaque(255, 255, 255), AlignLeft)
	assert.Equal(t, w2, w1)
	assert.Equal(t, c2.pixels, c1.pixels)
}

func TestDrawNumericAdaptivePrecision(t *testing.T) {
	cases := []struct {
		value          float64
		maxTotalDigits int
		want           string
	}{
		{0, 1, "0"},
		{-0.004, 3, "0"},
		{12.34, 3, "12.3"},
		{123.4, 3, "123"},
	}
	for _, tc := range cases {
		c := New()
		// Should never panic regardless of sign/magnitude combinations.
		w := c.DrawNumeric(tc.value, Point{0, 0}, Opaque(255, 255, 255), AlignLeft, tc.maxTotalDigits)
		assert.GreaterOrEqual(t, w, 0)
		assert.Equal(t, c.measureNumeric(tc.want, false), w, "value %v, maxTotalDigits %d", tc.value, tc.maxTotalDigits)
	}
}

func TestDrawNumericZeroCollapse(t *testing.T) {
	assert.True(t, isAllZero("0.00"))
	assert.True(t, isAllZero("0"))
	assert.False(t, isAllZero("0.01"))
}

func TestDrawNumericIntegerDigitsThreshold(t *testing.T) {
	assert.Equal(t, 1, digitsIn(0))
	assert.Equal(t, 2, digitsIn(12.34))
	assert.Equal(t, 3, digitsIn(123.4))
}

func TestDrawLineClippedAtEdges(t *testing.T) {
	c := New()
	c.DrawLine(Point{-5, 0}, Point{5, 0}, Opaque(10, 20, 30))
	assert.Equal(t, Opaque(10, 20, 30), c.At(0, 0))
	assert.Equal(t, Opaque(10, 20, 30), c.At(5, 0))
}
