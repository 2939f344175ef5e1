package loopback

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimingClose(t *testing.T) {
	tests := []struct {
		name      string
		expected  float64
		observed  float64
		tolerance float64
		want      bool
	}{
		{"exact", 10, 10, 1, true},
		{"slightly late", 10, 10.2, 1, true},
		{"slightly early", 10, 9.5, 1, true},
		{"late boundary", 10, 11, 1, true},
		{"early boundary", 10, 9, 1, true},
		{"too late", 10, 12, 1, false},
		{"too early", 10, 8.5, 1, false},
		{"zero tolerance exact", 10, 10, 0, true},
		{"zero tolerance off", 10, 10.25, 0, false},
		{"negative tolerance uses magnitude", 10, 10.5, -1, true},
		{"NaN observed", 10, math.NaN(), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimingClose(tt.expected, tt.observed, tt.tolerance))
		})
	}
}

func TestTimingClose_Symmetric(t *testing.T) {
	pairs := [][2]float64{{10, 10.2}, {10, 12}, {0, 1}, {3.25, 2.25}}
	for _, p := range pairs {
		assert.Equal(t, TimingClose(p[0], p[1], 1), TimingClose(p[1], p[0], 1), "pair %v", p)
	}
}

func TestColorDistance(t *testing.T) {
	assert.Equal(t, 0.0, ColorDistance(ColorGreen, ColorGreen))
	assert.InDelta(t, math.Sqrt(9+25+4), ColorDistance(Color{0, 135, 0}, Color{3, 130, 2}), 1e-9)
	assert.InDelta(t, 255*math.Sqrt(3), ColorDistance(Color{0, 0, 0}, Color{255, 255, 255}), 1e-9)

	a, b := Color{12, 200, 7}, Color{90, 3, 255}
	assert.Equal(t, ColorDistance(a, b), ColorDistance(b, a))
}

func TestColorClose(t *testing.T) {
	expected := Color{0, 135, 0}

	assert.True(t, ColorClose(expected, expected, 0), "reflexive at zero tolerance")
	assert.True(t, ColorClose(expected, Color{3, 130, 2}, 10))
	assert.False(t, ColorClose(expected, Color{200, 0, 0}, 10))

	// Distance of exactly 5 (3-4-5 triangle) sits on the boundary.
	assert.True(t, ColorClose(expected, Color{3, 139, 0}, 5))
	assert.False(t, ColorClose(expected, Color{3, 139, 0}, 4.999))
}

func TestColorClose_Reflexive(t *testing.T) {
	for _, c := range []Color{ColorGreen, ColorRed, {}, {255, 255, 255}, {17, 34, 51}} {
		assert.True(t, ColorClose(c, c, DefaultColorTolerance), "color %s", c)
	}
}
