package loopback

import (
	"math"
	"time"
)

const (
	// DefaultTimingTolerance is the allowed difference between the play
	// duration and the playback position reported by the session.
	DefaultTimingTolerance = time.Second

	// DefaultColorTolerance is the allowed Euclidean RGB distance between
	// the expected and the rendered color.
	DefaultColorTolerance = 30.0
)

// TimingClose reports whether observed is within tolerance of expected.
// The boundary is inclusive. NaN inputs never match.
func TimingClose(expected, observed, tolerance float64) bool {
	return math.Abs(observed-expected) <= math.Abs(tolerance)
}

// ColorDistance returns the Euclidean distance between a and b in RGB space.
func ColorDistance(a, b Color) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// ColorClose reports whether observed is within tolerance of expected.
// The boundary is inclusive.
func ColorClose(expected, observed Color, tolerance float64) bool {
	return ColorDistance(expected, observed) <= math.Abs(tolerance)
}
