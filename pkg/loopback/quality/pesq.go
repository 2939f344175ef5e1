// Package quality scores perceived audio quality with an external ITU-T
// P.862 (PESQ) implementation and handles the WAV files it consumes.
package quality

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// DefaultSampleRate is the narrowband PESQ sample rate.
const DefaultSampleRate = 16000

// Raw MOS spans -0.5..4.5, so scores may be negative.
const mosNumber = `(-?[0-9]+(?:\.[0-9]+)?)`

var (
	// P.862 Prediction (Raw MOS, MOS-LQO):  = 4.125   4.237
	p862Result = regexp.MustCompile(`P\.862 Prediction \(Raw MOS, MOS-LQO\):\s*=\s*` + mosNumber + `\s+` + mosNumber)
	// P.862.2 Prediction (MOS-LQO):  = 4.100
	p8622Result = regexp.MustCompile(`P\.862\.2 Prediction \(MOS-LQO\):\s*=\s*` + mosNumber)
)

// PESQ scores audio by running the ITU-T reference pesq binary.
//
// Both files must be WAV with the configured sample rate. The returned
// score is MOS-LQO.
type PESQ struct {
	// Bin is the pesq executable. Default: "pesq" from PATH.
	Bin string
	// SampleRate is passed as +<rate>. Default: DefaultSampleRate.
	SampleRate int
	// ExtraArgs are inserted before the file arguments.
	ExtraArgs []string
}

// Score runs pesq on reference and degraded and returns the MOS-LQO.
func (p PESQ) Score(ctx context.Context, reference, degraded string) (float64, error) {
	rate := p.SampleRate
	if rate == 0 {
		rate = DefaultSampleRate
	}
	for _, path := range []string{reference, degraded} {
		info, err := Inspect(path)
		if err != nil {
			return 0, err
		}
		if info.SampleRate != rate {
			return 0, fmt.Errorf("%s: sample rate %d, pesq configured for %d", path, info.SampleRate, rate)
		}
	}

	bin := p.Bin
	if bin == "" {
		bin = "pesq"
	}
	args := append([]string{"+" + strconv.Itoa(rate)}, p.ExtraArgs...)
	args = append(args, reference, degraded)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("pesq failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParseOutput(stdout.String())
}

// ParseOutput extracts the MOS-LQO from pesq's report.
func ParseOutput(out string) (float64, error) {
	if m := p862Result.FindStringSubmatch(out); m != nil {
		return strconv.ParseFloat(m[2], 64)
	}
	if m := p8622Result.FindStringSubmatch(out); m != nil {
		return strconv.ParseFloat(m[1], 64)
	}
	return 0, fmt.Errorf("no PESQ prediction in output: %q", lastLine(out))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
