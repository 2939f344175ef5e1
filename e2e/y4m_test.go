//go:build e2e

package e2e

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// BT.601 limited-range YCbCr of pure red.
const (
	redY  = 81
	redCb = 90
	redCr = 240
)

// writeSolidY4M writes a 4:2:0 Y4M clip of a single color for Chrome's
// fake video capture and returns its path.
func writeSolidY4M(t *testing.T, name string, width, height, frames int, y, cb, cr byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "YUV4MPEG2 W%d H%d F30:1 Ip A1:1 C420\n", width, height)

	luma := fill(width*height, y)
	blue := fill(width*height/4, cb)
	red := fill(width*height/4, cr)
	for i := 0; i < frames; i++ {
		w.WriteString("FRAME\n")
		w.Write(luma)
		w.Write(blue)
		w.Write(red)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func fill(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}
