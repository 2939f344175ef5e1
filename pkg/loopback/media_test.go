package loopback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMedia_Empty(t *testing.T) {
	path, err := ResolveMedia(context.Background(), "", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestResolveMedia_LocalFile(t *testing.T) {
	local := filepath.Join(t.TempDir(), "red.y4m")
	require.NoError(t, os.WriteFile(local, []byte("YUV4MPEG2"), 0o644))

	path, err := ResolveMedia(context.Background(), local, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, local, path)

	_, err = ResolveMedia(context.Background(), filepath.Join(t.TempDir(), "missing.y4m"), t.TempDir())
	assert.Error(t, err)
}

func TestResolveMedia_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/10sec/fiware.wav" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("RIFF"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path, err := ResolveMedia(context.Background(), srv.URL+"/audio/10sec/fiware.wav", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fiware.wav"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))

	_, err = ResolveMedia(context.Background(), srv.URL+"/missing.wav", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
