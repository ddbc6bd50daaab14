package source

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

func TestResolve_LocalPath(t *testing.T) {
	r := NewResolver(false, t.TempDir())
	path, err := r.Resolve(context.Background(), "/data/model.gdx")
	require.NoError(t, err)
	assert.Equal(t, "/data/model.gdx", path)
}

func TestResolve_FileURI(t *testing.T) {
	r := NewResolver(false, t.TempDir())
	path, err := r.Resolve(context.Background(), "file:///data/model.gdx")
	require.NoError(t, err)
	assert.Equal(t, "/data/model.gdx", path)
}

func TestResolve_RemoteDisabled(t *testing.T) {
	r := NewResolver(false, t.TempDir())
	_, err := r.Resolve(context.Background(), "https://example.com/model.gdx")
	assert.Error(t, err)
}

func TestResolve_RemoteFetchesAndStages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("gdx-bytes"))
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	r := NewResolver(true, tempDir)
	path, err := r.Resolve(context.Background(), srv.URL+"/model.gdx")
	require.NoError(t, err)
	assert.Equal(t, tempDir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "gdx-bytes", string(data))
}

func TestResolve_ConcurrentFetchesOfSameURLDoNotCollide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("gdx-bytes"))
	}))
	defer srv.Close()

	r := NewResolver(true, t.TempDir())
	path1, err := r.Resolve(context.Background(), srv.URL+"/model.gdx")
	require.NoError(t, err)
	path2, err := r.Resolve(context.Background(), srv.URL+"/model.gdx")
	require.NoError(t, err)

	assert.NotEqual(t, path1, path2)
}

func TestDispose_RemovesStagedFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("gdx-bytes"))
	}))
	defer srv.Close()

	r := NewResolver(true, t.TempDir())
	path, err := r.Resolve(context.Background(), srv.URL+"/model.gdx")
	require.NoError(t, err)

	r.Dispose()
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
