package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceValue_SafeInteger(t *testing.T) {
	assert.Equal(t, int64(42), coerceValue(int64(42)))
}

func TestCoerceValue_UnsafeIntegerNarrowsToFloat(t *testing.T) {
	const unsafe = int64(1) << 54
	got := coerceValue(unsafe)
	f, ok := got.(float64)
	require.True(t, ok, "expected unsafe integer to be narrowed to float64")
	assert.Equal(t, float64(unsafe), f)
}

func TestCoerceValue_NonIntegerPassesThrough(t *testing.T) {
	assert.Equal(t, "hello", coerceValue("hello"))
	assert.Equal(t, 3.14, coerceValue(3.14))
}

func TestAdapter_RegisterBlob(t *testing.T) {
	tempDir := t.TempDir()
	a := &Adapter{tempDir: tempDir}

	path, err := a.RegisterBlob("remote.gdx", []byte("payload"))
	require.NoError(t, err)
	assert.True(t, filepath.Dir(path) == tempDir)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestAdapter_RegisterBlob_UniqueNamesForSameSourceName(t *testing.T) {
	a := &Adapter{tempDir: t.TempDir()}

	path1, err := a.RegisterBlob("remote.gdx", []byte("a"))
	require.NoError(t, err)
	path2, err := a.RegisterBlob("remote.gdx", []byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, path1, path2)
}
