package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivativeRef(t *testing.T) {
	assert.Equal(t, "abc_100", DerivativeRef("abc", 100))
	assert.Equal(t, "abc_100_250", DerivativeRef(DerivativeRef("abc", 100), 250))
}

func TestFilesystemStore(t *testing.T) {
	fs := NewFilesystemStore(t.TempDir() + "/nested/files")

	ok, err := fs.Exists("ref-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fs.Read("ref-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fs.Write("ref-1", []byte("payload")))

	ok, err = fs.Exists("ref-1")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := fs.Read("ref-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	// Overwrite is allowed; last write wins.
	require.NoError(t, fs.Write("ref-1", []byte("payload2")))
	data, err = fs.Read("ref-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload2"), data)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()

	_, err := m.Read("ref-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Write("ref-1", []byte("payload")))

	data, err := m.Read("ref-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	// The store keeps its own copy.
	data[0] = 'X'
	again, err := m.Read("ref-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), again)

	ok, err := m.Exists("ref-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
