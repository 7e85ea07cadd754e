package update

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipBundle(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("manifest.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"id":"core"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFileStore_AddPackage(t *testing.T) {
	fs := afero.NewMemMapFs()
	bundle := zipBundle(t)
	require.NoError(t, afero.WriteFile(fs, "/downloads/core-4.2", bundle, 0o644))

	store := NewFileStore(fs, "/packages")
	pkg, err := store.AddPackage(context.Background(), "/downloads/core-4.2")
	require.NoError(t, err)
	assert.Equal(t, "core-4.2", pkg.ID)
	assert.Equal(t, "zip", pkg.Format)
	assert.Equal(t, "/packages/core-4.2.zip", pkg.Path)
	assert.Equal(t, int64(len(bundle)), pkg.Size)

	stored, err := afero.ReadFile(fs, pkg.Path)
	require.NoError(t, err)
	assert.Equal(t, bundle, stored)

	exists, err := afero.Exists(fs, "/downloads/core-4.2")
	require.NoError(t, err)
	assert.True(t, exists, "the downloaded file is left in place")

	_, err = store.AddPackage(context.Background(), "/downloads/core-4.2")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestFileStore_AddPackageRejects(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/downloads/error-page", []byte(`{"message":"package not found"}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/downloads/empty", nil, 0o644))
	store := NewFileStore(fs, "/packages")

	tests := []struct {
		name string
		path string
	}{
		{name: "not an archive", path: "/downloads/error-page"},
		{name: "empty file", path: "/downloads/empty"},
		{name: "missing file", path: "/downloads/absent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.AddPackage(context.Background(), tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPackage)
		})
	}
}
