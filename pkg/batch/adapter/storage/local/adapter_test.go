package local_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/carbonlake/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/local"
	coreConfig "github.com/tigerroll/carbonlake/pkg/batch/core/config"
)

func newAdapter(t *testing.T) storageAdapter.StorageConnection {
	t.Helper()
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()}, "lake")
	require.NoError(t, err)
	return conn
}

func readAll(t *testing.T, conn storageAdapter.StorageConnection, name string) string {
	t.Helper()
	rc, err := conn.Download(context.Background(), "", name)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestLocalAdapter_UploadAndDownload(t *testing.T) {
	ctx := context.Background()
	conn := newAdapter(t)

	require.NoError(t, conn.Upload(ctx, "", "bronze/a/file.txt", strings.NewReader("first"), "text/plain"))
	require.NoError(t, conn.Upload(ctx, "", "bronze/a/file.txt", strings.NewReader("second"), "text/plain"))
	assert.Equal(t, "second", readAll(t, conn, "bronze/a/file.txt"))

	_, err := conn.Download(ctx, "", "bronze/a/missing.txt")
	assert.ErrorIs(t, err, storageAdapter.ErrObjectNotFound)
}

func TestLocalAdapter_UploadIfAbsent(t *testing.T) {
	ctx := context.Background()
	conn := newAdapter(t)

	require.NoError(t, conn.UploadIfAbsent(ctx, "", "_delta_log/00000000000000000000.json", strings.NewReader("v0"), ""))
	err := conn.UploadIfAbsent(ctx, "", "_delta_log/00000000000000000000.json", strings.NewReader("other"), "")
	require.ErrorIs(t, err, storageAdapter.ErrObjectExists)
	assert.Equal(t, "v0", readAll(t, conn, "_delta_log/00000000000000000000.json"))

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "", "_delta_log/", func(n string) error {
		names = append(names, n)
		return nil
	}))
	assert.Equal(t, []string{"_delta_log/00000000000000000000.json"}, names, "temporary files are not listed")
}

func TestLocalAdapter_ListObjectsByPrefix(t *testing.T) {
	ctx := context.Background()
	conn := newAdapter(t)
	for _, n := range []string{"t/date_part=2024-01-01/a.parquet", "t/date_part=2024-01-02/b.parquet", "t/_delta_log/0.json", "u/x"} {
		require.NoError(t, conn.Upload(ctx, "", n, strings.NewReader(n), ""))
	}

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "", "t/date_part=", func(n string) error {
		names = append(names, n)
		return nil
	}))
	sort.Strings(names)
	assert.Equal(t, []string{"t/date_part=2024-01-01/a.parquet", "t/date_part=2024-01-02/b.parquet"}, names)

	names = nil
	require.NoError(t, conn.ListObjects(ctx, "", "missing/dir/", func(n string) error {
		names = append(names, n)
		return nil
	}))
	assert.Empty(t, names)
}

func TestLocalAdapter_RejectsEscapingPaths(t *testing.T) {
	conn := newAdapter(t)
	err := conn.Upload(context.Background(), "", "../outside.txt", strings.NewReader("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside of BaseDir")

	_, ok := conn.LocalPath("", "t/file")
	assert.True(t, ok)
}

func TestLocalAdapter_DeleteMissingIsNoop(t *testing.T) {
	conn := newAdapter(t)
	assert.NoError(t, conn.DeleteObject(context.Background(), "", "nothing/here"))
}

func TestLocalProvider_DefaultsToLakePath(t *testing.T) {
	cfg := coreConfig.NewConfig()
	cfg.CarbonLake.Lake.Path = t.TempDir()

	provider := local.NewLocalProvider(cfg)
	conn, err := provider.GetConnection(cfg.CarbonLake.Lake.StorageRef)
	require.NoError(t, err)
	assert.Equal(t, cfg.CarbonLake.Lake.Path, conn.Config().BaseDir)

	again, err := provider.GetConnection(cfg.CarbonLake.Lake.StorageRef)
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = provider.GetConnection("unknown")
	assert.Error(t, err)
	assert.NoError(t, provider.CloseAll())
}
