package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

func newTestDiskStore(t *testing.T, dir string, compression Compression) *DiskStore {
	t.Helper()
	d, err := NewDiskStore(DiskOptions{Directory: dir, Compression: compression, Clock: clock.NewMock()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDiskStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, compression := range []Compression{CompressionNone, CompressionZstd} {
		t.Run(string(compression), func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "nested", "cache")
			d := newTestDiskStore(t, dir, compression)
			created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

			size, err := d.Set(ctx, "fonts/serif\\bold", glyphRun{Text: "abc", Width: 3}, created)
			require.NoError(t, err)
			assert.Positive(t, size)
			assert.Equal(t, size, d.Usage())

			_, err = os.Stat(filepath.Join(dir, "fonts_serif_bold.cache"))
			require.NoError(t, err, "file name replaces path separators")

			env, found, err := d.Get(ctx, "fonts/serif\\bold")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "fonts/serif\\bold", env.Key)
			assert.Equal(t, "cache.glyphRun", env.Type)
			assert.True(t, created.Equal(env.CreatedAt))
		})
	}
}

func TestDiskStoreFilenameCollisionIsMiss(t *testing.T) {
	ctx := context.Background()
	d := newTestDiskStore(t, t.TempDir(), CompressionNone)

	_, err := d.Set(ctx, "a/b", 1, time.Now())
	require.NoError(t, err)

	_, found, err := d.Get(ctx, "a_b")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDiskStoreRescan(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := newTestDiskStore(t, dir, CompressionZstd)
	_, err := first.Set(ctx, "k1", "v1", time.Now())
	require.NoError(t, err)
	_, err = first.Set(ctx, "k2", "v2", time.Now())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600))

	second := newTestDiskStore(t, dir, CompressionNone)
	n, err := second.Rescan()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, first.Usage(), second.Usage())

	env, found, err := second.Get(ctx, "k2")
	require.NoError(t, err)
	require.True(t, found, "compressed files stay readable without compression enabled")
	assert.Equal(t, "string", env.Type)
}

func TestDiskStoreRescanMissingDirectory(t *testing.T) {
	d := newTestDiskStore(t, filepath.Join(t.TempDir(), "absent"), CompressionNone)
	n, err := d.Rescan()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDiskStoreRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d := newTestDiskStore(t, dir, CompressionNone)

	for _, k := range []string{"a", "b", "c"} {
		_, err := d.Set(ctx, k, k, time.Now())
		require.NoError(t, err)
	}

	require.NoError(t, d.Remove("a"))
	require.NoError(t, d.Remove("a"))
	assert.False(t, d.Contains("a"))
	assert.Equal(t, 2, d.Len())

	n, err := d.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, d.Usage())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiskStoreMissingFileIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d := newTestDiskStore(t, dir, CompressionNone)

	_, err := d.Set(ctx, "k", 1, time.Now())
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "k.cache")))

	_, found, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, d.Contains("k"))
}

func TestDiskStoreCorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d := newTestDiskStore(t, dir, CompressionNone)

	_, err := d.Set(ctx, "k", 1, time.Now())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.cache"), []byte("{not json"), 0600))

	_, found, err := d.Get(ctx, "k")
	assert.False(t, found)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSerialization))
}

func TestDiskStoreRemoveExpired(t *testing.T) {
	ctx := context.Background()
	d := newTestDiskStore(t, t.TempDir(), CompressionNone)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := d.Set(ctx, "old", 1, now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = d.Set(ctx, "fresh", 2, now)
	require.NoError(t, err)

	n, err := d.RemoveExpired(types.LRU(10), now)
	require.NoError(t, err)
	assert.Zero(t, n, "no ttl, nothing expires")

	n, err = d.RemoveExpired(types.TimeBased(30*time.Second), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, d.Contains("old"))
	assert.True(t, d.Contains("fresh"))
}

func TestDiskStoreProbe(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "probe")
	d := newTestDiskStore(t, dir, CompressionNone)
	require.NoError(t, d.Probe())

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	bad := newTestDiskStore(t, blocker, CompressionNone)
	assert.True(t, errors.HasCode(bad.Probe(), errors.ErrCodeDiskWrite))
}

func TestDiskTierThroughCoordinator(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := Options{Disk: &DiskOptions{Directory: dir, Compression: CompressionZstd}}

	c, _ := newTestCoordinator(t, opts)
	c.Set(ctx, "run", glyphRun{Text: "hello", Width: 42}, types.TierDisk)
	c.Set(ctx, "count", 7, types.TierDisk)

	run, ok := Get[glyphRun](ctx, c, "run", types.TierMemory)
	require.True(t, ok)
	assert.Equal(t, glyphRun{Text: "hello", Width: 42}, run)

	_, ok = Get[string](ctx, c, "count", types.TierDisk)
	assert.False(t, ok, "type mismatch on disk is a miss")

	generic, ok := c.Get(ctx, "run", types.TierDisk)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"text": "hello", "width": 42.0}, generic)
	require.NoError(t, c.Close())

	reopened, _ := newTestCoordinator(t, opts)
	n, ok := Get[int](ctx, reopened, "count", types.TierMemory)
	require.True(t, ok, "rescan restores the index")
	assert.Equal(t, 7, n)
	assert.Positive(t, reopened.Statistics().DiskUsage)
}

func TestDiskTierExpiry(t *testing.T) {
	ctx := context.Background()
	c, mock := newTestCoordinator(t, Options{
		Strategy: types.TimeBased(5 * time.Second),
		Disk:     &DiskOptions{Directory: t.TempDir()},
	})

	c.Set(ctx, "k", "v", types.TierDisk)
	mock.Add(6 * time.Second)

	_, ok := c.Get(ctx, "k", types.TierDisk)
	assert.False(t, ok)
	assert.Zero(t, c.Statistics().DiskUsage)
}
