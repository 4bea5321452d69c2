package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisk_SaveGet(t *testing.T) {
	c := &Disk{Dir: t.TempDir()}
	key := KeyFrom("simplify", "http://backend", "some text")
	data := []byte(`{"simplified":"short"}`)
	require.NoError(t, c.Save(context.Background(), key, data))
	got, ok, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(data), string(got))

	_, ok, _ = c.Get(context.Background(), KeyFrom("other"))
	assert.False(t, ok, "expected miss")
}

func TestDisk_Unconfigured(t *testing.T) {
	var c Disk
	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err, "expected error without dir")
}

func TestDisk_StrictPerms(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "responses")
	c := &Disk{Dir: dir, StrictPerms: true}
	key := KeyFrom("model", "prompt")
	require.NoError(t, c.Save(context.Background(), key, []byte(`{"ok":true}`)))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode()&0o777)
	finfo, err := os.Stat(filepath.Join(dir, key+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), finfo.Mode()&0o777)
}

func TestKeyFrom_Stable(t *testing.T) {
	assert.Equal(t, KeyFrom("a", "b"), KeyFrom("a", "b"), "expected stable key")
	assert.NotEqual(t, KeyFrom("a", "b"), KeyFrom("ab"), "expected separator to matter")
	assert.NotEqual(t, KeyFromBytes("pdf", []byte("x")), KeyFromBytes("tei", []byte("x")), "expected namespace to matter")
}

func TestLayered_PromotesDiskHits(t *testing.T) {
	disk := &Disk{Dir: t.TempDir()}
	mem := NewMemory(time.Minute)
	require.NoError(t, disk.Save(context.Background(), "k", []byte("v")))
	l := &Layered{Memory: mem, Disk: disk}
	got, ok, err := l.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(got))
	assert.Equal(t, 1, mem.Len(), "expected promotion into memory")

	require.NoError(t, l.Save(context.Background(), "k2", []byte("v2")))
	_, ok, _ = disk.Get(context.Background(), "k2")
	assert.True(t, ok, "expected write-through to disk")
	mem.Flush()
	assert.Zero(t, mem.Len())
}

// Entry age is the file modification time.
func TestPurgeByAge(t *testing.T) {
	dir := t.TempDir()
	c := &Disk{Dir: dir}
	for _, k := range []string{"old", "new"} {
		require.NoError(t, c.Save(context.Background(), k, []byte(k)))
	}
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.json"), past, past))
	removed, err := PurgeByAge(dir, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, ok, _ := c.Get(context.Background(), "new")
	assert.True(t, ok, "expected fresh entry to survive")

	n, err := PurgeByAge(filepath.Join(dir, "missing"), time.Hour)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.json"), []byte("x"), 0o644))
	require.NoError(t, ClearDir(dir))
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
	assert.Error(t, ClearDir("  "), "expected error for empty dir")
}
