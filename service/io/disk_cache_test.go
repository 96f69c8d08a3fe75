package io

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskCacheEvictsBySize(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	cache, err := NewDiskCache(10, root)
	require.NoError(t, err)

	first, err := cache.CreateEntry("a", []byte("12345"))
	require.NoError(t, err)
	_, err = cache.CreateEntry("b", []byte("12345"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), cache.GetTotalEntrySize())

	_, err = cache.CreateEntry("c", []byte("123"))
	require.NoError(t, err)

	assert.False(t, cache.HasEntry("a"))
	assert.True(t, cache.HasEntry("b"))
	assert.True(t, cache.HasEntry("c"))
	assert.Equal(t, int64(8), cache.GetTotalEntrySize())
	assert.Equal(t, int64(2), cache.GetAvailableSize())

	_, err = os.Stat(first.filePath)
	assert.True(t, os.IsNotExist(err))
}

func TestDiskCacheReadBack(t *testing.T) {
	cache, err := NewDiskCache(1024, t.TempDir())
	require.NoError(t, err)

	_, err = cache.CreateEntry("key", []byte("image bytes"))
	require.NoError(t, err)

	entry := cache.GetEntry("key")
	require.NotNil(t, entry)
	data, err := entry.GetData()
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))

	// overwrite keeps the ledger consistent
	_, err = cache.CreateEntry("key", []byte("new"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), cache.GetTotalEntrySize())
	assert.Equal(t, 1, cache.GetTotalEntries())
}

func TestDiskCacheRejectsOversized(t *testing.T) {
	cache, err := NewDiskCache(4, t.TempDir())
	require.NoError(t, err)

	_, err = cache.CreateEntry("key", []byte("too large"))
	assert.Error(t, err)
	assert.Nil(t, cache.GetEntry("key"))
}

func TestDiskCacheRelease(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	cache, err := NewDiskCache(1024, root)
	require.NoError(t, err)

	_, err = cache.CreateEntry("key", []byte("data"))
	require.NoError(t, err)

	cache.Release()
	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, int64(0), cache.GetTotalEntrySize())
}
