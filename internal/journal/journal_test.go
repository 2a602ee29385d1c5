package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndGet(t *testing.T) {
	j := New("", nil)

	require.False(t, j.IsDirty())

	j.Add(BucketAnylistNew, "id-1")
	j.Add(BucketAnylistNew, "id-2")
	j.Add(BucketAlexaDeleted, "milk")

	assert.True(t, j.IsDirty())
	assert.Equal(t, []string{"id-1", "id-2"}, j.Get(BucketAnylistNew))
	assert.Equal(t, []string{"milk"}, j.Get(BucketAlexaDeleted))
	assert.Nil(t, j.Get(BucketAnylistChecked))
}

func TestGetReturnsCopy(t *testing.T) {
	j := New("", nil)
	j.Add(BucketAlexaNew, "bread")

	got := j.Get(BucketAlexaNew)
	got[0] = "mutated"

	assert.Equal(t, []string{"bread"}, j.Get(BucketAlexaNew))
}

func TestResetClears(t *testing.T) {
	j := New("", nil)
	j.Add(BucketAnylistDeleted, "id-9")
	require.True(t, j.IsDirty())

	before := j.LastUpdate()
	j.Reset()

	assert.False(t, j.IsDirty())
	assert.Nil(t, j.Get(BucketAnylistDeleted))
	assert.False(t, j.LastUpdate().Before(before))
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")

	j := New(path, nil)
	j.Add(BucketAnylistNew, "id-1")
	j.Add(BucketAlexaNew, "eggs")
	require.NoError(t, j.Save())

	loaded := New(path, nil)
	assert.True(t, loaded.IsDirty())
	assert.Equal(t, []string{"id-1"}, loaded.Get(BucketAnylistNew))
	assert.Equal(t, []string{"eggs"}, loaded.Get(BucketAlexaNew))
	assert.WithinDuration(t, j.LastUpdate(), loaded.LastUpdate(), time.Millisecond)
}

func TestSaveCleanState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")

	j := New(path, nil)
	j.Add(BucketAnylistNew, "id-1")
	require.NoError(t, j.Save())

	j.Reset()
	require.NoError(t, j.Save())

	loaded := New(path, nil)
	assert.False(t, loaded.IsDirty())
	assert.Nil(t, loaded.Get(BucketAnylistNew))
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")

	j := New(path, nil)
	assert.False(t, j.IsDirty())
}

func TestLoadCorruptFileTreatedAsClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	j := New(path, nil)
	assert.False(t, j.IsDirty())
	for _, bucket := range Buckets() {
		assert.Nil(t, j.Get(bucket))
	}
}

func TestSaveDoesNotLeaveTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.json")

	j := New(path, nil)
	j.Add(BucketAlexaDeleted, "milk")
	require.NoError(t, j.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "journal.json", entries[0].Name())
}

func TestOnDiskFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")

	j := New(path, nil)
	j.Add(BucketAnylistChecked, "id-3")
	require.NoError(t, j.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var f struct {
		Dirty          bool                `json:"dirty"`
		LastUpdateTime float64             `json:"last_update_time"`
		Data           map[string][]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &f))

	assert.True(t, f.Dirty)
	assert.Greater(t, f.LastUpdateTime, float64(0))
	assert.Equal(t, []string{"id-3"}, f.Data["anylist_checked_items"])
}

func TestMemoryOnlyJournal(t *testing.T) {
	j := New("", nil)
	j.Add(BucketAlexaNew, "bread")
	require.NoError(t, j.Save()) // no-op, no error
}
