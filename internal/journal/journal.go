// Package journal implements the durable change-bucket log that carries one
// in-flight sync transaction across a crash. The journal is a map of named
// buckets to ordered entries plus a dirty flag and a last-update timestamp,
// persisted as a single JSON file replaced atomically on every save.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Bucket names. These are the exact on-disk strings; changing them breaks
// replay of journals written by earlier versions.
const (
	BucketAnylistNew       = "anylist_new_items"
	BucketAnylistChecked   = "anylist_checked_items"
	BucketAnylistUnchecked = "anylist_unchecked_items"
	BucketAnylistRenamed   = "anylist_renamed_items"
	BucketAnylistDeleted   = "anylist_deleted_items"
	BucketAlexaNew         = "alexa_new_items"
	BucketAlexaDeleted     = "alexa_deleted_items"
)

// Buckets lists every bucket name. Entries in anylist_* buckets are AnyList
// item ids; entries in alexa_* buckets are plain item names.
func Buckets() []string {
	return []string{
		BucketAnylistNew,
		BucketAnylistChecked,
		BucketAnylistUnchecked,
		BucketAnylistRenamed,
		BucketAnylistDeleted,
		BucketAlexaNew,
		BucketAlexaDeleted,
	}
}

// Journal is an in-memory change-bucket store with optional file backing.
// A Journal with an empty path is memory-only: Load and Save are no-ops.
// Not safe for concurrent use; the sync loop is the sole owner.
type Journal struct {
	path string
	log  *slog.Logger

	data       map[string][]string
	dirty      bool
	lastUpdate time.Time
}

// fileFormat is the persisted shape. last_update_time is Unix seconds as a
// float, matching journals written by earlier versions of this tool.
type fileFormat struct {
	Dirty          bool                `json:"dirty"`
	LastUpdateTime float64             `json:"last_update_time"`
	Data           map[string][]string `json:"data"`
}

// New returns a reset journal backed by the given file path ("" for
// memory-only) and immediately loads any persisted state.
func New(path string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	j := &Journal{path: path, log: logger}
	j.Reset()
	j.Load()
	return j
}

// Reset clears all buckets, marks the journal clean and stamps the update
// time. It does not touch the file; call Save to persist the clean state.
func (j *Journal) Reset() {
	j.data = make(map[string][]string)
	j.dirty = false
	j.lastUpdate = time.Now()
}

// Add appends an entry to the named bucket and marks the journal dirty.
func (j *Journal) Add(bucket, entry string) {
	j.dirty = true
	j.lastUpdate = time.Now()
	j.data[bucket] = append(j.data[bucket], entry)
}

// Get returns a copy of the named bucket, never the internal slice.
func (j *Journal) Get(bucket string) []string {
	entries := j.data[bucket]
	if len(entries) == 0 {
		return nil
	}
	out := make([]string, len(entries))
	copy(out, entries)
	return out
}

// IsDirty reports whether a transaction is in flight (or was interrupted).
func (j *Journal) IsDirty() bool {
	return j.dirty
}

// LastUpdate returns the time of the most recent Reset or Add.
func (j *Journal) LastUpdate() time.Time {
	return j.lastUpdate
}

// Age returns how long ago the journal was last touched.
func (j *Journal) Age() time.Duration {
	return time.Since(j.lastUpdate)
}

// Load reads the persisted journal. A missing file is not an error. A file
// that fails to parse is logged and ignored, leaving the freshly reset
// in-memory state: a journal we cannot read is a journal we must not replay.
func (j *Journal) Load() {
	if j.path == "" {
		return
	}

	raw, err := os.ReadFile(j.path)
	if err != nil {
		if !os.IsNotExist(err) {
			j.log.Error("reading journal", "path", j.path, "error", err)
		}
		return
	}

	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		j.log.Error("parsing journal, treating as clean", "path", j.path, "error", err)
		return
	}

	j.dirty = f.Dirty
	if f.LastUpdateTime > 0 {
		sec := int64(f.LastUpdateTime)
		nsec := int64((f.LastUpdateTime - float64(sec)) * float64(time.Second))
		j.lastUpdate = time.Unix(sec, nsec)
	}
	if f.Data != nil {
		j.data = f.Data
	}
}

// Save writes the journal atomically (temp file then rename) so a crash can
// never leave a half-written journal behind. Failures propagate: sync
// correctness depends on the journal being durable.
func (j *Journal) Save() error {
	if j.path == "" {
		return nil
	}

	f := fileFormat{
		Dirty:          j.dirty,
		LastUpdateTime: float64(j.lastUpdate.UnixNano()) / float64(time.Second),
		Data:           j.data,
	}
	raw, err := json.MarshalIndent(f, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling journal: %w", err)
	}

	dir := filepath.Dir(j.path)
	base := filepath.Base(j.path)
	tempFile, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp journal file: %w", err)
	}
	tempPath := tempFile.Name()
	defer func() {
		_ = tempFile.Close()    // Best effort: may already be closed before rename
		_ = os.Remove(tempPath) // Best effort: may already be renamed
	}()

	if _, err := tempFile.Write(raw); err != nil {
		return fmt.Errorf("writing journal: %w", err)
	}

	// Close before rename (required on Windows; double-close in defer is harmless)
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("closing temp journal file: %w", err)
	}

	if err := os.Rename(tempPath, j.path); err != nil {
		return fmt.Errorf("replacing journal file: %w", err)
	}
	return nil
}

// String renders the bucket contents for debug logging.
func (j *Journal) String() string {
	out, err := json.Marshal(j.data)
	if err != nil {
		return fmt.Sprintf("journal<unprintable: %v>", err)
	}
	return string(out)
}
