package sync

import "github.com/alexa2anylist/alexa2anylist/internal/journal"

// ChangeSet is the seven-bucket delta between two consecutive snapshots.
// AnyList buckets carry item ids; Alexa buckets carry item names.
type ChangeSet struct {
	AnylistNew       []string
	AnylistChecked   []string
	AnylistUnchecked []string
	AnylistRenamed   []string
	AnylistDeleted   []string
	AlexaNew         []string
	AlexaDeleted     []string
}

// Empty reports whether the change set contains no entries.
func (cs ChangeSet) Empty() bool {
	return len(cs.AnylistNew) == 0 &&
		len(cs.AnylistChecked) == 0 &&
		len(cs.AnylistUnchecked) == 0 &&
		len(cs.AnylistRenamed) == 0 &&
		len(cs.AnylistDeleted) == 0 &&
		len(cs.AlexaNew) == 0 &&
		len(cs.AlexaDeleted) == 0
}

// Record appends every entry into the journal under its bucket name.
func (cs ChangeSet) Record(j *journal.Journal) {
	buckets := []struct {
		name    string
		entries []string
	}{
		{journal.BucketAnylistNew, cs.AnylistNew},
		{journal.BucketAnylistChecked, cs.AnylistChecked},
		{journal.BucketAnylistUnchecked, cs.AnylistUnchecked},
		{journal.BucketAnylistRenamed, cs.AnylistRenamed},
		{journal.BucketAnylistDeleted, cs.AnylistDeleted},
		{journal.BucketAlexaNew, cs.AlexaNew},
		{journal.BucketAlexaDeleted, cs.AlexaDeleted},
	}
	for _, b := range buckets {
		for _, entry := range b.entries {
			j.Add(b.name, entry)
		}
	}
}
