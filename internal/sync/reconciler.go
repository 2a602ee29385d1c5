package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexa2anylist/alexa2anylist/internal/journal"
)

// Reconciler applies a journaled change set to both sides, AnyList
// authoritative on conflict. Every mutation is predicated on the local view
// of the opposite side, so replaying a partially committed journal never
// double-applies work.
type Reconciler struct {
	primary   PrimaryClient
	secondary SecondaryDriver
	journal   *journal.Journal
	log       *slog.Logger
}

// NewReconciler wires a reconciler to the two clients and the journal.
func NewReconciler(primary PrimaryClient, secondary SecondaryDriver, j *journal.Journal, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{primary: primary, secondary: secondary, journal: j, log: logger}
}

// Commit applies the journal contents: AnyList-originated buckets first
// (authority pushes to Alexa), then Alexa-originated buckets (user edits
// reflect back to AnyList). cur is mutated in place to track applied
// operations so the caller can promote it to the next previous snapshot.
// prev supplies the names of deleted and pre-rename items; during a startup
// replay prev may be empty, in which case unresolvable entries are skipped
// and the divergence check afterwards cleans up.
//
// On success the journal is reset and re-persisted. On error the journal is
// left as saved, preserving intent for the next start.
func (r *Reconciler) Commit(ctx context.Context, prev Snapshot, cur *Snapshot) error {
	if !r.journal.IsDirty() {
		r.log.Info("Journal is clean, nothing to commit")
		return nil
	}

	r.log.Debug("Committing transaction", "journal", r.journal.String())

	for _, id := range r.journal.Get(journal.BucketAnylistNew) {
		it, ok := cur.Primary.ByID(id)
		if !ok {
			r.log.Warn("Journaled new item no longer on AnyList, skipping", "id", id)
			continue
		}
		if containsName(cur.Secondary, it.Name) {
			continue
		}
		r.log.Debug("Adding item to Alexa", "name", it.Name)
		if err := r.secondary.Add(ctx, it.Name); err != nil {
			return fmt.Errorf("adding %q to alexa: %w", it.Name, err)
		}
		cur.Secondary = append(cur.Secondary, it.Name)
	}

	for _, id := range r.journal.Get(journal.BucketAnylistChecked) {
		it, ok := cur.Primary.ByID(id)
		if !ok {
			r.log.Warn("Journaled checked item no longer on AnyList, skipping", "id", id)
			continue
		}
		if !containsName(cur.Secondary, it.Name) {
			continue
		}
		r.log.Debug("Removing item from Alexa", "name", it.Name)
		if err := r.secondary.Remove(ctx, it.Name); err != nil {
			return fmt.Errorf("removing %q from alexa: %w", it.Name, err)
		}
		cur.Secondary = removeName(cur.Secondary, it.Name)
	}

	for _, id := range r.journal.Get(journal.BucketAnylistUnchecked) {
		it, ok := cur.Primary.ByID(id)
		if !ok {
			r.log.Warn("Journaled unchecked item no longer on AnyList, skipping", "id", id)
			continue
		}
		if containsName(cur.Secondary, it.Name) {
			continue
		}
		r.log.Debug("Adding item to Alexa", "name", it.Name)
		if err := r.secondary.Add(ctx, it.Name); err != nil {
			return fmt.Errorf("adding %q to alexa: %w", it.Name, err)
		}
		cur.Secondary = append(cur.Secondary, it.Name)
	}

	for _, id := range r.journal.Get(journal.BucketAnylistRenamed) {
		it, ok := cur.Primary.ByID(id)
		if !ok {
			r.log.Warn("Journaled renamed item no longer on AnyList, skipping", "id", id)
			continue
		}
		old, ok := prev.Primary.ByID(id)
		if !ok {
			// Replay without a previous snapshot; the old name is gone.
			r.log.Warn("Old name for renamed item unknown, skipping", "id", id, "name", it.Name)
			continue
		}
		if !containsName(cur.Secondary, old.Name) || containsName(cur.Secondary, it.Name) {
			continue
		}
		r.log.Debug("Renaming item on Alexa", "old", old.Name, "new", it.Name)
		if err := r.secondary.Rename(ctx, old.Name, it.Name); err != nil {
			return fmt.Errorf("renaming %q to %q on alexa: %w", old.Name, it.Name, err)
		}
		cur.Secondary = renameName(cur.Secondary, old.Name, it.Name)
	}

	for _, id := range r.journal.Get(journal.BucketAnylistDeleted) {
		old, ok := prev.Primary.ByID(id)
		if !ok {
			r.log.Warn("Name for deleted item unknown, skipping", "id", id)
			continue
		}
		if !containsName(cur.Secondary, old.Name) {
			continue
		}
		r.log.Debug("Removing item from Alexa", "name", old.Name)
		if err := r.secondary.Remove(ctx, old.Name); err != nil {
			return fmt.Errorf("removing %q from alexa: %w", old.Name, err)
		}
		cur.Secondary = removeName(cur.Secondary, old.Name)
	}

	for _, name := range r.journal.Get(journal.BucketAlexaNew) {
		it, ok := cur.Primary.ByName(name)
		if ok && !it.Checked {
			continue
		}
		r.log.Debug("Adding item to AnyList", "name", name)
		res, err := r.primary.AddOrUncheck(ctx, name)
		if err != nil {
			return fmt.Errorf("adding %q to anylist: %w", name, err)
		}
		if ok {
			cur.Primary.SetChecked(it.ID, false)
		} else {
			cur.Primary = append(cur.Primary, res)
		}
	}

	for _, name := range r.journal.Get(journal.BucketAlexaDeleted) {
		it, ok := cur.Primary.ByName(name)
		if !ok || it.Checked {
			continue
		}
		r.log.Debug("Checking item on AnyList", "name", name)
		if err := r.primary.Check(ctx, it.ID); err != nil {
			return fmt.Errorf("checking %q on anylist: %w", name, err)
		}
		cur.Primary.SetChecked(it.ID, true)
	}

	r.journal.Reset()
	if err := r.journal.Save(); err != nil {
		return fmt.Errorf("saving clean journal: %w", err)
	}
	r.log.Debug("Transaction committed")
	return nil
}

// Clobber forces the Alexa list into agreement with AnyList: active AnyList
// items are added, checked ones removed, and Alexa names with no active
// AnyList counterpart removed. This is the one-shot startup path and the only
// place that deletes from Alexa without journaling first.
func (r *Reconciler) Clobber(ctx context.Context, cur *Snapshot) error {
	r.log.Info("Clobbering Alexa list with AnyList state")

	for _, it := range cur.Primary {
		switch {
		case it.Checked && containsName(cur.Secondary, it.Name):
			r.log.Debug("Removing item from Alexa", "name", it.Name)
			if err := r.secondary.Remove(ctx, it.Name); err != nil {
				return fmt.Errorf("removing %q from alexa: %w", it.Name, err)
			}
			cur.Secondary = removeName(cur.Secondary, it.Name)
		case !it.Checked && !containsName(cur.Secondary, it.Name):
			r.log.Debug("Adding item to Alexa", "name", it.Name)
			if err := r.secondary.Add(ctx, it.Name); err != nil {
				return fmt.Errorf("adding %q to alexa: %w", it.Name, err)
			}
			cur.Secondary = append(cur.Secondary, it.Name)
		}
	}

	active := cur.Primary.ActiveNames()
	for _, name := range append([]string(nil), cur.Secondary...) {
		if active[name] {
			continue
		}
		r.log.Debug("Removing item from Alexa", "name", name)
		if err := r.secondary.Remove(ctx, name); err != nil {
			return fmt.Errorf("removing %q from alexa: %w", name, err)
		}
		cur.Secondary = removeName(cur.Secondary, name)
	}

	return nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func renameName(names []string, oldName, newName string) []string {
	for i, n := range names {
		if n == oldName {
			names[i] = newName
		}
	}
	return names
}
