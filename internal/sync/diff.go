package sync

import "github.com/alexa2anylist/alexa2anylist/internal/types"

// Diff computes the change set between the previous and current snapshots of
// both sides. It is a pure function: no I/O, deterministic output, bucket
// order follows list traversal order. Callers must not rely on that order.
//
// Two deliberate asymmetries:
//   - a check-state change suppresses rename detection for the same item in
//     the same cycle (the check path already rewrites Alexa presence; the
//     rename surfaces on the next cycle's diff);
//   - an item that is brand new but already checked is ignored, since it
//     cannot affect the Alexa side.
func Diff(prevPrimary, curPrimary types.List, prevSecondary, curSecondary []string) ChangeSet {
	var cs ChangeSet

	for _, it := range curPrimary {
		old, existed := prevPrimary.ByID(it.ID)
		switch {
		case existed && it.Checked != old.Checked:
			if it.Checked {
				cs.AnylistChecked = append(cs.AnylistChecked, it.ID)
			} else {
				cs.AnylistUnchecked = append(cs.AnylistUnchecked, it.ID)
			}
		case existed && it.Name != old.Name:
			cs.AnylistRenamed = append(cs.AnylistRenamed, it.ID)
		case !existed && !it.Checked:
			cs.AnylistNew = append(cs.AnylistNew, it.ID)
		}
	}
	for _, old := range prevPrimary {
		if !curPrimary.Contains(old.ID) {
			cs.AnylistDeleted = append(cs.AnylistDeleted, old.ID)
		}
	}

	prevSet := nameSet(prevSecondary)
	curSet := nameSet(curSecondary)
	for _, name := range curSecondary {
		if !prevSet[name] {
			cs.AlexaNew = append(cs.AlexaNew, name)
			prevSet[name] = true // collapse duplicates
		}
	}
	for _, name := range prevSecondary {
		if !curSet[name] {
			cs.AlexaDeleted = append(cs.AlexaDeleted, name)
			curSet[name] = true
		}
	}

	return cs
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
