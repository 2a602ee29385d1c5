// Package types defines the data model shared by the sync core and the two
// list clients: the id-bearing AnyList side and the name-only Alexa side.
package types

// Item is a single AnyList shopping-list item. ID is the sole identity and is
// immutable for the lifetime of the item; Name and Checked are mutable.
type Item struct {
	ID      string
	Name    string
	Checked bool

	// Carried opaquely for round-tripping; the sync core never inspects these.
	Quantity        string
	Details         string
	CategoryMatchID string
}

// Active reports whether the item should be visible on the Alexa side.
func (it Item) Active() bool {
	return !it.Checked
}

// List is an ordered collection of items. Membership is by ID; name lookup is
// a secondary index and resolves duplicates to the first match.
type List []Item

// ByID returns the item with the given id.
func (l List) ByID(id string) (Item, bool) {
	for _, it := range l {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// ByName returns the first item with the given name.
func (l List) ByName(name string) (Item, bool) {
	for _, it := range l {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// Contains reports whether an item with the given id is present.
func (l List) Contains(id string) bool {
	_, ok := l.ByID(id)
	return ok
}

// SetChecked updates the checked flag of the item with the given id in place.
func (l List) SetChecked(id string, checked bool) {
	for i := range l {
		if l[i].ID == id {
			l[i].Checked = checked
			return
		}
	}
}

// ActiveNames returns the set of names of unchecked items.
func (l List) ActiveNames() map[string]bool {
	names := make(map[string]bool, len(l))
	for _, it := range l {
		if !it.Checked {
			names[it.Name] = true
		}
	}
	return names
}

// DuplicateActiveNames returns active names that appear on more than one
// unchecked item. The Alexa side has one slot per name, so these collapse.
func (l List) DuplicateActiveNames() []string {
	seen := make(map[string]int, len(l))
	for _, it := range l {
		if !it.Checked {
			seen[it.Name]++
		}
	}
	var dups []string
	for _, it := range l {
		if !it.Checked && seen[it.Name] > 1 {
			dups = append(dups, it.Name)
			seen[it.Name] = 0 // report once
		}
	}
	return dups
}
