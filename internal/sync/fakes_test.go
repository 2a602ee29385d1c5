package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/alexa2anylist/alexa2anylist/internal/types"
)

var errInjected = errors.New("injected failure")

// fakePrimary is an in-memory PrimaryClient.
type fakePrimary struct {
	items  types.List
	nextID atomic.Int64
	ops    []string
}

func newFakePrimary(items ...types.Item) *fakePrimary {
	return &fakePrimary{items: items}
}

func (f *fakePrimary) Snapshot(ctx context.Context) (types.List, error) {
	out := make(types.List, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakePrimary) Add(ctx context.Context, name string) (types.Item, error) {
	it := types.Item{ID: fmt.Sprintf("gen-%d", f.nextID.Add(1)), Name: name}
	f.items = append(f.items, it)
	f.ops = append(f.ops, "add:"+name)
	return it, nil
}

func (f *fakePrimary) Remove(ctx context.Context, id string) error {
	out := f.items[:0]
	for _, it := range f.items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	f.items = out
	f.ops = append(f.ops, "remove:"+id)
	return nil
}

func (f *fakePrimary) Check(ctx context.Context, id string) error {
	f.items.SetChecked(id, true)
	f.ops = append(f.ops, "check:"+id)
	return nil
}

func (f *fakePrimary) Uncheck(ctx context.Context, id string) error {
	f.items.SetChecked(id, false)
	f.ops = append(f.ops, "uncheck:"+id)
	return nil
}

func (f *fakePrimary) Rename(ctx context.Context, id, name string) error {
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Name = name
		}
	}
	f.ops = append(f.ops, "rename:"+id+":"+name)
	return nil
}

func (f *fakePrimary) AddOrUncheck(ctx context.Context, name string) (types.Item, error) {
	for i := range f.items {
		if f.items[i].Name == name {
			f.items[i].Checked = false
			f.ops = append(f.ops, "uncheck:"+f.items[i].ID)
			return f.items[i], nil
		}
	}
	return f.Add(ctx, name)
}

// fakeSecondary is an in-memory SecondaryDriver with optional fault
// injection: failAt > 0 makes the nth mutation (1-based) fail.
type fakeSecondary struct {
	names     []string
	ops       []string
	mutations int
	failAt    int
}

func newFakeSecondary(names ...string) *fakeSecondary {
	return &fakeSecondary{names: names}
}

func (f *fakeSecondary) maybeFail() error {
	f.mutations++
	if f.failAt > 0 && f.mutations >= f.failAt {
		return errInjected
	}
	return nil
}

func (f *fakeSecondary) Snapshot(ctx context.Context) ([]string, error) {
	return append([]string(nil), f.names...), nil
}

func (f *fakeSecondary) Add(ctx context.Context, name string) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	f.names = append(f.names, name)
	f.ops = append(f.ops, "add:"+name)
	return nil
}

func (f *fakeSecondary) Remove(ctx context.Context, name string) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	out := f.names[:0]
	for _, n := range f.names {
		if n != name {
			out = append(out, n)
		}
	}
	f.names = out
	f.ops = append(f.ops, "remove:"+name)
	return nil
}

func (f *fakeSecondary) Rename(ctx context.Context, oldName, newName string) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	for i, n := range f.names {
		if n == oldName {
			f.names[i] = newName
		}
	}
	f.ops = append(f.ops, "rename:"+oldName+":"+newName)
	return nil
}
