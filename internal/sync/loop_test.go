package sync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexa2anylist/alexa2anylist/internal/journal"
)

type harness struct {
	loop        *Loop
	journal     *journal.Journal
	journalPath string
	primary     *fakePrimary
	secondary   *fakeSecondary
}

func newHarness(t *testing.T, p *fakePrimary, s *fakeSecondary) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.json")
	return reopenHarness(path, p, s)
}

// reopenHarness simulates a process restart sharing the same journal file.
func reopenHarness(path string, p *fakePrimary, s *fakeSecondary) *harness {
	j := journal.New(path, nil)
	return &harness{
		loop:        NewLoop(p, s, j, LoopConfig{}, nil, nil),
		journal:     j,
		journalPath: path,
		primary:     p,
		secondary:   s,
	}
}

func (h *harness) converged(t *testing.T) {
	t.Helper()
	snap := Snapshot{Primary: h.primary.items, Secondary: h.secondary.names}
	assert.True(t, snap.InSync(), "primary active names %v != secondary %v",
		h.primary.items.ActiveNames(), h.secondary.names)
}

func TestScenarioAddOnPrimary(t *testing.T) {
	h := newHarness(t, newFakePrimary(), newFakeSecondary())
	ctx := context.Background()
	require.NoError(t, h.loop.Startup(ctx))

	h.primary.items = append(h.primary.items, item("a", "apple", false))
	require.NoError(t, h.loop.SyncOnce(ctx))

	assert.Equal(t, []string{"apple"}, h.secondary.names)
	h.converged(t)
}

func TestScenarioCheckOnPrimary(t *testing.T) {
	h := newHarness(t, newFakePrimary(item("a", "apple", false)), newFakeSecondary("apple"))
	ctx := context.Background()
	require.NoError(t, h.loop.Startup(ctx))

	h.primary.items.SetChecked("a", true)
	require.NoError(t, h.loop.SyncOnce(ctx))

	assert.Empty(t, h.secondary.names)
	h.converged(t)
}

func TestScenarioAddOnSecondary(t *testing.T) {
	h := newHarness(t, newFakePrimary(), newFakeSecondary())
	ctx := context.Background()
	require.NoError(t, h.loop.Startup(ctx))

	h.secondary.names = append(h.secondary.names, "bread")
	require.NoError(t, h.loop.SyncOnce(ctx))

	got, ok := h.primary.items.ByName("bread")
	require.True(t, ok)
	assert.False(t, got.Checked)
	assert.Equal(t, []string{"bread"}, h.secondary.names)
	h.converged(t)
}

func TestScenarioSecondaryDeleteEchoesAsCheck(t *testing.T) {
	h := newHarness(t, newFakePrimary(item("m", "milk", false)), newFakeSecondary("milk"))
	ctx := context.Background()
	require.NoError(t, h.loop.Startup(ctx))

	h.secondary.names = nil
	require.NoError(t, h.loop.SyncOnce(ctx))

	got, ok := h.primary.items.ByID("m")
	require.True(t, ok)
	assert.True(t, got.Checked)
	assert.Empty(t, h.secondary.names)
	h.converged(t)
}

func TestScenarioRenameOnPrimary(t *testing.T) {
	h := newHarness(t, newFakePrimary(item("x", "milc", false)), newFakeSecondary("milc"))
	ctx := context.Background()
	require.NoError(t, h.loop.Startup(ctx))

	for i := range h.primary.items {
		if h.primary.items[i].ID == "x" {
			h.primary.items[i].Name = "milk"
		}
	}
	require.NoError(t, h.loop.SyncOnce(ctx))

	got, ok := h.primary.items.ByID("x")
	require.True(t, ok)
	assert.Equal(t, "milk", got.Name)
	assert.Equal(t, []string{"milk"}, h.secondary.names)
	h.converged(t)
}

func TestScenarioCrashMidCommitReplays(t *testing.T) {
	h := newHarness(t, newFakePrimary(), newFakeSecondary())
	ctx := context.Background()
	require.NoError(t, h.loop.Startup(ctx))

	// eggs appears on AnyList; the Alexa add dies mid-commit.
	h.primary.items = append(h.primary.items, item("e", "eggs", false))
	h.secondary.failAt = 1
	require.Error(t, h.loop.SyncOnce(ctx))

	// The prepared journal survived on disk.
	onDisk := journal.New(h.journalPath, nil)
	require.True(t, onDisk.IsDirty())
	require.Equal(t, []string{"e"}, onDisk.Get(journal.BucketAnylistNew))

	// Restart: replay within the recovery horizon completes the add.
	h.secondary.failAt = 0
	h.secondary.mutations = 0
	restarted := reopenHarness(h.journalPath, h.primary, h.secondary)
	require.NoError(t, restarted.loop.Startup(ctx))

	assert.Equal(t, []string{"eggs"}, h.secondary.names)
	assert.False(t, restarted.journal.IsDirty())

	onDisk = journal.New(h.journalPath, nil)
	assert.False(t, onDisk.IsDirty())
	h.converged(t)
}

func TestStaleJournalDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")

	// A dirty journal from 20 minutes ago, pointing at an id nobody knows.
	stale := map[string]any{
		"dirty":            true,
		"last_update_time": float64(time.Now().Add(-20*time.Minute).Unix()),
		"data":             map[string][]string{journal.BucketAnylistNew: {"ghost"}},
	}
	raw, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0600))

	h := reopenHarness(path, newFakePrimary(), newFakeSecondary())
	require.NoError(t, h.loop.Startup(context.Background()))

	assert.False(t, h.journal.IsDirty())
	assert.Empty(t, h.secondary.ops, "stale journal must not be replayed")

	onDisk := journal.New(path, nil)
	assert.False(t, onDisk.IsDirty())
}

func TestStartupClobberOnDivergence(t *testing.T) {
	p := newFakePrimary(item("a", "apple", false), item("b", "bread", true))
	s := newFakeSecondary("bread", "stray")
	h := newHarness(t, p, s)

	require.NoError(t, h.loop.Startup(context.Background()))

	assert.ElementsMatch(t, []string{"apple"}, s.names)
	h.converged(t)
}

func TestSecondSyncIsQuiescent(t *testing.T) {
	h := newHarness(t, newFakePrimary(item("a", "apple", false)), newFakeSecondary())
	ctx := context.Background()
	require.NoError(t, h.loop.Startup(ctx)) // clobber brings Alexa up

	require.NoError(t, h.loop.SyncOnce(ctx))
	primaryOps := len(h.primary.ops)
	secondaryOps := len(h.secondary.ops)

	require.NoError(t, h.loop.SyncOnce(ctx))

	assert.Equal(t, primaryOps, len(h.primary.ops), "second run must not mutate AnyList")
	assert.Equal(t, secondaryOps, len(h.secondary.ops), "second run must not mutate Alexa")
	assert.False(t, h.journal.IsDirty())
}

func TestSyncAfterSecondaryEditThenQuiescent(t *testing.T) {
	h := newHarness(t, newFakePrimary(), newFakeSecondary())
	ctx := context.Background()
	require.NoError(t, h.loop.Startup(ctx))

	h.secondary.names = append(h.secondary.names, "bread")
	require.NoError(t, h.loop.SyncOnce(ctx))
	ops := len(h.primary.ops) + len(h.secondary.ops)

	require.NoError(t, h.loop.SyncOnce(ctx))
	assert.Equal(t, ops, len(h.primary.ops)+len(h.secondary.ops))
	h.converged(t)
}

func TestConcurrentAddBothSides(t *testing.T) {
	h := newHarness(t, newFakePrimary(), newFakeSecondary())
	ctx := context.Background()
	require.NoError(t, h.loop.Startup(ctx))

	// "milk" added on both sides between cycles: one add applies, the
	// other no-ops behind its predicate.
	h.primary.items = append(h.primary.items, item("m", "milk", false))
	h.secondary.names = append(h.secondary.names, "milk")
	require.NoError(t, h.loop.SyncOnce(ctx))

	assert.Equal(t, []string{"milk"}, h.secondary.names)
	count := 0
	for _, it := range h.primary.items {
		if it.Name == "milk" {
			count++
		}
	}
	assert.Equal(t, 1, count, "no duplicate item may be created")
	h.converged(t)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	h := newHarness(t, newFakePrimary(), newFakeSecondary())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
}

func TestNewButCheckedItemIgnored(t *testing.T) {
	h := newHarness(t, newFakePrimary(), newFakeSecondary())
	ctx := context.Background()
	require.NoError(t, h.loop.Startup(ctx))

	h.primary.items = append(h.primary.items, item("z", "archived", true))
	require.NoError(t, h.loop.SyncOnce(ctx))

	assert.Empty(t, h.secondary.names)
	h.converged(t)
}

func TestPreviousSnapshotPromotion(t *testing.T) {
	h := newHarness(t, newFakePrimary(), newFakeSecondary())
	ctx := context.Background()
	require.NoError(t, h.loop.Startup(ctx))

	h.secondary.names = append(h.secondary.names, "bread")
	require.NoError(t, h.loop.SyncOnce(ctx))

	prev := h.loop.Previous()
	got, ok := prev.Primary.ByName("bread")
	require.True(t, ok, "promoted snapshot must include the item created on AnyList")
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, []string{"bread"}, prev.Secondary)
}
