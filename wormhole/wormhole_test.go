package wormhole

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/najoast/physarum/topology"
)

func wh(id, sourceType, eventType, role, action string) Wormhole {
	return Wormhole{
		ID:      id,
		From:    From{SourceType: sourceType, EventType: eventType},
		To:      To{TargetAgentRole: role, ActionType: action},
		Enabled: true,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, wh("a", "api", "click", "bot", "notify").Validate())

	bad := wh("", "api", "", "bot", "notify")
	err := bad.Validate()
	require.ErrorIs(t, err, ErrInvalidWormhole)
	assert.Contains(t, err.Error(), "ID is required")
	assert.Contains(t, err.Error(), "From.EventType is required")
}

func TestResolve(t *testing.T) {
	disabled := wh("off", "cron", "tick", "janitor", "sweep")
	disabled.Enabled = false

	decls, err := Resolve([]Wormhole{
		wh("a", "api", "click", "bot", "notify"),
		disabled,
		wh("b", "api", "", "bot", "notify"),
		wh("a", "api", "view", "bot", "log"),
		wh("c", "webhook", "push", "ci", "build"),
	})

	require.ErrorIs(t, err, ErrInvalidWormhole)
	assert.Contains(t, err.Error(), "entry 2")
	assert.Contains(t, err.Error(), `duplicate id "a"`)

	require.Len(t, decls, 2)
	assert.Equal(t, topology.OriginID("api", "click"), decls[0].FromID())
	assert.Equal(t, topology.DestinationID("ci", "build"), decls[1].ToID())
}

func TestResolveEmpty(t *testing.T) {
	decls, err := Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, decls)
}

const sampleYAML = `
wormholes:
  - id: api-click
    from: {sourceType: api, eventType: click}
    to: {targetAgentRole: bot, actionType: notify}
  - id: cron-tick
    from: {sourceType: cron, eventType: tick}
    to: {targetAgentRole: janitor, actionType: sweep}
    enabled: false
`

func TestFileStoreList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wormholes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	store := NewFileStore(path, zap.NewNop())
	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, wh("api-click", "api", "click", "bot", "notify"), list[0])
	assert.Equal(t, "cron-tick", list[1].ID)
	assert.False(t, list[1].Enabled)

	decls, err := Load(context.Background(), store)
	require.NoError(t, err)
	assert.Len(t, decls, 1)
}

func TestFileStoreErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileStore(filepath.Join(dir, "missing.yaml"), nil).List(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("wormholes: {not: [a list"), 0o644))
	_, err = NewFileStore(bad, nil).List(context.Background())
	assert.Error(t, err)
}

func TestFileStoreSaveRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "wormholes.yaml"), nil)
	off := wh("b", "cron", "tick", "janitor", "sweep")
	off.Enabled = false

	require.NoError(t, store.Save([]Wormhole{wh("a", "api", "click", "bot", "notify"), off}))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Wormhole{wh("a", "api", "click", "bot", "notify"), off}, list)
}

func TestFileStoreWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wormholes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	store := NewFileStore(path, zap.NewNop())
	store.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func() { changed <- struct{}{} })
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, store.Save([]Wormhole{wh("x", "api", "view", "bot", "log")}))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("change was not reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func openMemory(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStorePutList(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)

	require.NoError(t, store.Put(ctx, wh("b", "webhook", "push", "ci", "build")))
	require.NoError(t, store.Put(ctx, wh("a", "api", "click", "bot", "notify")))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "insertion order, not id order")
	assert.Equal(t, "a", list[1].ID)

	// Updating keeps the original position.
	updated := wh("b", "webhook", "push", "ci", "test")
	updated.Enabled = false
	require.NoError(t, store.Put(ctx, updated))

	list, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, updated, list[0])

	decls, err := Load(ctx, store)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, topology.OriginID("api", "click"), decls[0].FromID())
}

func TestSQLStoreRejectsInvalid(t *testing.T) {
	store := openMemory(t)

	err := store.Put(context.Background(), wh("a", "", "click", "bot", "notify"))
	assert.ErrorIs(t, err, ErrInvalidWormhole)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)

	require.NoError(t, store.Put(ctx, wh("a", "api", "click", "bot", "notify")))
	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "never-existed"))

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLStoreFilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wormholes.db")

	store, err := OpenSQLStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, wh("a", "api", "click", "bot", "notify")))
	require.NoError(t, store.Close())

	store, err = OpenSQLStore(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
}
