// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package plugins_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plugins "github.com/garcia/cassium/internal/plugin"
	"github.com/garcia/cassium/pkg/errutil"
	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

type managerFixture struct {
	root   string
	host   *fakeHost
	store  *memStore
	reg    *plugins.Registry
	mgr    *plugins.Manager
	logBuf *bytes.Buffer
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		root:   t.TempDir(),
		host:   newFakeHost(),
		store:  newMemStore(),
		reg:    plugins.NewRegistry(),
		logBuf: &bytes.Buffer{},
	}
	f.mgr = plugins.NewManager(f.root, f.reg,
		plugins.WithHost(f.host),
		plugins.WithStateStore(f.store),
		plugins.WithLogger(slog.New(slog.NewTextHandler(f.logBuf, nil))),
	)
	return f
}

func (f *managerFixture) unit(t *testing.T, rel, content string) {
	t.Helper()
	writeFile(t, filepath.Join(f.root, filepath.FromSlash(rel)), content)
}

func TestManager_DiscoverVisitsTreeInSortedOrder(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "zeta.fake", "Zeta")
	f.unit(t, "alpha.fake", "Alpha\nBeta")
	f.unit(t, "games/dice.fake", "Dice")
	f.unit(t, "games/cards/poker.fake", "Poker")
	f.unit(t, ".hidden/secret.fake", "Secret")
	f.unit(t, "notes.txt", "NotAPlugin")

	require.NoError(t, f.mgr.Discover(context.Background()))

	assert.Equal(t, []string{
		"alpha.Alpha",
		"alpha.Beta",
		"games.cards.poker.Poker",
		"games.dice.Dice",
		"zeta.Zeta",
	}, f.reg.Names())
	assert.Contains(t, f.logBuf.String(), "imported")
}

func TestManager_DiscoverMissingDirectory(t *testing.T) {
	reg := plugins.NewRegistry()
	var buf bytes.Buffer
	mgr := plugins.NewManager(filepath.Join(t.TempDir(), "absent"), reg,
		plugins.WithHost(newFakeHost()),
		plugins.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	require.NoError(t, mgr.Discover(context.Background()))
	assert.Equal(t, 0, reg.Len())
	assert.Contains(t, buf.String(), "plugin directory does not exist")
}

func TestManager_DiscoverWarnsOnEmptyUnit(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "empty.fake", "")
	f.unit(t, "full.fake", "Full")

	require.NoError(t, f.mgr.Discover(context.Background()))

	assert.Equal(t, []string{"full.Full"}, f.reg.Names())
	assert.Contains(t, f.logBuf.String(), "level=WARN")
	assert.Contains(t, f.logBuf.String(), "unit defines no plugins")
}

func TestManager_DiscoverSkipsBrokenUnit(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "broken.fake", "!fail")
	f.unit(t, "good.fake", "Good")

	require.NoError(t, f.mgr.Discover(context.Background()))

	assert.Equal(t, []string{"good.Good"}, f.reg.Names())
	assert.Contains(t, f.logBuf.String(), "failed to load plugin unit")
}

func TestManager_DiscoverAbortsOnStateRestoreFailure(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "a.fake", "A")
	f.unit(t, "b.fake", "!badstate\nB")
	f.unit(t, "c.fake", "C")
	f.store.slots["b.B"] = []byte("3")

	err := f.mgr.Discover(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, plugins.ErrStateRestore)
	errutil.AssertErrorContext(t, err, "plugin", "b.B")
	assert.Equal(t, []string{"a.A"}, f.reg.Names())
}

func TestManager_DiscoverAbortsOnStoreReadFailure(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "a.fake", "A")
	f.store.loadErr = errors.New("disk I/O error")

	err := f.mgr.Discover(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, plugins.ErrStateRestore)
}

func TestManager_DiscoverRestoresState(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "counter.fake", "Counter")
	f.store.slots["counter.Counter"] = []byte("41")

	require.NoError(t, f.mgr.Discover(context.Background()))

	assert.Equal(t, 41, pluginNamed(t, f.reg, "counter.Counter").count)
}

func TestManager_LoadUnit(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "fun/dice.fake", "Dice\nCoin")

	names, err := f.mgr.Load(context.Background(), "fun.dice")
	require.NoError(t, err)
	assert.Equal(t, []string{"fun.dice.Dice", "fun.dice.Coin"}, names)
}

func TestManager_LoadSingleType(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "fun/dice.fake", "Dice\nCoin")

	names, err := f.mgr.Load(context.Background(), "fun.dice.Coin")
	require.NoError(t, err)
	assert.Equal(t, []string{"fun.dice.Coin"}, names)
	assert.Equal(t, []string{"fun.dice.Coin"}, f.reg.Names())
}

func TestManager_LoadDirectory(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "fun/dice.fake", "Dice")
	f.unit(t, "fun/empty.fake", "")
	f.unit(t, "fun/coin.fake", "Coin")

	names, err := f.mgr.Load(context.Background(), "fun")
	require.NoError(t, err)
	assert.Equal(t, []string{"fun.coin.Coin", "fun.dice.Dice"}, names)
}

func TestManager_LoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		units map[string]string
		path  string
		code  string
	}{
		{"unknown unit", nil, "nothing.here", plugins.CodeNotFound},
		{"unknown type", map[string]string{"hello.fake": "Hello"}, "hello.Goodbye", plugins.CodeNoPlugins},
		{"empty unit", map[string]string{"empty.fake": ""}, "empty", plugins.CodeNoPlugins},
		{"empty directory", map[string]string{"dir/empty.fake": ""}, "dir", plugins.CodeNoPlugins},
		{"path traversal", nil, "..", plugins.CodeInvalidPath},
		{"empty segment", nil, "fun..dice", plugins.CodeInvalidPath},
		{"separator in segment", nil, "fun/dice", plugins.CodeInvalidPath},
		{"broken unit", map[string]string{"broken.fake": "!fail"}, "broken", plugins.CodeLoadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture(t)
			for rel, content := range tt.units {
				f.unit(t, rel, content)
			}

			_, err := f.mgr.Load(context.Background(), tt.path)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestManager_ReloadReplacesInPlaceWithFreshestState(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "a.fake", "A")
	f.unit(t, "b.fake", "B")
	f.unit(t, "c.fake", "C")
	ctx := context.Background()

	require.NoError(t, f.mgr.Discover(ctx))
	old := pluginNamed(t, f.reg, "b.B")
	old.count = 5

	names, err := f.mgr.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.B"}, names)

	assert.Equal(t, []string{"a.A", "b.B", "c.C"}, f.reg.Names())
	fresh := pluginNamed(t, f.reg, "b.B")
	assert.NotSame(t, old, fresh)
	assert.Equal(t, 2, fresh.generation)
	assert.Equal(t, 5, fresh.count)
	assert.Contains(t, f.logBuf.String(), "reloaded")
}

func TestManager_ReloadFailureKeepsOldInstance(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "a.fake", "A")
	ctx := context.Background()
	require.NoError(t, f.mgr.Discover(ctx))
	old := pluginNamed(t, f.reg, "a.A")

	f.unit(t, "a.fake", "!fail")
	_, err := f.mgr.Load(ctx, "a")
	require.Error(t, err)

	assert.Same(t, old, pluginNamed(t, f.reg, "a.A"))
}

func TestManager_SaveAll(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "a.fake", "A\nB")
	ctx := context.Background()
	require.NoError(t, f.mgr.Discover(ctx))
	pluginNamed(t, f.reg, "a.A").count = 1
	pluginNamed(t, f.reg, "a.B").count = 2

	require.NoError(t, f.mgr.SaveAll(ctx))

	assert.Equal(t, "1", string(f.store.slots["a.A"]))
	assert.Equal(t, "2", string(f.store.slots["a.B"]))
}

func TestManager_SaveAllPropagatesStoreError(t *testing.T) {
	f := newManagerFixture(t)
	f.unit(t, "a.fake", "A")
	ctx := context.Background()
	require.NoError(t, f.mgr.Discover(ctx))
	f.store.saveErr = errors.New("read-only file system")

	err := f.mgr.SaveAll(ctx)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, plugins.CodeStateSave)
}

func TestManager_RestoreAndSaveOutsideRegistry(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.store.slots["builtin.test.Counter"] = []byte("9")
	p := &fakePlugin{Base: pluginsdk.Base{ID: "builtin.test.Counter"}}

	require.NoError(t, f.mgr.Restore(ctx, p))
	assert.Equal(t, 9, p.count)
	assert.Equal(t, 0, f.reg.Len())

	p.count = 10
	require.NoError(t, f.mgr.SavePlugin(ctx, p))
	assert.Equal(t, "10", string(f.store.slots["builtin.test.Counter"]))
}

func TestManager_UnitForFile(t *testing.T) {
	f := newManagerFixture(t)

	unit, ok := f.mgr.UnitForFile(filepath.Join(f.root, "fun", "dice.fake"))
	require.True(t, ok)
	assert.Equal(t, "fun.dice", unit.Path)

	_, ok = f.mgr.UnitForFile(filepath.Join(f.root, "fun", "dice.txt"))
	assert.False(t, ok)

	_, ok = f.mgr.UnitForFile(filepath.Join(filepath.Dir(f.root), "outside.fake"))
	assert.False(t, ok)
}
