package script

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memOps is an in-memory Operations used to observe the synchronizer.
type memOps struct {
	mu      sync.Mutex
	scripts map[string]NamedScript
	removed []string
}

func newMemOps(names ...string) *memOps {
	m := &memOps{scripts: make(map[string]NamedScript)}
	for _, n := range names {
		m.scripts[n], _ = NewNamedScript(n, "return 0;")
	}
	return m
}

func (m *memOps) Register(_ context.Context, s ServerSideScript) (NamedScript, error) {
	if err := validateScript(s); err != nil {
		return NamedScript{}, localError("register", "", err)
	}
	ns, err := MustScript(s.Code(), resolveParams(s)...).Named(nameOf(s))
	if err != nil {
		return NamedScript{}, localError("register", "", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[ns.Name()] = ns
	return ns, nil
}

func (m *memOps) Execute(ctx context.Context, s ServerSideScript, args ...any) (any, error) {
	return nil, nil
}

func (m *memOps) Call(ctx context.Context, name string, args ...any) (any, error) {
	return nil, nil
}

func (m *memOps) Exists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.scripts[normalizeName(name)]
	return ok, nil
}

func (m *memOps) ScriptNames(context.Context) (NameSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := NewNameSet()
	for n := range m.scripts {
		set[n] = struct{}{}
	}
	return set, nil
}

func (m *memOps) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scripts[name]; !ok {
		return &ScriptError{Op: "remove", Name: name, Kind: ErrNotFound}
	}
	delete(m.scripts, name)
	m.removed = append(m.removed, name)
	return nil
}

func (m *memOps) Lookup(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scripts[name]
	if !ok {
		return "", &ScriptError{Op: "lookup", Name: name, Kind: ErrNotFound}
	}
	return s.Code(), nil
}

func (m *memOps) get(name string) (NamedScript, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scripts[name]
	return s, ok
}

func writeFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
}

func TestSynchronizer_Load(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "scripts/add.js", addCode)
	writeFile(t, fsys, "scripts/math/mul.js", "return a * b;")
	writeFile(t, fsys, "scripts/math/mul.yaml", "params: [a, b]\ndescription: multiply two numbers\n")
	writeFile(t, fsys, "scripts/renamed.js", "return 1;")
	writeFile(t, fsys, "scripts/renamed.yaml", "name: greeting\n")
	writeFile(t, fsys, "scripts/broken.js", "function() {")
	writeFile(t, fsys, "scripts/README.md", "not a script")

	s := NewSynchronizer(fsys, "scripts", newMemOps())
	files, failed, err := s.Load()
	require.NoError(t, err)

	require.Len(t, files, 3)
	assert.Equal(t, "add", files[0].Script.Name())
	assert.Equal(t, "math::mul", files[1].Script.Name())
	assert.Equal(t, []string{"a", "b"}, files[1].Script.Params())
	assert.Equal(t, "multiply two numbers", files[1].Description)
	assert.Equal(t, "greeting", files[2].Script.Name())

	require.Contains(t, failed, filepath.Join("scripts", "broken.js"))
	assert.ErrorIs(t, failed[filepath.Join("scripts", "broken.js")], ErrMalformedScript)
}

func TestSynchronizer_Sync(t *testing.T) {
	ctx := context.Background()

	t.Run("registers files", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		writeFile(t, fsys, "scripts/add.js", addCode)
		ops := newMemOps("stale")

		report, err := NewSynchronizer(fsys, "scripts", ops).Sync(ctx)
		require.NoError(t, err)
		assert.True(t, report.OK())
		assert.Equal(t, []string{"add"}, report.Registered)
		assert.Empty(t, report.Removed)

		ref, ok := ops.get("add")
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, ref.Params())
		_, ok = ops.get("stale")
		assert.True(t, ok)
	})

	t.Run("prune removes functions without files", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		writeFile(t, fsys, "scripts/add.js", addCode)
		ops := newMemOps("stale", "add")

		report, err := NewSynchronizer(fsys, "scripts", ops, WithPrune(true)).Sync(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"stale"}, report.Removed)
		assert.Equal(t, []string{"stale"}, ops.removed)
	})

	t.Run("prune keeps functions of files that fail to load", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		writeFile(t, fsys, "scripts/add.js", "function(a, b) { return a + b;")
		writeFile(t, fsys, "scripts/mul.js", "if (a) { return a * b;")
		writeFile(t, fsys, "scripts/mul.yaml", "name: math::mul\nparams: [a, b]\n")
		ops := newMemOps("stale", "add", "math::mul")

		report, err := NewSynchronizer(fsys, "scripts", ops, WithPrune(true)).Sync(ctx)
		require.NoError(t, err)
		assert.Contains(t, report.Failed, filepath.Join("scripts", "add.js"))
		assert.Equal(t, []string{"stale"}, report.Removed)
		_, ok := ops.get("add")
		assert.True(t, ok, "a broken file must not remove its working function")
		_, ok = ops.get("math::mul")
		assert.True(t, ok, "the manifest name is protected too")
	})

	t.Run("prune is skipped when a failed file cannot be named", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		writeFile(t, fsys, "scripts/add.js", "function(a, b) { return a + b;")
		writeFile(t, fsys, "scripts/add.yaml", "name: [unclosed\n")
		ops := newMemOps("stale", "add")

		report, err := NewSynchronizer(fsys, "scripts", ops, WithPrune(true)).Sync(ctx)
		require.NoError(t, err)
		assert.False(t, report.OK())
		assert.Empty(t, report.Removed)
		assert.Empty(t, ops.removed)
	})

	t.Run("reports bad files", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		writeFile(t, fsys, "scripts/bad.js", "   ")
		writeFile(t, fsys, "scripts/bad-name.js", "return 1;")

		report, err := NewSynchronizer(fsys, "scripts", newMemOps()).Sync(ctx)
		require.NoError(t, err)
		assert.False(t, report.OK())
		assert.Len(t, report.Failed, 2)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := NewSynchronizer(afero.NewMemMapFs(), "nowhere", newMemOps()).Sync(ctx)
		assert.Error(t, err)
	})
}

func TestSynchronizer_HandleEvent(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	ops := newMemOps()
	s := NewSynchronizer(fsys, "scripts", ops)

	path := filepath.Join("scripts", "add.js")
	writeFile(t, fsys, path, addCode)
	s.HandleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Create})
	_, ok := ops.get("add")
	require.True(t, ok)

	// A manifest rename replaces the old function.
	writeFile(t, fsys, filepath.Join("scripts", "add.yaml"), "name: sum\n")
	s.HandleEvent(ctx, fsnotify.Event{Name: filepath.Join("scripts", "add.yaml"), Op: fsnotify.Write})
	_, ok = ops.get("add")
	assert.False(t, ok)
	_, ok = ops.get("sum")
	assert.True(t, ok)

	require.NoError(t, fsys.Remove(path))
	s.HandleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Remove})
	_, ok = ops.get("sum")
	assert.False(t, ok)

	// Other files are ignored.
	s.HandleEvent(ctx, fsnotify.Event{Name: filepath.Join("scripts", "notes.txt"), Op: fsnotify.Write})
	names, _ := ops.ScriptNames(ctx)
	assert.Empty(t, names)
}

func TestSynchronizer_Watch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file system watcher test in short mode")
	}

	dir := t.TempDir()
	fsys := afero.NewOsFs()
	ops := newMemOps()
	s := NewSynchronizer(fsys, dir, ops)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	path := filepath.Join(dir, "add.js")
	// Rewrite until the watcher is up and has seen the file.
	require.Eventually(t, func() bool {
		if err := afero.WriteFile(fsys, path, []byte(addCode), 0o644); err != nil {
			return false
		}
		_, ok := ops.get("add")
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, fsys.Remove(path))
	require.Eventually(t, func() bool {
		_, ok := ops.get("add")
		return !ok
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, ops.removed, "add")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestLockDir(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	unlock, err := LockDir(ctx, dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, LockFileName))
	require.NoError(t, unlock())

	unlock, err = LockDir(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, unlock())
}
