package script

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	scriptExt   = ".js"
	manifestExt = ".yaml"
)

// Manifest is the optional sidecar file next to a script.
type Manifest struct {
	Name        string   `yaml:"name"`
	Params      []string `yaml:"params"`
	Description string   `yaml:"description"`
}

// SourceFile is a script loaded from the scripts directory.
type SourceFile struct {
	Path        string
	Script      NamedScript
	Description string
}

// SyncReport summarises one Sync run.
type SyncReport struct {
	Registered []string
	Removed    []string
	Failed     map[string]error // keyed by file path, or by name for removals
}

// OK reports whether every file was synchronised.
func (r SyncReport) OK() bool { return len(r.Failed) == 0 }

// Synchronizer mirrors a directory of JavaScript files into registered functions.
type Synchronizer struct {
	fs    afero.Fs
	dir   string
	ops   Operations
	prune bool
	log   *opsLogger

	mu    sync.Mutex
	files map[string]string // path -> registered name
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithPrune removes registered functions that have no file on disk.
func WithPrune(prune bool) SyncOption {
	return func(s *Synchronizer) { s.prune = prune }
}

// WithSyncLogger sets the logger used for sync and watch events.
func WithSyncLogger(l *slog.Logger) SyncOption {
	return func(s *Synchronizer) { s.log = newOpsLogger(l) }
}

// NewSynchronizer creates a Synchronizer for dir on fsys. ops should replace
// existing functions on Register, since files are re-registered on every run.
func NewSynchronizer(fsys afero.Fs, dir string, ops Operations, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		fs:    fsys,
		dir:   filepath.Clean(dir),
		ops:   ops,
		log:   newOpsLogger(nil),
		files: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the synchronised directory.
func (s *Synchronizer) Dir() string { return s.dir }

// Load reads every script in the directory without registering anything.
// Files are returned in path order.
func (s *Synchronizer) Load() ([]SourceFile, map[string]error, error) {
	var (
		files  []SourceFile
		failed = make(map[string]error)
	)
	err := afero.Walk(s.fs, s.dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isScriptFile(path) {
			return nil
		}
		f, err := s.loadFile(path)
		if err != nil {
			failed[path] = err
			return nil
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", s.dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, failed, nil
}

// Sync registers every script in the directory and, with pruning enabled,
// removes registered functions that no file declares.
func (s *Synchronizer) Sync(ctx context.Context) (SyncReport, error) {
	files, failed, err := s.Load()
	if err != nil {
		return SyncReport{}, err
	}
	report := SyncReport{Failed: failed}

	onDisk := NewNameSet()
	for _, f := range files {
		onDisk[f.Script.Name()] = struct{}{}
		if _, err := s.ops.Register(ctx, f.Script); err != nil {
			report.Failed[f.Path] = err
			s.log.lifecycle(ctx, slog.LevelError, "Failed to register script file", "sync", f.Script.Name(), f.Path, err)
			continue
		}
		s.track(f.Path, f.Script.Name())
		report.Registered = append(report.Registered, f.Script.Name())
	}

	// A file that fails to load still claims its function; pruning it would
	// replace a working definition with nothing. When a claim cannot be read
	// nothing is pruned.
	prune := s.prune
	for path := range failed {
		name, err := s.claimedName(path)
		if err != nil {
			prune = false
			s.log.lifecycle(ctx, slog.LevelWarn, "Skipping prune, cannot name failed script file", "sync", "", path, err)
			break
		}
		onDisk[name] = struct{}{}
	}

	if prune {
		registered, err := s.ops.ScriptNames(ctx)
		if err != nil {
			return report, err
		}
		for _, name := range registered.Sorted() {
			if onDisk.Has(name) {
				continue
			}
			if err := s.ops.Remove(ctx, name); err != nil {
				report.Failed[name] = err
				continue
			}
			report.Removed = append(report.Removed, name)
		}
	}

	s.log.base.InfoContext(ctx, "Scripts directory synchronised",
		"event", "script_sync",
		"dir", s.dir,
		"registered", len(report.Registered),
		"removed", len(report.Removed),
		"failed", len(report.Failed),
	)
	return report, nil
}

// Watch re-registers scripts as they change on disk and removes the
// functions of deleted files. It blocks until ctx is done. fsnotify watches
// the OS filesystem, so fs must be backed by it.
func (s *Synchronizer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}
	defer watcher.Close()

	err = afero.Walk(s.fs, s.dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add directories to watcher: %w", err)
	}

	s.log.base.InfoContext(ctx, "Watching scripts directory", "event", "script_watch_start", "dir", s.dir)
	for {
		select {
		case <-ctx.Done():
			s.log.base.DebugContext(ctx, "Scripts watcher stopped", "event", "script_watch_stop", "dir", s.dir)
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := s.fs.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						s.log.lifecycle(ctx, slog.LevelError, "Failed to watch new directory", "watch", "", event.Name, err)
					}
					continue
				}
			}
			s.HandleEvent(ctx, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.base.ErrorContext(ctx, "File system watcher error", "event", "script_watch_error", "error", err)
		}
	}
}

// HandleEvent applies a single file system event.
func (s *Synchronizer) HandleEvent(ctx context.Context, event fsnotify.Event) {
	path := event.Name
	if strings.EqualFold(filepath.Ext(path), manifestExt) {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + scriptExt
		// A manifest change only matters while its script exists.
		if ok, _ := afero.Exists(s.fs, path); !ok {
			return
		}
		event = fsnotify.Event{Name: path, Op: fsnotify.Write}
	}
	if !isScriptFile(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		s.reload(ctx, path)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		s.drop(ctx, path)
	}
}

func (s *Synchronizer) reload(ctx context.Context, path string) {
	f, err := s.loadFile(path)
	if err != nil {
		s.log.lifecycle(ctx, slog.LevelError, "Failed to load script file", "reload", "", path, err)
		return
	}
	name := f.Script.Name()

	// A manifest can rename a file's function; drop the old one first.
	if prev, ok := s.tracked(path); ok && prev != name {
		if err := s.ops.Remove(ctx, prev); err != nil {
			s.log.lifecycle(ctx, slog.LevelWarn, "Failed to remove renamed script", "reload", prev, path, err)
		}
	}

	if _, err := s.ops.Register(ctx, f.Script); err != nil {
		s.log.lifecycle(ctx, slog.LevelError, "Failed to register script file", "reload", name, path, err)
		return
	}
	s.track(path, name)
	s.log.lifecycle(ctx, slog.LevelInfo, "Script file reloaded", "reload", name, path, nil)
}

func (s *Synchronizer) drop(ctx context.Context, path string) {
	name, ok := s.tracked(path)
	if !ok {
		n, err := s.nameFromPath(path)
		if err != nil {
			return
		}
		name = n
	}
	if err := s.ops.Remove(ctx, name); err != nil {
		s.log.lifecycle(ctx, slog.LevelWarn, "Failed to remove deleted script", "remove", name, path, err)
		return
	}
	s.untrack(path)
	s.log.lifecycle(ctx, slog.LevelInfo, "Script file removed", "remove", name, path, nil)
}

func (s *Synchronizer) loadFile(path string) (SourceFile, error) {
	code, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return SourceFile{}, err
	}

	name, err := s.nameFromPath(path)
	if err != nil {
		return SourceFile{}, err
	}

	m, err := s.readManifest(path)
	if err != nil {
		return SourceFile{}, err
	}
	if m.Name != "" {
		name = m.Name
	}

	ns, err := NewNamedScript(name, string(code), m.Params...)
	if err != nil {
		return SourceFile{}, err
	}
	return SourceFile{Path: path, Script: ns, Description: m.Description}, nil
}

// readManifest returns the sidecar manifest of a script, or a zero Manifest
// when there is none.
func (s *Synchronizer) readManifest(path string) (Manifest, error) {
	var m Manifest
	manifestPath := strings.TrimSuffix(path, filepath.Ext(path)) + manifestExt
	raw, err := afero.ReadFile(s.fs, manifestPath)
	if err != nil {
		return m, nil
	}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", manifestPath, err)
	}
	return m, nil
}

// claimedName returns the function name a script file declares without
// loading its code.
func (s *Synchronizer) claimedName(path string) (string, error) {
	if name, ok := s.tracked(path); ok {
		return name, nil
	}
	name, err := s.nameFromPath(path)
	if err != nil {
		return "", err
	}
	m, err := s.readManifest(path)
	if err != nil {
		return "", err
	}
	if m.Name != "" {
		name = m.Name
	}
	return normalizeName(name), nil
}

// nameFromPath maps dir/math/add.js to math::add.
func (s *Synchronizer) nameFromPath(path string) (string, error) {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %s is not within %s", path, s.dir)
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
	return strings.ReplaceAll(rel, "/", "::"), nil
}

func isScriptFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), scriptExt)
}

func (s *Synchronizer) track(path, name string) {
	s.mu.Lock()
	s.files[path] = name
	s.mu.Unlock()
}

func (s *Synchronizer) untrack(path string) {
	s.mu.Lock()
	delete(s.files, path)
	s.mu.Unlock()
}

func (s *Synchronizer) tracked(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.files[path]
	return name, ok
}
