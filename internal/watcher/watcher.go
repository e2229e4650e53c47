// Package watcher monitors a directory tree for document changes and
// drives them through the Knowledge Store's own write path
// (knowledge.Ingester.Ingest), so the store stays current without a
// caller re-running ingestion by hand. It is not itself a product
// feature: scheduling policy, conflict resolution, and a richer watch
// CLI surface are out of scope (spec Non-goals), this exists only to
// prove the write path is independently callable.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sgx-labs/tripartite/internal/knowledge"
)

// skipDirs are never descended into; they hold build artifacts or VCS
// metadata, never source documents worth indexing.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".same": true,
	"dist": true, "build": true, ".tripartite": true,
}

// ingestExts bounds which files trigger ingestion; anything else (images,
// binaries, lockfiles) is skipped without error.
var ingestExts = map[string]bool{
	".md": true, ".txt": true, ".go": true,
}

const debounceDelay = 2 * time.Second

// Watch walks root, then watches it for changes, calling ingester.Ingest
// on every create/write event for a recognized extension. It blocks until
// ctx is canceled or an unrecoverable watcher error occurs.
func Watch(ctx context.Context, ingester *knowledge.Ingester, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create: %w", err)
	}
	defer w.Close()

	dirs := walkDirs(root)
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			fmt.Fprintf(os.Stderr, "watcher: could not watch %s: %v\n", d, err)
		}
	}
	fmt.Fprintf(os.Stderr, "watcher: watching %d directories under %s\n", len(dirs), root)

	var (
		mu      sync.Mutex
		pending = make(map[string]bool)
		timer   *time.Timer
	)

	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]bool)
		mu.Unlock()

		for _, p := range paths {
			ingestFile(ctx, ingester, p, root)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ingestExts[filepath.Ext(event.Name)] {
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if !skipDirs[filepath.Base(event.Name)] {
							w.Add(event.Name)
						}
					}
				}
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				mu.Lock()
				pending[event.Name] = true
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounceDelay, flush)
				mu.Unlock()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher: error: %v\n", err)
		}
	}
}

func ingestFile(ctx context.Context, ingester *knowledge.Ingester, path, root string) {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watcher: read %s: %v\n", path, err)
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	if err := ingester.Ingest(ctx, rel, string(content), info.ModTime()); err != nil {
		fmt.Fprintf(os.Stderr, "watcher: ingest %s: %v\n", rel, err)
		return
	}
	fmt.Fprintf(os.Stderr, "watcher: ingested %s\n", rel)
}

func walkDirs(root string) []string {
	var dirs []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") && name != "." {
				if name != filepath.Base(root) {
					return filepath.SkipDir
				}
			}
			if skipDirs[name] {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}
