package build

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/xmk-lang/xmk/pkgs/errors"
)

// Watch re-runs the build whenever a source file of the target's graph
// changes. It blocks until ctx is done or the watcher fails. notify,
// when non-nil, receives one line per rebuild trigger and one per
// failed rebuild.
func Watch(ctx context.Context, e *Executor, target string, notify func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewIOError("cannot create file watcher", err)
	}
	defer func() { _ = watcher.Close() }()

	paths := e.sourcePaths(target)
	if len(paths) == 0 {
		return errors.Newf(errors.KindIO, "target %q has no on-disk sources to watch", target)
	}
	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			return errors.NewIOError(fmt.Sprintf("cannot watch %q", p), err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if notify != nil {
				notify(fmt.Sprintf("%s changed, rebuilding %s", event.Name, target))
			}
			if err := e.Execute(target); err != nil {
				// A broken rebuild should not end the watch; report
				// and wait for the next change.
				if notify != nil {
					notify(fmt.Sprintf("rebuild failed: %v", err))
				}
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return errors.NewIOError("file watcher failed", werr)
		}
	}
}

// sourcePaths collects the on-disk leaf dependencies of the target's
// transitive graph: every dependency that is not itself a declared
// target and exists as a file.
func (e *Executor) sourcePaths(name string) []string {
	seen := make(map[string]bool)
	var out []string
	e.collectSources(name, seen, &out)
	return out
}

func (e *Executor) collectSources(name string, seen map[string]bool, out *[]string) {
	if seen[name] {
		return
	}
	seen[name] = true

	t, ok := e.Store.Target(name)
	if !ok {
		if fileExists(name) {
			*out = append(*out, name)
		}
		return
	}
	for _, dep := range t.Deps {
		e.collectSources(dep, seen, out)
	}
}
