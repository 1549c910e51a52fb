// Package build resolves the dependency graph for a target and runs
// the commands of everything that is out of date. Traversal is
// post-order: dependencies are brought up to date before their
// dependents, commands run strictly in source order, and a target's
// file must exist once its commands have succeeded.
package build

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/xmk-lang/xmk/pkgs/errors"
	"github.com/xmk-lang/xmk/pkgs/model"
)

// Executor walks the target graph of a model store.
type Executor struct {
	Store  *model.Store
	Runner Runner
	Out    io.Writer // command echo destination
	Quiet  bool      // suppress command echo

	// Trace, when set, receives one line per freshness decision.
	Trace func(format string, args ...interface{})

	done map[string]bool // target -> computed update flag, one visit each
}

// New creates an executor over store with the default shell runner.
func New(store *model.Store) *Executor {
	return &Executor{Store: store, Runner: ShellRunner{}, Out: os.Stdout}
}

// Execute brings the named target up to date.
func (e *Executor) Execute(name string) error {
	e.done = make(map[string]bool)
	_, err := e.execute(name)
	return err
}

// execute returns whether the target was (or had to be) rebuilt, so
// the pending signal propagates upward through the traversal.
func (e *Executor) execute(name string) (updatePending bool, err error) {
	if pending, ok := e.done[name]; ok {
		return pending, nil
	}

	t, ok := e.Store.Target(name)
	if !ok {
		// Not a declared target: acceptable only as a file on disk.
		if fileExists(name) {
			e.tracef("%s: plain file", name)
			return false, nil
		}
		return false, errors.NewUnknownTargetError(name, e.suggest(name))
	}
	if len(t.Deps) == 0 && len(t.Commands) == 0 {
		return false, errors.Newf(errors.KindEmptyTarget, "target %q has no dependencies and no commands, nothing to do", name)
	}

	pending := !fileExists(name)
	for _, dep := range t.Deps {
		childPending, err := e.execute(dep)
		if err != nil {
			return false, err
		}
		if childPending || depNewer(name, dep) {
			pending = true
		}
	}

	if pending {
		e.tracef("%s: out of date, running %d command(s)", name, len(t.Commands))
	} else {
		e.tracef("%s: up to date", name)
	}

	if pending {
		if err := e.runCommands(t); err != nil {
			return false, err
		}
		if !fileExists(name) {
			return false, errors.Newf(errors.KindPostBuildMissing, "commands for %q succeeded but the file was not produced", name)
		}
	}

	e.done[name] = pending
	return pending, nil
}

func (e *Executor) runCommands(t *model.Target) error {
	for _, cmdline := range t.Commands {
		if !e.Quiet {
			fmt.Fprintln(e.out(), cmdline)
		}
		code, err := e.Runner.Run(cmdline)
		if err != nil {
			return errors.Wrap(errors.KindCommandFailed, fmt.Sprintf("cannot run command %q", cmdline), err)
		}
		if code != 0 {
			return errors.NewCommandFailedError(cmdline, code)
		}
	}
	return nil
}

func (e *Executor) tracef(format string, args ...interface{}) {
	if e.Trace != nil {
		e.Trace(format, args...)
	}
}

func (e *Executor) out() io.Writer {
	if e.Out != nil {
		return e.Out
	}
	return os.Stdout
}

// suggest returns the registered target name closest to name, if any.
func (e *Executor) suggest(name string) string {
	ranks := fuzzy.RankFindFold(name, e.Store.TargetNames())
	if len(ranks) > 0 {
		return ranks[0].Target
	}
	return ""
}

// mtime returns a file's modification time and whether it exists.
func mtime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

func fileExists(path string) bool {
	_, ok := mtime(path)
	return ok
}

// depNewer reports whether dep obliges target to rebuild: dep's mtime
// is strictly newer, or either file is missing. Rebuilding is always
// safe, so missing information counts as out of date.
func depNewer(target, dep string) bool {
	targetTime, targetOK := mtime(target)
	depTime, depOK := mtime(dep)
	if !targetOK || !depOK {
		return true
	}
	return depTime.After(targetTime)
}
