// Package model holds everything the parse phase accumulates: defines,
// targets with their dependency and command lists, the chosen top-level
// build target, and the scope the parser is currently inside. The
// executor only ever reads it.
package model

import (
	"github.com/xmk-lang/xmk/pkgs/errors"
)

// Define is a user-declared name/value pair. Values are expanded at use
// site, never at definition time.
type Define struct {
	Name  string
	Value string
}

// Target is a named build artifact together with its dependency and
// command lists, both in source order.
type Target struct {
	Name     string
	Deps     []string
	Commands []string
}

// Store is the process-global model store.
type Store struct {
	Defines []Define
	Targets []*Target

	index       map[string]int // target name -> position in Targets
	buildTarget string
	scope       string // name of the target block being parsed
}

// NewStore creates an empty model store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// AddDefine records name -> value. Names are unique by convention but
// not enforced; lookup returns the first match.
func (s *Store) AddDefine(name, value string) {
	s.Defines = append(s.Defines, Define{Name: name, Value: value})
}

// Define looks up a define by exact name.
func (s *Store) Define(name string) (string, bool) {
	for i := range s.Defines {
		if s.Defines[i].Name == name {
			return s.Defines[i].Value, true
		}
	}
	return "", false
}

// AddTarget registers a new target name and returns its stable index.
func (s *Store) AddTarget(name string) (int, error) {
	if _, exists := s.index[name]; exists {
		return 0, errors.Newf(errors.KindDuplicateTarget, "target %q declared twice", name)
	}
	s.Targets = append(s.Targets, &Target{Name: name})
	i := len(s.Targets) - 1
	s.index[name] = i
	return i, nil
}

// Target returns the target with the given name.
func (s *Store) Target(name string) (*Target, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.Targets[i], true
}

// TargetNames returns all target names in declaration order.
func (s *Store) TargetNames() []string {
	names := make([]string, len(s.Targets))
	for i, t := range s.Targets {
		names[i] = t.Name
	}
	return names
}

// SetBuildTarget records the top-level target. A second build directive
// is fatal.
func (s *Store) SetBuildTarget(name string) error {
	if s.buildTarget != "" {
		return errors.Newf(errors.KindDuplicateBuild, "build target already set to %q, cannot set it to %q", s.buildTarget, name)
	}
	s.buildTarget = name
	return nil
}

// BuildTarget returns the top-level target name, or a missing_build
// error when no build directive was given.
func (s *Store) BuildTarget() (string, error) {
	if s.buildTarget == "" {
		return "", errors.New(errors.KindMissingBuild, "no build directive in input")
	}
	return s.buildTarget, nil
}

// EnterScope makes name the current scope. Scope is not cleared when a
// target block ends; the last-entered name stays current.
func (s *Store) EnterScope(name string) {
	s.scope = name
}

// ScopeName reports the current scope, if any. Implements lexer.Env.
func (s *Store) ScopeName() (string, bool) {
	if s.scope == "" {
		return "", false
	}
	return s.scope, true
}

// Dependency returns the i-th dependency of the current scope's target.
// Implements lexer.Env.
func (s *Store) Dependency(i int) (string, error) {
	name, ok := s.ScopeName()
	if !ok {
		return "", errors.New(errors.KindScopeViolation, "$(dep[N]) used outside a target block")
	}
	t, ok := s.Target(name)
	if !ok {
		return "", errors.Newf(errors.KindScopeViolation, "scope %q has no registered target", name)
	}
	if i < 0 || i >= len(t.Deps) {
		return "", errors.Newf(errors.KindIndexOutOfRange, "$(dep[%d]) out of range: target %q has %d dependencies", i, name, len(t.Deps))
	}
	return t.Deps[i], nil
}
