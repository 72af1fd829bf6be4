// Package variables holds the process-wide variable environment declared in
// configuration and mutated only by set_variable actions.
package variables

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/ScriptCord/internal/models"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrUndeclared is returned by Set for names that were not declared at startup.
var ErrUndeclared = models.ErrUndeclaredVariable

// Store is the global variable table. The zero value is not usable; use New.
type Store struct {
	mu   sync.RWMutex
	vars map[string]any
}

// Normalize turns spaces into underscores so "my var" and "my_var" name the
// same variable.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// New declares the given variables. Invalid identifiers are configuration
// errors.
func New(declared map[string]any) (*Store, error) {
	s := &Store{vars: make(map[string]any, len(declared))}
	for name, value := range declared {
		key := Normalize(name)
		if !identifier.MatchString(key) {
			return nil, models.Configf("variables", "%q is not a valid variable name", name)
		}
		s.vars[key] = value
	}
	slog.Debug("variables.New: declared variables", "count", len(s.vars))
	return s, nil
}

// Declared reports whether name was declared at startup.
func (s *Store) Declared(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[Normalize(name)]
	return ok
}

// Get returns the current value of name.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[Normalize(name)]
	return v, ok
}

// Set assigns a declared variable.
func (s *Store) Set(name string, value any) error {
	key := Normalize(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vars[key]; !ok {
		return fmt.Errorf("set %q: %w", name, ErrUndeclared)
	}
	s.vars[key] = value
	slog.Debug("Store.Set: variable updated", "name", key)
	return nil
}

// Snapshot returns a copy of all variables.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Names returns the declared names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of declared variables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}
