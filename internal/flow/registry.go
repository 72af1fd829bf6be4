package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/models"
)

// Binding ties a control's custom id to the list it runs when used.
type Binding struct {
	CustomID string
	// Path is the control's own execution path.
	Path models.ExecutionPath
	// Pending is the control's "on interaction" list.
	Pending    any
	Attributes map[string]any
	Created    time.Time

	owner *messageAction
}

// Conditional reports whether the owning message has condition items and so
// must be rebuilt after an interaction.
func (b *Binding) Conditional() bool {
	return b.owner != nil && b.owner.conditional
}

// Registry maps custom ids to bindings. Bindings are kept for the lifetime of
// the process.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*Binding
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]*Binding)}
}

// Register adds or replaces the binding for b.CustomID.
func (r *Registry) Register(b *Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bindings[b.CustomID]; exists {
		slog.Debug("Registry.Register: replacing binding", "custom_id", b.CustomID, "path", b.Path)
	}
	r.bindings[b.CustomID] = b
}

// Lookup returns the binding for customID.
func (r *Registry) Lookup(customID string) (*Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[customID]
	return b, ok
}

// Len returns the number of live bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
