package dispatch

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/tessera-games/riftgate/internal/actor"
	"github.com/tessera-games/riftgate/internal/schema"
)

// Handler executes a command for an actor with validated arguments.
type Handler func(ctx context.Context, a *actor.Actor, args []any) (any, error)

// entry binds a descriptor to its handler and resolved schema.
type entry struct {
	desc    Descriptor
	handler Handler

	// compiled holds the schema derived from Params when no explicit
	// schema was supplied. Resolved at registration.
	compiled *schema.Positional

	// checkedNames is set once the Named schema's key set has been verified
	// against ParamNames on first use.
	checkedNames bool

	// disabled marks a descriptor shut down after a configuration error.
	disabled bool
}

// Registry maps command names to descriptors and handlers. Populated during
// bootstrap; read-only once traffic starts.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *log.Logger
}

// NewRegistry creates an empty command registry.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register inserts a command. A duplicate name is a logged, non-fatal
// conflict: the new registration wins. Structural descriptor problems that
// can be seen at registration time are returned as errors.
func (r *Registry) Register(desc Descriptor, handler Handler) error {
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		return fmt.Errorf("command name is required")
	}
	if !desc.Remote() && handler == nil {
		return fmt.Errorf("command %s: handler is required for local commands", name)
	}
	if desc.Named != nil && desc.Positional != nil {
		return fmt.Errorf("command %s: at most one explicit schema may be set", name)
	}
	if len(desc.Params) > 0 && desc.Params[0] != schema.KindActor {
		return fmt.Errorf("command %s: first declared parameter must be %q", name, schema.KindActor)
	}

	e := &entry{desc: desc, handler: handler}
	if desc.Named == nil && desc.Positional == nil {
		compiled, err := schema.Compile(desc.Params)
		if err == nil {
			e.compiled = compiled
		} else if len(desc.Params) > 1 {
			// Not derivable with declared parameters and no explicit
			// schema. Register it disabled so first use surfaces the
			// configuration error instead of crashing bootstrap.
			r.logger.Printf("WARN command %s: %v; descriptor disabled", name, err)
			e.disabled = true
		}
	}

	key := strings.ToLower(name)
	r.mu.Lock()
	if _, exists := r.entries[key]; exists {
		r.logger.Printf("WARN command %s registered twice; last registration wins", name)
	}
	r.entries[key] = e
	r.mu.Unlock()
	return nil
}

// lookup resolves a command by case-insensitive name.
func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// disable shuts a descriptor down after a configuration error.
func (r *Registry) disable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[strings.ToLower(name)]; ok {
		e.disabled = true
	}
}

// Commands lists registered commands for introspection/help surfaces.
func (r *Registry) Commands() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, Info{
			Name:        e.desc.Name,
			Description: e.desc.Description,
			Usage:       e.desc.Usage,
			Visibility:  e.desc.Visibility,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
