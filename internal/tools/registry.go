// Package tools defines the tool abstraction the planner targets and the
// registry that resolves tool names to typed handles at load time. Unknown
// names are caught at plan validation, not at execution.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Tool is one callable capability. Invocation is synchronous; long-running
// work belongs behind the fetcher's timeouts or a per-tool timeout.
type Tool interface {
	Name() string
	Description() string
	Category() string

	// ArgsSchema maps argument names to a short type/usage description.
	ArgsSchema() map[string]string

	// Invoke runs the tool. The returned string is what the LLM sees.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// UnknownToolError is returned when a name does not resolve.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// Registry is the name -> tool map. Registration happens once at startup;
// lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds a tool. Re-registering a name is a programming error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// MustRegister panics on duplicate registration. Startup use only.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Has reports whether a name resolves.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Get resolves a name to its tool.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return t, nil
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog renders the capability list for plan prompts.
func (r *Registry) Catalog() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		t := r.tools[name]
		fmt.Fprintf(&b, "- %s (%s): %s\n", t.Name(), t.Category(), t.Description())
		args := t.ArgsSchema()
		argNames := make([]string, 0, len(args))
		for a := range args {
			argNames = append(argNames, a)
		}
		sort.Strings(argNames)
		for _, a := range argNames {
			fmt.Fprintf(&b, "    %s: %s\n", a, args[a])
		}
	}
	return b.String()
}
