// Package agent defines the init/execute/cleanup lifecycle shared by the
// analysis agents and an explicitly constructed named-instance registry.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Request carries one unit of work to an agent. Payload is agent-specific;
// each agent documents the type it expects.
type Request struct {
	Symbol  string
	Payload any
}

// Result carries an agent's output. Data is agent-specific.
type Result struct {
	Agent  string `json:"agent"`
	Symbol string `json:"symbol"`
	Data   any    `json:"data"`
}

// Agent is the lifecycle contract implemented by the analysis agents.
type Agent interface {
	Name() string
	Init(ctx context.Context) error
	Execute(ctx context.Context, req Request) (Result, error)
	Cleanup(ctx context.Context) error
}

// Registry holds named agent instances. It is constructed explicitly and
// passed to call sites; there is no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent. Duplicate names are an error.
func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("agent %q already registered", name)
	}
	r.agents[name] = a
	return nil
}

// Get returns the agent registered under name, if any.
func (r *Registry) Get(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	return a, ok
}

// List returns registered agent names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CleanupAll runs Cleanup on every registered agent, collecting errors.
func (r *Registry) CleanupAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, a := range r.agents {
		if err := a.Cleanup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}
