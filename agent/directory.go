package agent

import (
	"sort"
	"sync"

	"github.com/parleyhq/parley/logging"
)

// DirectoryOptions configures a Directory.
type DirectoryOptions struct {
	// Logger receives registration events. Defaults to NoOp.
	Logger logging.Logger
}

// Directory is the process-wide agent registry. Every agent is reachable
// under two keys, its stable identifier and its display name, and both
// resolve to the same instance. The two key spaces share one namespace: a
// name may not collide with another agent's identifier.
//
// Lookups are O(1) and take a shared lock, so steady-state reads never block
// each other; registration writes are exclusive and become visible
// atomically.
type Directory struct {
	mu     sync.RWMutex
	byKey  map[string]*Agent
	logger logging.Logger
}

// NewDirectory creates an empty directory.
func NewDirectory(optFns ...func(o *DirectoryOptions)) *Directory {
	opts := DirectoryOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Directory{
		byKey:  make(map[string]*Agent),
		logger: opts.Logger,
	}
}

// Register inserts an agent under both its identifier and its display name.
// Either key already being taken fails with *DuplicateAgentError and leaves
// the directory unchanged.
func (d *Directory) Register(a *Agent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byKey[a.ID()]; exists {
		return &DuplicateAgentError{Key: a.ID()}
	}
	if _, exists := d.byKey[a.Name()]; exists {
		return &DuplicateAgentError{Key: a.Name()}
	}

	d.byKey[a.ID()] = a
	d.byKey[a.Name()] = a

	d.logger.Info("directory.agent.registered", "agent_id", a.ID(), "agent_name", a.Name())

	return nil
}

// Lookup resolves an identifier or display name to its agent, failing with
// *AgentNotFoundError for unknown keys.
func (d *Directory) Lookup(key string) (*Agent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.byKey[key]
	if !ok {
		return nil, &AgentNotFoundError{Key: key}
	}

	return a, nil
}

// Aliases returns every key the given key's agent is registered under, or nil
// for unknown keys. This satisfies the catalog's AliasResolver so allowed
// lists can name agents by identifier or display name interchangeably.
func (d *Directory) Aliases(key string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.byKey[key]
	if !ok {
		return nil
	}

	return []string{a.ID(), a.Name()}
}

// List returns the registered agents, deduplicated across the two key spaces
// and sorted by display name.
func (d *Directory) List() []*Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{}, len(d.byKey))
	agents := make([]*Agent, 0, len(d.byKey)/2+1)
	for _, a := range d.byKey {
		if _, dup := seen[a.ID()]; dup {
			continue
		}
		seen[a.ID()] = struct{}{}
		agents = append(agents, a)
	}

	sort.Slice(agents, func(i, j int) bool { return agents[i].Name() < agents[j].Name() })

	return agents
}

// Len returns the number of unique registered agents.
func (d *Directory) Len() int {
	return len(d.List())
}
