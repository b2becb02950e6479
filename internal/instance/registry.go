// Package instance implements the deployment-target registry at the heart
// of upkeep: a process-wide mapping from names (and aliases) to instance
// definitions, plus the "current instance" selection that positional
// command-line tokens drive.
//
// The registry is populated once per invocation while the configuration is
// loaded, consulted during token parsing, and reset on the next invocation.
// Selection is purely positional: a token naming an instance switches the
// current instance for every task token that follows it.
package instance

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirex/upkeep/internal/errors"
)

// Instance describes a named deployment target.
type Instance struct {
	// Name identifies the instance on the command line (e.g. "staging").
	Name string

	// SSH connection strings, tried in order until one succeeds.
	// Can be: hostname, user@hostname, or SSH config alias.
	SSH []string

	// Dir is the working directory on the target where tasks run.
	Dir string

	// Params carries free-form key/value settings that tasks may consult
	// (e.g. database name, checkout branch).
	Params map[string]string

	// Tags for grouping instances.
	Tags []string
}

// Param returns a named parameter, or the fallback when unset.
func (i *Instance) Param(key, fallback string) string {
	if v, ok := i.Params[key]; ok {
		return v
	}
	return fallback
}

// Invocation pairs a task token with the instance that was current when the
// token appeared.
type Invocation struct {
	Instance *Instance
	Task     string
}

// Registry maps instance names and aliases to definitions and tracks the
// current selection.
type Registry struct {
	mu          sync.Mutex
	defs        map[string]*Instance
	aliases     map[string]string // alias -> instance name
	order       []string          // definition order, for stable listings
	current     *Instance
	defaultName string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:    make(map[string]*Instance),
		aliases: make(map[string]string),
	}
}

// Define adds an instance to the registry.
// Defining never selects: the current instance is unchanged.
func (r *Registry) Define(inst Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := validateName(inst.Name); err != nil {
		return err
	}
	if _, exists := r.defs[inst.Name]; exists {
		return errors.New(errors.ErrInstance,
			fmt.Sprintf("Instance '%s' is already defined", inst.Name),
			"Each instance needs a unique name.")
	}
	if target, exists := r.aliases[inst.Name]; exists {
		return errors.New(errors.ErrInstance,
			fmt.Sprintf("'%s' is already an alias for '%s'", inst.Name, target),
			"Pick a different instance name or remove the alias.")
	}

	copied := inst
	r.defs[inst.Name] = &copied
	r.order = append(r.order, inst.Name)
	return nil
}

// DefineAlias registers an alternate name for a defined instance.
func (r *Registry) DefineAlias(alias, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := validateName(alias); err != nil {
		return err
	}
	if _, exists := r.defs[alias]; exists {
		return errors.New(errors.ErrInstance,
			fmt.Sprintf("'%s' is already an instance name", alias),
			"An alias can't shadow an instance.")
	}
	if existing, exists := r.aliases[alias]; exists {
		return errors.New(errors.ErrInstance,
			fmt.Sprintf("Alias '%s' is already defined (points to '%s')", alias, existing),
			"Each alias needs a unique name.")
	}
	if _, exists := r.defs[target]; !exists {
		return errors.New(errors.ErrInstance,
			fmt.Sprintf("Alias '%s' points to undefined instance '%s'", alias, target),
			fmt.Sprintf("Define '%s' first, or fix the alias target.", target))
	}

	r.aliases[alias] = target
	return nil
}

// SetDefault marks an instance as the fallback when no instance token has
// been seen yet.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	resolved, ok := r.resolve(name)
	if !ok {
		return errors.New(errors.ErrInstance,
			fmt.Sprintf("Default instance '%s' doesn't exist", name),
			fmt.Sprintf("Known instances: %s", r.knownNames()))
	}
	r.defaultName = resolved
	return nil
}

// Lookup resolves a token (name or alias) to its instance definition.
func (r *Registry) Lookup(token string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.resolve(token)
	if !ok {
		return nil, false
	}
	return r.defs[name], true
}

// Select makes the instance named by token the current instance.
func (r *Registry) Select(token string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.resolve(token)
	if !ok {
		return nil, errors.New(errors.ErrInstance,
			fmt.Sprintf("Unknown instance '%s'", token),
			fmt.Sprintf("Known instances: %s", r.knownNames()))
	}
	r.current = r.defs[name]
	return r.current, nil
}

// Current returns the selected instance. When nothing has been selected it
// falls back to the configured default, then to the sole defined instance.
func (r *Registry) Current() (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return r.current, nil
	}
	if r.defaultName != "" {
		return r.defs[r.defaultName], nil
	}
	if len(r.order) == 1 {
		return r.defs[r.order[0]], nil
	}
	if len(r.order) == 0 {
		return nil, errors.New(errors.ErrInstance,
			"No instances defined",
			"Add instances under 'instances:' in .upkeep.yaml or run 'upkeep init'.")
	}
	return nil, errors.New(errors.ErrInstance,
		"No instance selected",
		fmt.Sprintf("Name one before the task, like 'upkeep run staging deploy'. Known instances: %s", r.knownNames()))
}

// Reset clears the current selection. Definitions stay.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
}

// Clear removes all definitions, aliases, and the current selection.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = make(map[string]*Instance)
	r.aliases = make(map[string]string)
	r.order = nil
	r.current = nil
	r.defaultName = ""
}

// Names returns instance names in definition order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Aliases returns a copy of the alias table.
func (r *Registry) Aliases() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// DefaultName returns the configured default instance name, or "".
func (r *Registry) DefaultName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultName
}

// Plan scans positional tokens left to right and produces the task
// invocations they describe. A token naming an instance (or alias) switches
// the current instance; any other token is a task bound to the instance
// current at that point. The registry's selection is left at the last
// instance token, so later Current() calls observe it.
func (r *Registry) Plan(tokens []string) ([]Invocation, error) {
	var plan []Invocation

	for _, token := range tokens {
		if _, ok := r.Lookup(token); ok {
			if _, err := r.Select(token); err != nil {
				return nil, err
			}
			continue
		}

		inst, err := r.Current()
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrInstance,
				fmt.Sprintf("Task '%s' has no instance to run on", token),
				"Put an instance name before the task, or set a default instance.")
		}
		plan = append(plan, Invocation{Instance: inst, Task: token})
	}

	return plan, nil
}

// resolve maps a token through the alias table to an instance name.
// Caller must hold r.mu.
func (r *Registry) resolve(token string) (string, bool) {
	if _, ok := r.defs[token]; ok {
		return token, true
	}
	if target, ok := r.aliases[token]; ok {
		return target, true
	}
	return "", false
}

// knownNames returns a sorted, comma-separated list of names and aliases.
// Caller must hold r.mu.
func (r *Registry) knownNames() string {
	names := make([]string, 0, len(r.defs)+len(r.aliases))
	for name := range r.defs {
		names = append(names, name)
	}
	for alias := range r.aliases {
		names = append(names, alias)
	}
	if len(names) == 0 {
		return "(none)"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// validateName rejects names that would be ambiguous on the command line.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New(errors.ErrInstance,
			"Instance name can't be empty",
			"Give the instance a name like 'staging' or 'production'.")
	}
	if strings.HasPrefix(name, "-") {
		return errors.New(errors.ErrInstance,
			fmt.Sprintf("Instance name '%s' starts with '-'", name),
			"Names starting with '-' would be parsed as flags.")
	}
	if strings.ContainsAny(name, " \t\n") {
		return errors.New(errors.ErrInstance,
			fmt.Sprintf("Instance name '%s' contains whitespace", name),
			"Use a single token, like 'staging' or 'prod-eu'.")
	}
	return nil
}
