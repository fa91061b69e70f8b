// Package inventory defines the Host/Profile/Origin contracts and the
// multi-source registry (the Inventory) that merges and looks entities up
// across them. Concrete Origins (libvirt, Cobbler, filesystem readers)
// are external collaborators and are not implemented here; only the
// contracts and the registry logic are in scope.
package inventory

import (
	"fmt"
	"sync"
)

// Host is a provisionable target. Equality and hashing are by Name, so a
// "hosts in use" set can key purely off strings.
type Host interface {
	Name() string
	Prepare() error
	Start() error
	MACAddress() string
	Purge() error
}

// Profile is a boot configuration that can be assigned to a Host.
type Profile interface {
	Name() string
	AssignTo(host Host, additionalKargs string) error
	RevokeFrom(host Host) error
	EnablePXE(host Host, enable bool) error
	Kargs(set *string) (string, error)
	Delete() error
}

// Category names the four entity kinds an Origin can serve.
type Category string

const (
	CategoryPlans      Category = "plans"
	CategoryTestsuites Category = "testsuites"
	CategoryProfiles   Category = "profiles"
	CategoryHosts      Category = "hosts"
)

// Origin is a single source of entities within one category.
type Origin interface {
	Name() string
	Items() map[string]any
	Lookup(name string) (any, bool)
}

// ItemCreator is implemented by Origins that support creating new
// entities (e.g. PUT /profiles/<name>).
type ItemCreator interface {
	CreateItem(name string, props map[string]string) (any, error)
}

// OverrideApplier is implemented by entities that accept plan-layout
// property overrides. Only declared settable properties are applied;
// the implementation silently ignores everything else.
type OverrideApplier interface {
	ApplyOverrides(props map[string]string)
}

// ErrDuplicateName is returned by Items when two origins in the same
// category define the same entity name.
type ErrDuplicateName struct {
	Category Category
	Name     string
	Origins  []string
}

func (e *ErrDuplicateName) Error() string {
	return fmt.Sprintf("inventory: duplicate %s entity %q across origins %v", e.Category, e.Name, e.Origins)
}

// Inventory merges a priority-ordered list of Origins per category.
type Inventory struct {
	mu       sync.RWMutex
	origins  map[Category][]Origin
	priority map[Category][]string
}

// New returns an empty Inventory.
func New() *Inventory {
	return &Inventory{
		origins:  map[Category][]Origin{},
		priority: map[Category][]string{},
	}
}

// Register appends origin to category's priority-ordered list. Later
// registrations have lower lookup priority.
func (inv *Inventory) Register(cat Category, origin Origin) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.origins[cat] = append(inv.origins[cat], origin)
	inv.priority[cat] = append(inv.priority[cat], origin.Name())
}

// OriginPriority returns the load order of origin names for category.
func (inv *Inventory) OriginPriority(cat Category) []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]string, len(inv.priority[cat]))
	copy(out, inv.priority[cat])
	return out
}

// Items merges every origin's entities for category. A name defined by
// more than one origin is a fatal (returned-error) condition.
func (inv *Inventory) Items(cat Category) (map[string]any, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	merged := map[string]any{}
	definedBy := map[string][]string{}

	for _, origin := range inv.origins[cat] {
		for name, item := range origin.Items() {
			merged[name] = item
			definedBy[name] = append(definedBy[name], origin.Name())
		}
	}

	for name, origins := range definedBy {
		if len(origins) > 1 {
			return nil, &ErrDuplicateName{Category: cat, Name: name, Origins: origins}
		}
	}

	return merged, nil
}

// Lookup queries each origin for category in priority order and returns
// the first hit.
func (inv *Inventory) Lookup(cat Category, name string) (any, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	for _, origin := range inv.origins[cat] {
		if item, ok := origin.Lookup(name); ok {
			return item, true
		}
	}
	return nil, false
}

// CreateItem delegates to the first origin of category that supports
// ItemCreator.
func (inv *Inventory) CreateItem(cat Category, name string, props map[string]string) (any, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	for _, origin := range inv.origins[cat] {
		if creator, ok := origin.(ItemCreator); ok {
			return creator.CreateItem(name, props)
		}
	}
	return nil, fmt.Errorf("inventory: no origin for category %s supports item creation", cat)
}
