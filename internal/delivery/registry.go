// internal/delivery/registry.go
package delivery

import (
	"fmt"
	"strings"
	"sync"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

// AnyDestination is the placeholder destination of a decline token.
const AnyDestination = "_"

// Destination is a channel the bot can publish to.
type Destination struct {
	Key    string
	ChatID int64
	Title  string
	// Link is shown in the /start greeting, e.g. https://t.me/channel.
	Link string
}

// Registry maps destination keys to channels in registration order.
type Registry struct {
	mu    sync.RWMutex
	dests map[string]Destination
	order []string
}

// NewRegistry creates an empty destination registry.
func NewRegistry() *Registry {
	return &Registry{
		dests: make(map[string]Destination),
	}
}

// ValidateKey checks that key can be embedded in an action token.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("destination key is empty")
	}
	if key == AnyDestination {
		return fmt.Errorf("destination key %q is reserved", key)
	}
	if strings.ContainsAny(key, "- ") {
		return fmt.Errorf("destination key %q must not contain '-' or spaces", key)
	}
	return nil
}

// Register adds or replaces a destination.
func (r *Registry) Register(d Destination) error {
	if err := ValidateKey(d.Key); err != nil {
		return err
	}
	if d.ChatID == 0 {
		return fmt.Errorf("destination %s: chat id is required", d.Key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dests[d.Key]; !ok {
		r.order = append(r.order, d.Key)
	}
	r.dests[d.Key] = d
	return nil
}

// Lookup returns the destination for key, or an error wrapping
// types.ErrNotFound.
func (r *Registry) Lookup(key string) (Destination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dests[key]
	if !ok {
		return Destination{}, fmt.Errorf("destination %s: %w", key, types.ErrNotFound)
	}
	return d, nil
}

// All returns the destinations in registration order.
func (r *Registry) All() []Destination {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Destination, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.dests[k])
	}
	return out
}
