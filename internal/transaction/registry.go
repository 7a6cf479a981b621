package transaction

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps transaction types to their variants
//
// This allows adding new transaction types without modifying the bookkeeper
type Registry struct {
	variants map[Type]Variant
	aliases  map[string]Type
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		variants: make(map[Type]Variant),
		aliases:  make(map[string]Type),
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry of every built-in variant
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := NewRegistry()
		for _, v := range variants {
			if err := r.Register(v); err != nil {
				panic(err)
			}
		}
		r.aliases["withdraw"] = Withdrawal
		r.aliases["transfer_out"] = Send
		r.aliases["transfer_in"] = Receive
		defaultRegistry = r
	})
	return defaultRegistry
}

// Register registers a variant for its transaction type
// Returns an error if a variant for this type is already registered
func (r *Registry) Register(v Variant) error {
	if v == nil {
		return fmt.Errorf("variant cannot be nil")
	}

	t := v.Type()
	if t == "" {
		return fmt.Errorf("variant type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.variants[t]; exists {
		return fmt.Errorf("variant for type '%s' already registered", t)
	}

	r.variants[t] = v
	r.aliases[normalizeKey(string(t))] = t
	return nil
}

// Get retrieves a variant by transaction type
func (r *Registry) Get(t Type) (Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, exists := r.variants[t]
	if !exists {
		return nil, &UnknownTransactionTypeError{Value: string(t)}
	}

	return v, nil
}

// Has checks if a variant is registered for the given type
func (r *Registry) Has(t Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.variants[t]
	return exists
}

// Types returns all registered transaction types, sorted
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.variants))
	for t := range r.variants {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Detect resolves a raw type value in any casing or separator style
func (r *Registry) Detect(value string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.aliases[normalizeKey(value)]
	return t, ok
}
