package codec

import (
	"sort"
	"sync"
)

// Registry maps codec names and transfer syntax UIDs to codecs
type Registry struct {
	mu     sync.RWMutex
	byKey  map[string]Codec
	byName map[string]Codec
}

var defaultRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byKey:  make(map[string]Codec),
		byName: make(map[string]Codec),
	}
}

// Register adds c to the process-wide registry
func Register(c Codec) {
	defaultRegistry.Register(c)
}

// Get looks up a codec of the process-wide registry
func Get(nameOrUID string) (Codec, error) {
	return defaultRegistry.Get(nameOrUID)
}

// List returns the codecs of the process-wide registry
func List() []Codec {
	return defaultRegistry.List()
}

// Register makes c reachable by its name and by its UID. A later codec with
// the same name or UID replaces the earlier one.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byKey[c.UID()]; ok && old.Name() != c.Name() {
		delete(r.byName, old.Name())
	}
	r.byKey[c.Name()] = c
	r.byKey[c.UID()] = c
	r.byName[c.Name()] = c
}

// Get returns the codec registered under a name or UID
func (r *Registry) Get(nameOrUID string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byKey[nameOrUID]
	if !ok {
		return nil, ErrCodecNotFound
	}
	return c, nil
}

// List returns every registered codec once, ordered by name
func (r *Registry) List() []Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	codecs := make([]Codec, 0, len(names))
	for _, name := range names {
		codecs = append(codecs, r.byName[name])
	}
	return codecs
}
