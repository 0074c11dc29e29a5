package persona

// Store exposes persona retrieval for HTTP handlers and the orchestrator.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
	Default() Persona
}

// MemoryStore implements Store over a fixed slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// Default returns the Enrique persona, the first entry, or the built-in seed.
func (s *MemoryStore) Default() Persona {
	if p, ok := s.FindByID(DefaultID); ok {
		return p
	}
	if len(s.items) > 0 {
		return s.items[0]
	}
	return Seed()[0]
}
