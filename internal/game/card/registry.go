package card

import (
	"fmt"
	"sort"
)

// Registry holds all loaded card templates and named decks.
// It is built once at startup and read-only afterwards.
type Registry struct {
	templates map[int32]*Template
	decks     map[string][]int32
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[int32]*Template),
		decks:     make(map[string][]int32),
	}
}

// RegisterTemplate adds t to the registry.
//
// Precondition: t must not be nil and t.ID must be > 0.
// Postcondition: Template(t.ID) returns t; returns error if t.ID is already registered.
func (r *Registry) RegisterTemplate(t *Template) error {
	if t.ID <= 0 {
		return fmt.Errorf("card: Registry.RegisterTemplate: invalid template ID %d", t.ID)
	}
	if _, exists := r.templates[t.ID]; exists {
		return fmt.Errorf("card: Registry.RegisterTemplate: template ID %d already registered", t.ID)
	}
	r.templates[t.ID] = t
	return nil
}

// RegisterDeck adds a named deck of template IDs.
//
// Postcondition: Deck(name) returns the IDs; returns error if the name is taken
// or a template ID is unknown.
func (r *Registry) RegisterDeck(name string, templateIDs []int32) error {
	if name == "" {
		return fmt.Errorf("card: Registry.RegisterDeck: deck name must not be empty")
	}
	if _, exists := r.decks[name]; exists {
		return fmt.Errorf("card: Registry.RegisterDeck: deck %q already registered", name)
	}
	for _, id := range templateIDs {
		if _, ok := r.templates[id]; !ok {
			return fmt.Errorf("card: Registry.RegisterDeck: deck %q references unknown template %d", name, id)
		}
	}
	ids := make([]int32, len(templateIDs))
	copy(ids, templateIDs)
	r.decks[name] = ids
	return nil
}

// Template returns the template with the given ID, if registered.
func (r *Registry) Template(id int32) (*Template, bool) {
	t, ok := r.templates[id]
	return t, ok
}

// Deck returns a copy of the template IDs of the named deck.
func (r *Registry) Deck(name string) ([]int32, bool) {
	ids, ok := r.decks[name]
	if !ok {
		return nil, false
	}
	out := make([]int32, len(ids))
	copy(out, ids)
	return out, true
}

// DeckNames returns all registered deck names in sorted order.
func (r *Registry) DeckNames() []string {
	names := make([]string, 0, len(r.decks))
	for n := range r.decks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TemplateCount returns the number of registered templates.
func (r *Registry) TemplateCount() int {
	return len(r.templates)
}

// DeckLimit returns the copy limit for a template, or DefaultDeckLimit when
// the template is unknown.
func (r *Registry) DeckLimit(id int32) int8 {
	if t, ok := r.templates[id]; ok {
		return t.DeckLimit
	}
	return DefaultDeckLimit
}
