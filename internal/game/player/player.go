// Package player holds the per-account mutable game profile: owned cards
// (inventory slots), decks and client settings.
package player

import (
	"errors"
	"sort"
	"sync"

	"github.com/cory-johannsen/duel/internal/game/card"
)

// DefaultDeckName is the name of the deck created for every new player.
const DefaultDeckName = "default"

// ErrCardNotOwned is returned when an operation names a card the player does not own.
var ErrCardNotOwned = errors.New("player: card not owned")

// ErrCardNotNew is returned when clearing the new flag of a card that is not new.
var ErrCardNotNew = errors.New("player: card is not new")

// Settings holds the client-side preferences persisted with the player.
type Settings struct {
	Volume                int32
	ForbiddenCardsEnabled bool
	FullScreenEnabled     bool
}

// Card is one inventory slot: a template the player owns, how many copies,
// and whether it has been seen yet.
type Card struct {
	ID         int32
	PlayerID   int64
	TemplateID int32
	Count      int32
	IsNew      bool
	// Template is nil when the template ID is not in the loaded content.
	Template *card.Template
}

// DeckLimit returns the deck copy limit of the card's template.
func (c Card) DeckLimit() int8 {
	if c.Template == nil {
		return card.DefaultDeckLimit
	}
	return c.Template.DeckLimit
}

// Player is the in-memory profile of one account.
// All methods are safe for concurrent use.
type Player struct {
	ID        int64
	AccountID int64

	mu            sync.Mutex
	settings      Settings
	currentDeckID int64
	cards         map[int32]*Card
	decks         map[string]*Deck
	dirty         map[int32]struct{}
}

// New returns an empty Player.
func New(id, accountID int64) *Player {
	return &Player{
		ID:        id,
		AccountID: accountID,
		cards:     make(map[int32]*Card),
		decks:     make(map[string]*Deck),
		dirty:     make(map[int32]struct{}),
	}
}

// Settings returns the player's settings.
func (p *Player) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetSettings replaces the player's settings.
func (p *Player) SetSettings(s Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = s
}

// AddCard adds or replaces an owned card. The card is not marked dirty.
//
// Precondition: c must not be nil.
func (p *Player) AddCard(c *Card) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cards[c.ID] = c
}

// Card returns a copy of the owned card with the given ID.
func (p *Player) Card(id int32) (Card, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cards[id]
	if !ok {
		return Card{}, false
	}
	return *c, true
}

// Cards returns copies of every owned card ordered by ID.
func (p *Player) Cards() []Card {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Card, 0, len(p.cards))
	for _, c := range p.cards {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CardCount returns the number of owned inventory slots.
func (p *Player) CardCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cards)
}

// ClearNew clears the new flag of an owned card and marks it dirty.
//
// Postcondition: on success the returned copy has IsNew == false.
// Returns ErrCardNotOwned or ErrCardNotNew without modifying anything.
func (p *Player) ClearNew(id int32) (Card, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cards[id]
	if !ok {
		return Card{}, ErrCardNotOwned
	}
	if !c.IsNew {
		return *c, ErrCardNotNew
	}
	c.IsNew = false
	p.dirty[id] = struct{}{}
	return *c, nil
}

// DirtyCards returns copies of the cards changed since they were last marked
// clean, ordered by ID.
func (p *Player) DirtyCards() []Card {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Card, 0, len(p.dirty))
	for id := range p.dirty {
		if c, ok := p.cards[id]; ok {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkClean removes a card from the dirty set.
func (p *Player) MarkClean(id int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.dirty, id)
}

// AddDeck registers a deck under its name, replacing any deck of the same name.
func (p *Player) AddDeck(d *Deck) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decks[d.Name] = d
}

// Deck returns the named deck.
func (p *Player) Deck(name string) (*Deck, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.decks[name]
	return d, ok
}

// DeckCount returns the number of decks the player owns.
func (p *Player) DeckCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.decks)
}

// CurrentDeckID returns the ID of the selected deck, or 0 when none is selected.
func (p *Player) CurrentDeckID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentDeckID
}

// SetCurrentDeckID selects a deck by ID.
func (p *Player) SetCurrentDeckID(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentDeckID = id
}

// CurrentDeck returns the selected deck, if it is loaded.
func (p *Player) CurrentDeck() (*Deck, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.decks {
		if d.ID == p.currentDeckID {
			return d, true
		}
	}
	return nil, false
}
