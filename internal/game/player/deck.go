package player

import (
	"fmt"

	"github.com/cory-johannsen/duel/internal/game/card"
)

// DeckType is the section of a deck a slot belongs to.
type DeckType int

const (
	DeckNormal DeckType = iota
	DeckExtra
	DeckFusion
)

// String returns the persisted name of the deck type.
func (t DeckType) String() string {
	switch t {
	case DeckNormal:
		return "NORMAL"
	case DeckExtra:
		return "EXTRA"
	case DeckFusion:
		return "FUSION"
	default:
		return fmt.Sprintf("DeckType(%d)", int(t))
	}
}

// ParseDeckType is the inverse of DeckType.String.
func ParseDeckType(s string) (DeckType, error) {
	switch s {
	case "NORMAL":
		return DeckNormal, nil
	case "EXTRA":
		return DeckExtra, nil
	case "FUSION":
		return DeckFusion, nil
	default:
		return 0, fmt.Errorf("player: unknown deck type %q", s)
	}
}

// SlotTypeFor returns the deck section a template goes into.
// Unknown templates go into the normal deck.
func SlotTypeFor(t *card.Template) DeckType {
	if t != nil && t.Type.IsFusion() {
		return DeckFusion
	}
	return DeckNormal
}

// Slot places one owned card into a deck section.
type Slot struct {
	CardID int32
	Type   DeckType
}

// Deck is a named arrangement of owned cards.
type Deck struct {
	ID       int64
	PlayerID int64
	Name     string

	Main   []Slot
	Extra  []Slot
	Fusion []Slot
}

// AppendSlot adds s to the section named by its type.
//
// Postcondition: returns error and leaves the deck unchanged for an unknown type.
func (d *Deck) AppendSlot(s Slot) error {
	switch s.Type {
	case DeckNormal:
		d.Main = append(d.Main, s)
	case DeckExtra:
		d.Extra = append(d.Extra, s)
	case DeckFusion:
		d.Fusion = append(d.Fusion, s)
	default:
		return fmt.Errorf("player: deck %d: invalid slot type %d for card %d", d.ID, int(s.Type), s.CardID)
	}
	return nil
}

// Size returns the total number of slots across all sections.
func (d *Deck) Size() int {
	return len(d.Main) + len(d.Extra) + len(d.Fusion)
}
