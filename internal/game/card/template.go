// Package card defines read-only card reference data: templates and the
// pre-built decks (starter and CPU) loaded from content files.
package card

// Type is the card type bitmask carried by a template.
type Type int32

// Known card types.
const (
	TypeSpell                 Type = 2
	TypeTrap                  Type = 4
	TypeMonster               Type = 17
	TypeEffectMonster         Type = 33
	TypeFusionMonster         Type = 65
	TypeFusionEffectMonster   Type = 97
	TypeRitualMonster         Type = 129
	TypeRitualSpell           Type = 130
	TypeQuickSpell            Type = 65538
	TypeContinuousSpell       Type = 131074
	TypeContinuousTrap        Type = 131076
	TypeEquipSpell            Type = 262146
	TypeFieldSpell            Type = 524290
	TypeCounterTrap           Type = 1048580
	TypeFlipEffectMonster     Type = 2097185
	TypeEffectMonsterNoSummon Type = 33554465
	TypeToonMonster           Type = 37748769
	typeFusionBit             Type = 64
	typeMonsterBit            Type = 1
	typeSpellBit              Type = 2
	typeTrapBit               Type = 4
)

// IsMonster reports whether the type carries the monster bit.
func (t Type) IsMonster() bool { return t&typeMonsterBit != 0 }

// IsSpell reports whether the type carries the spell bit.
func (t Type) IsSpell() bool { return t&typeSpellBit != 0 }

// IsTrap reports whether the type carries the trap bit.
func (t Type) IsTrap() bool { return t&typeTrapBit != 0 }

// IsFusion reports whether the card belongs in the fusion deck.
func (t Type) IsFusion() bool { return t.IsMonster() && t&typeFusionBit != 0 }

// DefaultDeckLimit is the number of copies of a card a deck may hold when the
// template does not restrict it.
const DefaultDeckLimit int8 = 3

// Template is the immutable definition of a card.
type Template struct {
	ID        int32
	Name      string
	Type      Type
	Attack    int32
	Defense   int32
	Level     int32
	Race      int32
	Attribute int32
	// DeckLimit is the number of copies allowed in one deck (0 = forbidden).
	DeckLimit int8
}
