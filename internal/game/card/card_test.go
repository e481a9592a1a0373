package card_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cory-johannsen/duel/internal/game/card"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestParseTemplates_DefaultsLimit(t *testing.T) {
	templates, err := card.ParseTemplates([]byte(`
- id: 46986414
  name: Dark Magician
  type: 17
  atk: 2500
  def: 2100
  level: 7
  race: 2
  attribute: 32
- id: 12580477
  name: Raigeki
  type: 2
  limit: 1
- id: 55144522
  name: Pot of Greed
  type: 2
  limit: 0
`))
	require.NoError(t, err)
	require.Len(t, templates, 3)

	dm := templates[0]
	assert.Equal(t, int32(46986414), dm.ID)
	assert.Equal(t, "Dark Magician", dm.Name)
	assert.Equal(t, int32(2500), dm.Attack)
	assert.Equal(t, int32(2100), dm.Defense)
	assert.Equal(t, card.DefaultDeckLimit, dm.DeckLimit)
	assert.True(t, dm.Type.IsMonster())

	assert.Equal(t, int8(1), templates[1].DeckLimit)
	assert.Equal(t, int8(0), templates[2].DeckLimit, "explicit zero limit must be kept")
}

func TestParseTemplates_InvalidYAML(t *testing.T) {
	_, err := card.ParseTemplates([]byte("- id: [unterminated"))
	assert.Error(t, err)
}

func TestType_Classification(t *testing.T) {
	assert.True(t, card.TypeFusionMonster.IsFusion())
	assert.True(t, card.TypeFusionEffectMonster.IsFusion())
	assert.False(t, card.TypeMonster.IsFusion())
	assert.False(t, card.TypeEffectMonster.IsFusion())
	assert.True(t, card.TypeQuickSpell.IsSpell())
	assert.False(t, card.TypeQuickSpell.IsMonster())
	assert.True(t, card.TypeCounterTrap.IsTrap())
}

func TestRegistry_RejectsDuplicatesAndUnknownDeckCards(t *testing.T) {
	reg := card.NewRegistry()
	require.NoError(t, reg.RegisterTemplate(&card.Template{ID: 1, DeckLimit: 3}))
	assert.Error(t, reg.RegisterTemplate(&card.Template{ID: 1}))
	assert.Error(t, reg.RegisterTemplate(&card.Template{ID: 0}))

	require.NoError(t, reg.RegisterDeck("starter", []int32{1, 1}))
	assert.Error(t, reg.RegisterDeck("starter", []int32{1}))
	assert.Error(t, reg.RegisterDeck("broken", []int32{2}))
	assert.Error(t, reg.RegisterDeck("", nil))

	ids, ok := reg.Deck("starter")
	require.True(t, ok)
	assert.Equal(t, []int32{1, 1}, ids)
	ids[0] = 99
	again, _ := reg.Deck("starter")
	assert.Equal(t, int32(1), again[0], "Deck must return a copy")

	_, ok = reg.Deck("missing")
	assert.False(t, ok)
}

func TestRegistry_DeckLimitFallback(t *testing.T) {
	reg := card.NewRegistry()
	require.NoError(t, reg.RegisterTemplate(&card.Template{ID: 7, DeckLimit: 1}))
	assert.Equal(t, int8(1), reg.DeckLimit(7))
	assert.Equal(t, card.DefaultDeckLimit, reg.DeckLimit(8))
}

func TestLoad_TemplatesAndDecks(t *testing.T) {
	dir := t.TempDir()
	cards := filepath.Join(dir, "cards.yaml")
	writeFile(t, cards, `
- id: 10
  name: Ten
  type: 17
- id: 20
  name: Twenty
  type: 65
`)
	decks := filepath.Join(dir, "decks")
	require.NoError(t, os.Mkdir(decks, 0755))
	writeFile(t, filepath.Join(decks, "playerStarter.deck.yaml"), "cards: [10, 20]\n")
	writeFile(t, filepath.Join(decks, "notes.txt"), "ignored")

	reg, err := card.Load(cards, decks)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.TemplateCount())
	assert.Equal(t, []string{"playerStarter"}, reg.DeckNames())

	ids, ok := reg.Deck("playerStarter")
	require.True(t, ok)
	assert.Equal(t, []int32{10, 20}, ids)
}

func TestLoad_UnknownCardInDeck(t *testing.T) {
	dir := t.TempDir()
	cards := filepath.Join(dir, "cards.yaml")
	writeFile(t, cards, "- id: 10\n  type: 17\n")
	writeFile(t, filepath.Join(dir, "bad.deck.yaml"), "cards: [11]\n")

	_, err := card.Load(cards, dir)
	assert.Error(t, err)
}

func TestLoad_ShippedContent(t *testing.T) {
	reg, err := card.Load("../../../content/cards.yaml", "../../../content/decks")
	require.NoError(t, err)
	ids, ok := reg.Deck("playerStarter")
	require.True(t, ok)
	assert.NotEmpty(t, ids)
}

func TestPropertyRegistry_DeckRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg := card.NewRegistry()
		n := rapid.IntRange(1, 20).Draw(rt, "templates")
		for i := 1; i <= n; i++ {
			if err := reg.RegisterTemplate(&card.Template{ID: int32(i)}); err != nil {
				rt.Fatalf("register %d: %v", i, err)
			}
		}
		ids := rapid.SliceOf(rapid.Int32Range(1, int32(n))).Draw(rt, "deck")
		if err := reg.RegisterDeck("d", ids); err != nil {
			rt.Fatalf("register deck: %v", err)
		}
		got, _ := reg.Deck("d")
		if len(got) != len(ids) {
			rt.Fatalf("deck length %d, want %d", len(got), len(ids))
		}
		for i := range ids {
			if got[i] != ids[i] {
				rt.Fatalf("deck[%d] = %d, want %d", i, got[i], ids[i])
			}
		}
	})
}
