package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cory-johannsen/duel/internal/game/card"
	"github.com/cory-johannsen/duel/internal/game/player"
	"github.com/cory-johannsen/duel/internal/storage/postgres"
)

// AccountStore is an in-memory account store with the same error contract
// as postgres.AccountRepository. Passwords are kept in plain text.
type AccountStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[string]postgres.Account
	// Delay is slept inside Authenticate to widen race windows in tests.
	Delay time.Duration
	// Err, when set, is returned by every call.
	Err error
}

// NewAccountStore returns an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]postgres.Account)}
}

// Authenticate implements gateway.AccountStore.
func (s *AccountStore) Authenticate(_ context.Context, name, password string) (postgres.Account, error) {
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return postgres.Account{}, s.Err
	}
	acct, ok := s.accounts[name]
	if !ok {
		return postgres.Account{}, postgres.ErrAccountNotFound
	}
	if acct.PasswordHash != password {
		return postgres.Account{}, postgres.ErrInvalidCredentials
	}
	return acct, nil
}

// Create implements gateway.AccountStore.
func (s *AccountStore) Create(_ context.Context, name, password string) (postgres.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return postgres.Account{}, s.Err
	}
	if !postgres.ValidAccountName(name) {
		return postgres.Account{}, postgres.ErrInvalidAccountName
	}
	if _, exists := s.accounts[name]; exists {
		return postgres.Account{}, postgres.ErrAccountExists
	}
	s.nextID++
	acct := postgres.Account{ID: s.nextID, Name: name, PasswordHash: password, CreatedAt: time.Now()}
	s.accounts[name] = acct
	return acct, nil
}

// Count returns the number of stored accounts.
func (s *AccountStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// PlayerStore is an in-memory player store seeding profiles from a deck in
// a card registry, mirroring postgres.PlayerRepository.
type PlayerStore struct {
	cards       *card.Registry
	starterDeck string

	mu      sync.Mutex
	players map[int64]*player.Player
	nextID  int64
	cardSeq int32

	// Saves counts SavePlayer calls; SavedCards counts SaveCard calls.
	Saves      atomic.Int32
	SavedCards atomic.Int32
	// SaveErr, when set, is returned by SavePlayer and SaveCard.
	SaveErr error
}

// NewPlayerStore returns an empty PlayerStore.
func NewPlayerStore(cards *card.Registry, starterDeck string) *PlayerStore {
	return &PlayerStore{cards: cards, starterDeck: starterDeck, players: make(map[int64]*player.Player)}
}

// RestoreOrCreate implements gateway.PlayerStore.
func (s *PlayerStore) RestoreOrCreate(_ context.Context, accountID int64) (*player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[accountID]; ok {
		return p, nil
	}
	ids, ok := s.cards.Deck(s.starterDeck)
	if !ok {
		return nil, postgres.ErrStarterDeckMissing
	}
	s.nextID++
	p := player.New(s.nextID, accountID)
	deck := &player.Deck{ID: s.nextID, PlayerID: p.ID, Name: player.DefaultDeckName}
	for _, templateID := range ids {
		s.cardSeq++
		c := &player.Card{ID: s.cardSeq, PlayerID: p.ID, TemplateID: templateID, Count: 1}
		c.Template, _ = s.cards.Template(templateID)
		p.AddCard(c)
		_ = deck.AppendSlot(player.Slot{CardID: c.ID, Type: player.SlotTypeFor(c.Template)})
	}
	p.AddDeck(deck)
	p.SetCurrentDeckID(deck.ID)
	s.players[accountID] = p
	return p, nil
}

// SavePlayer implements session.PlayerSaver.
func (s *PlayerStore) SavePlayer(_ context.Context, p *player.Player) error {
	s.Saves.Add(1)
	if s.SaveErr != nil {
		return s.SaveErr
	}
	for _, c := range p.DirtyCards() {
		p.MarkClean(c.ID)
	}
	return nil
}

// SaveCard implements protocol.CardSaver.
func (s *PlayerStore) SaveCard(context.Context, player.Card) error {
	s.SavedCards.Add(1)
	return s.SaveErr
}

// CardRegistry returns a small registry with a three-card "playerStarter" deck,
// one of which is a fusion monster.
func CardRegistry() *card.Registry {
	reg := card.NewRegistry()
	for _, t := range []*card.Template{
		{ID: 46986414, Name: "Dark Magician", Type: card.TypeMonster, Attack: 2500, Defense: 2100, Level: 7, DeckLimit: 3},
		{ID: 66889139, Name: "Gaia the Dragon Champion", Type: card.TypeFusionMonster, Attack: 2600, Defense: 2100, Level: 7, DeckLimit: 3},
		{ID: 12580477, Name: "Raigeki", Type: card.TypeSpell, DeckLimit: 1},
	} {
		_ = reg.RegisterTemplate(t)
	}
	_ = reg.RegisterDeck("playerStarter", []int32{46986414, 66889139, 12580477})
	return reg
}
