package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/duel/internal/game/card"
	"github.com/cory-johannsen/duel/internal/game/player"
)

// ErrPlayerNotFound is returned when a player lookup yields no results.
var ErrPlayerNotFound = errors.New("player not found")

// ErrStarterDeckMissing is returned when the configured starter deck is not
// present in the card registry.
var ErrStarterDeckMissing = errors.New("starter deck not loaded")

// PlayerRepository persists player profiles, owned cards and decks.
type PlayerRepository struct {
	db          *pgxpool.Pool
	cards       *card.Registry
	starterDeck string
}

// NewPlayerRepository creates a PlayerRepository.
//
// Precondition: db must be open; cards must be fully loaded.
func NewPlayerRepository(db *pgxpool.Pool, cards *card.Registry, starterDeck string) *PlayerRepository {
	return &PlayerRepository{db: db, cards: cards, starterDeck: starterDeck}
}

// RestoreOrCreate loads the player profile of an account, creating it on
// first login. A profile without cards receives the starter cards, and a
// profile without decks receives a default deck holding every owned card.
//
// Precondition: accountID must reference an existing account.
// Postcondition: Returns a fully loaded Player or a non-nil error; on error
// nothing is committed.
func (r *PlayerRepository) RestoreOrCreate(ctx context.Context, accountID int64) (*player.Player, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := r.loadOrInsertPlayer(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if err := r.loadCards(ctx, tx, p); err != nil {
		return nil, err
	}
	if p.CardCount() == 0 {
		if err := r.createStarterCards(ctx, tx, p); err != nil {
			return nil, err
		}
	}
	if err := r.loadDecks(ctx, tx, p); err != nil {
		return nil, err
	}
	if p.DeckCount() == 0 {
		if err := r.createStarterDeck(ctx, tx, p); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing player %d: %w", p.ID, err)
	}
	return p, nil
}

func (r *PlayerRepository) loadOrInsertPlayer(ctx context.Context, tx pgx.Tx, accountID int64) (*player.Player, error) {
	var (
		id       int64
		deckID   *int64
		settings player.Settings
	)
	err := tx.QueryRow(ctx, `
		SELECT id, current_deck_id, volume, forbidden_cards_enabled, full_screen_enabled
		FROM players WHERE account_id = $1`,
		accountID,
	).Scan(&id, &deckID, &settings.Volume, &settings.ForbiddenCardsEnabled, &settings.FullScreenEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, `
			INSERT INTO players (account_id) VALUES ($1)
			RETURNING id, current_deck_id, volume, forbidden_cards_enabled, full_screen_enabled`,
			accountID,
		).Scan(&id, &deckID, &settings.Volume, &settings.ForbiddenCardsEnabled, &settings.FullScreenEnabled)
		if err != nil {
			return nil, fmt.Errorf("inserting player for account %d: %w", accountID, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("querying player for account %d: %w", accountID, err)
	}

	p := player.New(id, accountID)
	p.SetSettings(settings)
	if deckID != nil {
		p.SetCurrentDeckID(*deckID)
	}
	return p, nil
}

func (r *PlayerRepository) newCard(id int32, playerID int64, templateID, count int32, isNew bool) *player.Card {
	c := &player.Card{ID: id, PlayerID: playerID, TemplateID: templateID, Count: count, IsNew: isNew}
	if t, ok := r.cards.Template(templateID); ok {
		c.Template = t
	}
	return c
}

func (r *PlayerRepository) loadCards(ctx context.Context, tx pgx.Tx, p *player.Player) error {
	rows, err := tx.Query(ctx, `
		SELECT id, template_id, count, is_new
		FROM player_cards WHERE player_id = $1 ORDER BY id`,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("listing cards of player %d: %w", p.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, templateID, count int32
			isNew                 bool
		)
		if err := rows.Scan(&id, &templateID, &count, &isNew); err != nil {
			return fmt.Errorf("scanning card: %w", err)
		}
		p.AddCard(r.newCard(id, p.ID, templateID, count, isNew))
	}
	return rows.Err()
}

func (r *PlayerRepository) createStarterCards(ctx context.Context, tx pgx.Tx, p *player.Player) error {
	templateIDs, ok := r.cards.Deck(r.starterDeck)
	if !ok {
		return fmt.Errorf("%w: %q", ErrStarterDeckMissing, r.starterDeck)
	}
	for _, templateID := range templateIDs {
		var id int32
		err := tx.QueryRow(ctx, `
			INSERT INTO player_cards (player_id, template_id, count, is_new)
			VALUES ($1, $2, 1, FALSE)
			RETURNING id`,
			p.ID, templateID,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting starter card %d: %w", templateID, err)
		}
		p.AddCard(r.newCard(id, p.ID, templateID, 1, false))
	}
	return nil
}

func (r *PlayerRepository) loadDecks(ctx context.Context, tx pgx.Tx, p *player.Player) error {
	rows, err := tx.Query(ctx, `
		SELECT id, name FROM player_decks WHERE player_id = $1 ORDER BY id`,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("listing decks of player %d: %w", p.ID, err)
	}
	var decks []*player.Deck
	for rows.Next() {
		d := &player.Deck{PlayerID: p.ID}
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			rows.Close()
			return fmt.Errorf("scanning deck: %w", err)
		}
		decks = append(decks, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing decks of player %d: %w", p.ID, err)
	}

	for _, d := range decks {
		if err := r.loadSlots(ctx, tx, p, d); err != nil {
			return err
		}
		p.AddDeck(d)
	}
	return nil
}

// loadSlots skips slots referencing cards the player no longer owns.
func (r *PlayerRepository) loadSlots(ctx context.Context, tx pgx.Tx, p *player.Player, d *player.Deck) error {
	rows, err := tx.Query(ctx, `
		SELECT card_id, type FROM player_deck_slots WHERE deck_id = $1`,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("listing slots of deck %d: %w", d.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cardID int32
			typ    string
		)
		if err := rows.Scan(&cardID, &typ); err != nil {
			return fmt.Errorf("scanning slot: %w", err)
		}
		if _, owned := p.Card(cardID); !owned {
			continue
		}
		dt, err := player.ParseDeckType(typ)
		if err != nil {
			return err
		}
		if err := d.AppendSlot(player.Slot{CardID: cardID, Type: dt}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *PlayerRepository) createStarterDeck(ctx context.Context, tx pgx.Tx, p *player.Player) error {
	d := &player.Deck{PlayerID: p.ID, Name: player.DefaultDeckName}
	err := tx.QueryRow(ctx, `
		INSERT INTO player_decks (player_id, name) VALUES ($1, $2) RETURNING id`,
		p.ID, d.Name,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("inserting default deck: %w", err)
	}

	for _, c := range p.Cards() {
		slot := player.Slot{CardID: c.ID, Type: player.SlotTypeFor(c.Template)}
		if _, err := tx.Exec(ctx, `
			INSERT INTO player_deck_slots (deck_id, card_id, type) VALUES ($1, $2, $3)`,
			d.ID, slot.CardID, slot.Type.String(),
		); err != nil {
			return fmt.Errorf("inserting slot for card %d: %w", c.ID, err)
		}
		if err := d.AppendSlot(slot); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE players SET current_deck_id = $1 WHERE id = $2`,
		d.ID, p.ID,
	); err != nil {
		return fmt.Errorf("selecting default deck: %w", err)
	}
	p.AddDeck(d)
	p.SetCurrentDeckID(d.ID)
	return nil
}

// SaveCard persists the mutable fields of one owned card.
//
// Postcondition: Returns ErrPlayerNotFound if the card row does not belong to c.PlayerID.
func (r *PlayerRepository) SaveCard(ctx context.Context, c player.Card) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE player_cards SET count = $1, is_new = $2 WHERE id = $3 AND player_id = $4`,
		c.Count, c.IsNew, c.ID, c.PlayerID,
	)
	if err != nil {
		return fmt.Errorf("updating card %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("card %d: %w", c.ID, ErrPlayerNotFound)
	}
	return nil
}

// SavePlayer persists settings, the selected deck and every dirty card.
//
// Postcondition: saved cards are marked clean; the first failure is returned
// and the remaining dirty cards stay dirty.
func (r *PlayerRepository) SavePlayer(ctx context.Context, p *player.Player) error {
	s := p.Settings()
	var deckID *int64
	if id := p.CurrentDeckID(); id != 0 {
		deckID = &id
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE players
		SET current_deck_id = $1, volume = $2, forbidden_cards_enabled = $3, full_screen_enabled = $4
		WHERE id = $5`,
		deckID, s.Volume, s.ForbiddenCardsEnabled, s.FullScreenEnabled, p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating player %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}

	for _, c := range p.DirtyCards() {
		if err := r.SaveCard(ctx, c); err != nil {
			return err
		}
		p.MarkClean(c.ID)
	}
	return nil
}
