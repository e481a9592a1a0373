package protocol

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/codec"
	"github.com/cory-johannsen/duel/internal/game/player"
)

func requireEmpty(r *codec.Reader) error {
	if r.Len() != 0 {
		return fmt.Errorf("%w: expected empty payload, got %d bytes", ErrMalformedPacket, r.Len())
	}
	return nil
}

func boolByte(b bool) int8 {
	if b {
		return 1
	}
	return 0
}

// CardListRequest asks for every owned card.
type CardListRequest struct{}

// Decode implements Receivable.
func (*CardListRequest) Decode(r *codec.Reader) error { return requireEmpty(r) }

// Execute implements Receivable.
func (*CardListRequest) Execute(_ context.Context, env *Env) (Sendable, error) {
	p := env.Client.Player()
	if p == nil {
		return nil, ErrNoPlayer
	}
	return &CardList{Cards: p.Cards()}, nil
}

// CardList answers CardListRequest.
//
// Layout: int32 count; count × {int32 id, int32 templateId, int8 isNew}.
type CardList struct {
	Cards []player.Card
}

// CardListEntrySize is the encoded width of one CardList entry.
const CardListEntrySize = 2*codec.SizeInt32 + codec.SizeInt8

// Event implements Sendable.
func (*CardList) Event() string { return EventCardListResponse }

// Encode implements Sendable.
func (m *CardList) Encode(w *codec.Writer) error {
	if err := w.WriteInt32(int32(len(m.Cards))); err != nil {
		return err
	}
	for _, c := range m.Cards {
		if err := w.WriteInt32(c.ID); err != nil {
			return err
		}
		if err := w.WriteInt32(c.TemplateID); err != nil {
			return err
		}
		if err := w.WriteInt8(boolByte(c.IsNew)); err != nil {
			return err
		}
	}
	return nil
}

// CardInventoryRequest asks for every owned card with quantities and limits.
type CardInventoryRequest struct{}

// Decode implements Receivable.
func (*CardInventoryRequest) Decode(r *codec.Reader) error { return requireEmpty(r) }

// Execute implements Receivable.
func (*CardInventoryRequest) Execute(_ context.Context, env *Env) (Sendable, error) {
	p := env.Client.Player()
	if p == nil {
		return nil, ErrNoPlayer
	}
	return &CardInventory{Cards: p.Cards()}, nil
}

// CardInventory answers CardInventoryRequest.
//
// Layout: int32 count; count × {int32 id, int32 templateId, int8 isNew,
// int32 count, int8 deckLimit}.
type CardInventory struct {
	Cards []player.Card
}

// CardInventoryEntrySize is the encoded width of one CardInventory entry.
const CardInventoryEntrySize = 3*codec.SizeInt32 + 2*codec.SizeInt8

// Event implements Sendable.
func (*CardInventory) Event() string { return EventCardInventoryResponse }

// Encode implements Sendable.
func (m *CardInventory) Encode(w *codec.Writer) error {
	if err := w.WriteInt32(int32(len(m.Cards))); err != nil {
		return err
	}
	for _, c := range m.Cards {
		if err := w.WriteInt32(c.ID); err != nil {
			return err
		}
		if err := w.WriteInt32(c.TemplateID); err != nil {
			return err
		}
		if err := w.WriteInt8(boolByte(c.IsNew)); err != nil {
			return err
		}
		if err := w.WriteInt32(c.Count); err != nil {
			return err
		}
		if err := w.WriteInt8(c.DeckLimit()); err != nil {
			return err
		}
	}
	return nil
}

// ClearCardNewStateRequest marks an owned card as seen. It has no response.
//
// Layout: int32 cardId.
type ClearCardNewStateRequest struct {
	CardID int32
}

// Decode implements Receivable.
func (m *ClearCardNewStateRequest) Decode(r *codec.Reader) error {
	if r.Len() != codec.SizeInt32 {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedPacket, codec.SizeInt32, r.Len())
	}
	id, err := r.ReadInt32()
	if err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("%w: card id %d", ErrMalformedPacket, id)
	}
	m.CardID = id
	return nil
}

// Execute implements Receivable. Unknown or already-seen cards are warned
// about and ignored. A failed save leaves the card dirty for the next
// player flush.
func (m *ClearCardNewStateRequest) Execute(ctx context.Context, env *Env) (Sendable, error) {
	p := env.Client.Player()
	if p == nil {
		return nil, ErrNoPlayer
	}
	c, err := p.ClearNew(m.CardID)
	switch {
	case errors.Is(err, player.ErrCardNotOwned):
		env.Logger.Warn("card not owned", zap.Int32("card", m.CardID))
		return nil, nil
	case errors.Is(err, player.ErrCardNotNew):
		env.Logger.Warn("card is already not new", zap.Int32("card", m.CardID))
		return nil, nil
	case err != nil:
		return nil, err
	}

	if err := env.Saver.SaveCard(ctx, c); err != nil {
		return nil, fmt.Errorf("saving card %d: %w", c.ID, err)
	}
	p.MarkClean(c.ID)
	env.Logger.Debug("card new state cleared", zap.Int32("card", c.ID))
	return nil, nil
}
