// Package protocol defines the gameplay packets exchanged over a bound socket.
// Each inbound event name maps to one Receivable type; responses and pushes
// are Sendables carrying a fixed event name. Field layouts are expressed as
// ordered codec calls.
package protocol

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/codec"
	"github.com/cory-johannsen/duel/internal/game/player"
)

// Inbound event names.
const (
	EventCardListRequest          = "cardListRequest"
	EventCardInventoryRequest     = "cardInventoryRequest"
	EventClearCardNewStateRequest = "clearCardNewStateRequest"
	// EventPlayerNewCardAction is the older client's name for clearing the new flag.
	EventPlayerNewCardAction = "playerNewCardAction"
)

// Outbound event names.
const (
	EventCardListResponse      = "cardListResponse"
	EventCardInventoryResponse = "cardInventoryResponse"
)

// ErrMalformedPacket is returned by Decode when the payload fails a
// structural or range check.
var ErrMalformedPacket = errors.New("malformed packet")

// ErrNoPlayer is returned by Execute when the client has no player profile.
var ErrNoPlayer = errors.New("client has no player profile")

// Client is the session a packet executes on behalf of.
type Client interface {
	AccountName() string
	Player() *player.Player
}

// CardSaver persists a single inventory slot.
type CardSaver interface {
	SaveCard(ctx context.Context, c player.Card) error
}

// Env is what a Receivable may touch while executing.
type Env struct {
	Client Client
	Saver  CardSaver
	// Logger is already scoped to the account and event.
	Logger *zap.Logger
}

// Receivable is a client-to-server packet.
type Receivable interface {
	// Decode reads and validates the payload. It must reject a payload of
	// the wrong shape before trusting any decoded value.
	Decode(r *codec.Reader) error
	// Execute applies the request. A nil Sendable means no response.
	Execute(ctx context.Context, env *Env) (Sendable, error)
}

// Sendable is a server-to-client packet.
type Sendable interface {
	Event() string
	Encode(w *codec.Writer) error
}

// receivables maps each inbound event name to a constructor for its packet.
var receivables = map[string]func() Receivable{
	EventCardListRequest:          func() Receivable { return &CardListRequest{} },
	EventCardInventoryRequest:     func() Receivable { return &CardInventoryRequest{} },
	EventClearCardNewStateRequest: func() Receivable { return &ClearCardNewStateRequest{} },
	EventPlayerNewCardAction:      func() Receivable { return &ClearCardNewStateRequest{} },
}

// Known reports whether event names a registered inbound packet.
func Known(event string) bool {
	_, ok := receivables[event]
	return ok
}

// Events returns every registered inbound event name, sorted.
func Events() []string {
	out := make([]string, 0, len(receivables))
	for name := range receivables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
