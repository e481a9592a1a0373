package socket

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/duel/internal/codec"
)

// Frame kinds.
const (
	// KindEvent carries an event name, an acknowledgement ID and a packet payload.
	KindEvent int8 = 0
	// KindAck answers an event frame that requested acknowledgement.
	KindAck int8 = 1
)

// ErrMalformedFrame is returned by DecodeFrame for envelopes that cannot be parsed.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one WebSocket binary message.
//
// Event layout: int8 kind, string event, int32 ackId, payload.
// Ack layout: int8 kind, int32 ackId, payload.
// An ackId of 0 means no acknowledgement is requested.
type Frame struct {
	Kind    int8
	Event   string
	AckID   int32
	Payload []byte
}

// EncodeEvent builds an event frame.
func EncodeEvent(event string, ackID int32, payload []byte) []byte {
	w := codec.NewWriter(codec.SizeInt8 + codec.StringSize(event) + codec.SizeInt32 + len(payload))
	// The writer is sized exactly, so none of these can overflow.
	_ = w.WriteInt8(KindEvent)
	_ = w.WriteString(event)
	_ = w.WriteInt32(ackID)
	_ = w.WriteBytes(payload)
	return w.Bytes()
}

// EncodeAck builds an acknowledgement frame.
func EncodeAck(ackID int32, payload []byte) []byte {
	w := codec.NewWriter(codec.SizeInt8 + codec.SizeInt32 + len(payload))
	_ = w.WriteInt8(KindAck)
	_ = w.WriteInt32(ackID)
	_ = w.WriteBytes(payload)
	return w.Bytes()
}

// DecodeFrame parses a binary message. The returned payload aliases data.
func DecodeFrame(data []byte) (Frame, error) {
	r := codec.NewReader(data)
	kind, err := r.ReadInt8()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	f := Frame{Kind: kind}
	switch kind {
	case KindEvent:
		f.Event = r.ReadString()
		if f.Event == "" {
			return Frame{}, fmt.Errorf("%w: empty event name", ErrMalformedFrame)
		}
	case KindAck:
	default:
		return Frame{}, fmt.Errorf("%w: unknown kind %d", ErrMalformedFrame, kind)
	}

	if f.AckID, err = r.ReadInt32(); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if f.AckID < 0 {
		return Frame{}, fmt.Errorf("%w: negative ack id %d", ErrMalformedFrame, f.AckID)
	}
	f.Payload = r.Rest()
	return f, nil
}
