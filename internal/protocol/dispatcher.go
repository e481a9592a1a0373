package protocol

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/codec"
)

// Dispatcher decodes and executes inbound packets, isolating every failure
// to the packet that caused it.
type Dispatcher struct {
	maxSize int
	saver   CardSaver
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher whose responses are encoded into
// buffers of at most maxSize bytes.
//
// Precondition: maxSize must be > 0; saver and logger must be non-nil.
func NewDispatcher(maxSize int, saver CardSaver, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{maxSize: maxSize, saver: saver, logger: logger}
}

// MaxSize returns the outbound buffer ceiling.
func (d *Dispatcher) MaxSize() int { return d.maxSize }

// Handle runs the packet registered for event against payload.
//
// Postcondition: ok is true only when the packet produced a response, in
// which case resp holds its encoded bytes. Unknown events, decode failures,
// execution failures and panics are logged and reported as ok == false.
func (d *Dispatcher) Handle(ctx context.Context, c Client, event string, payload []byte) (resp []byte, ok bool) {
	logger := d.logger.With(
		zap.String("account", c.AccountName()),
		zap.String("event", event),
	)

	newPacket, known := receivables[event]
	if !known {
		logger.Warn("unknown event", zap.Int("bytes", len(payload)))
		return nil, false
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("packet handler panicked", zap.Any("panic", r))
			resp, ok = nil, false
		}
	}()

	start := time.Now()
	pkt := newPacket()
	if err := pkt.Decode(codec.NewReader(payload)); err != nil {
		logger.Warn("failed to read packet", zap.Error(err))
		return nil, false
	}

	out, err := pkt.Execute(ctx, &Env{Client: c, Saver: d.saver, Logger: logger})
	if err != nil {
		logger.Error("failed to handle packet", zap.Error(err))
		return nil, false
	}
	logger.Debug("packet handled", zap.Duration("elapsed", time.Since(start)))
	if out == nil {
		return nil, false
	}
	return Materialize(out, d.maxSize, logger), true
}

// Materialize encodes s into an exact-length buffer. An encoding failure is
// logged and the bytes written before it are returned.
func Materialize(s Sendable, maxSize int, logger *zap.Logger) []byte {
	w := codec.NewWriter(maxSize)
	if err := s.Encode(w); err != nil {
		logger.Error("failed to write packet",
			zap.String("event", s.Event()),
			zap.Error(fmt.Errorf("encoding %s: %w", s.Event(), err)),
		)
	}
	return w.Bytes()
}
