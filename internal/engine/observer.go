package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/bip/internal/ir"
)

// Observer receives every status event the engine emits, in seq order.
// Observe is called from the round loop and must not block for long.
type Observer interface {
	Observe(ctx context.Context, ev ir.StatusEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev ir.StatusEvent)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ev ir.StatusEvent) { f(ctx, ev) }

type subscriber struct {
	ch      chan ir.StatusEvent
	dropped int
}

// Subscribe returns a channel receiving status events and a function that
// cancels the subscription and closes the channel. Events that do not fit
// in the buffer are dropped; the round loop never waits on a subscriber.
func (e *Engine) Subscribe(buffer int) (<-chan ir.StatusEvent, func()) {
	sub := &subscriber{ch: make(chan ir.StatusEvent, buffer)}
	e.emitMu.Lock()
	e.subscribers = append(e.subscribers, sub)
	e.emitMu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			e.emitMu.Lock()
			defer e.emitMu.Unlock()
			for i, s := range e.subscribers {
				if s == sub {
					e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
					break
				}
			}
			close(sub.ch)
		})
	}
}

// emit stamps ev with the run, seq and round and hands it to the logger,
// the journal, observers and subscribers, in that order.
func (e *Engine) emit(ctx context.Context, round int64, ev ir.StatusEvent) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	ev.RunID = e.runID
	ev.Round = round
	ev.Seq = e.clock.Next()

	e.log(ctx, ev)

	if e.store != nil && ev.RunID != "" {
		if err := e.store.WriteEvent(ctx, ev); err != nil {
			e.logger.Error("journal write failed", "seq", ev.Seq, "error", err)
		}
	}
	for _, o := range e.observers {
		o.Observe(ctx, ev)
	}
	for _, s := range e.subscribers {
		select {
		case s.ch <- ev:
		default:
			s.dropped++
			if s.dropped == 1 {
				e.logger.Warn("status subscriber is full, dropping events", "seq", ev.Seq)
			}
		}
	}
}

func (e *Engine) log(ctx context.Context, ev ir.StatusEvent) {
	level := slog.LevelDebug
	switch ev.Kind {
	case ir.StatusRunStarted, ir.StatusRunStopped:
		level = slog.LevelInfo
	case ir.StatusExecutorTimeout, ir.StatusExecutorFailed, ir.StatusGuardFailed,
		ir.StatusInteractionDiscarded, ir.StatusFireFailed:
		level = slog.LevelWarn
	}
	if !e.logger.Enabled(ctx, level) {
		return
	}

	attrs := []any{"round", ev.Round, "seq", ev.Seq}
	if ev.Phase != "" {
		attrs = append(attrs, "phase", string(ev.Phase))
	}
	if ev.Component != "" {
		attrs = append(attrs, "component", ev.Component)
	}
	if ev.Port != "" {
		attrs = append(attrs, "port", ev.Port)
	}
	if ev.Interaction != "" {
		attrs = append(attrs, "interaction", ev.Interaction)
	}
	if ev.Code != "" {
		attrs = append(attrs, "code", string(ev.Code))
	}
	if ev.Message != "" {
		attrs = append(attrs, "message", ev.Message)
	}
	e.logger.Log(ctx, level, string(ev.Kind), attrs...)
}
