// Package broker resolves the data an interaction needs before it fires.
//
// For each participant offer with data-in, the broker finds a provider among
// the other participants of the same interaction: first through the glue's
// data wires, then through any participant exposing a data-out of the same
// name. Providers are tried in port-id order and the first one whose access
// policy admits the reader supplies the value.
package broker

import (
	"context"
	"log/slog"

	"github.com/roach88/bip/internal/glue"
	"github.com/roach88/bip/internal/ir"
)

// Source reads a component's data-out on behalf of a reader. Executors
// implement it.
type Source interface {
	GetData(ctx context.Context, name string, reader ir.PortRef, via string) (any, error)
}

// Lookup returns the Source of a component instance.
type Lookup func(component string) (Source, bool)

// Broker resolves data-in for interactions under one glue set.
type Broker struct {
	glue   *glue.Set
	lookup Lookup
	logger *slog.Logger
}

// New creates a broker.
func New(set *glue.Set, lookup Lookup, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{glue: set, lookup: lookup, logger: logger}
}

// Resolution is the data delivered to each participant, keyed by component
// instance id and then by data-in name.
type Resolution map[string]map[string]any

// For returns the data delivered to component, or nil.
func (r Resolution) For(component string) map[string]any {
	return r[component]
}

type candidate struct {
	from ir.ComponentPort
	name string
}

// Resolve gathers every data-in of the interaction. reports holds the
// COLLECT reports of the participants. Any failure discards the whole
// interaction and is returned as an *ir.Error: MissingProvider when no
// co-participant can supply a datum, DataAccessViolation when every
// candidate refuses the reader.
func (b *Broker) Resolve(ctx context.Context, in ir.Interaction, reports map[string]ir.Report) (Resolution, error) {
	out := make(Resolution)
	for _, p := range in.Participants {
		offer, ok := reports[p.Component].Offer(p.Port)
		if !ok || len(offer.DataIn) == 0 {
			continue
		}
		values := make(map[string]any, len(offer.DataIn))
		for _, name := range offer.DataIn {
			v, err := b.resolveOne(ctx, in, reports, p, name)
			if err != nil {
				return nil, err
			}
			values[name] = v
		}
		out[p.Component] = values
	}
	return out, nil
}

func (b *Broker) resolveOne(ctx context.Context, in ir.Interaction, reports map[string]ir.Report, reader ir.ComponentPort, name string) (any, error) {
	cands := b.candidates(in, reports, reader, name)
	if len(cands) == 0 {
		return nil, ir.Errorf(ir.ErrCodeMissingProvider, "no provider for data-in %q", name).At(reader.Component, reader.Port)
	}

	var firstErr error
	for _, c := range cands {
		src, ok := b.lookup(c.from.Component)
		if !ok {
			continue
		}
		v, err := src.GetData(ctx, c.name, reader.Ref(), c.from.Port)
		if err == nil {
			b.logger.Debug("data resolved",
				"reader", reader.ID(),
				"provider", c.from.ID(),
				"data", c.name,
				"as", name,
			)
			return v, nil
		}
		// Timeouts and lifecycle failures are not policy decisions; stop.
		if !ir.IsAccessViolation(err) && !ir.IsMissingProvider(err) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = ir.Errorf(ir.ErrCodeMissingProvider, "no provider for data-in %q", name).At(reader.Component, reader.Port)
	}
	return nil, firstErr
}

// candidates lists possible providers in resolution order: wired providers
// first, then same-name providers, each group in participant order.
func (b *Broker) candidates(in ir.Interaction, reports map[string]ir.Report, reader ir.ComponentPort, name string) []candidate {
	var out []candidate
	for _, w := range b.glue.WiresTo(ir.DataRef{Spec: reader.Spec, Name: name}) {
		for _, q := range in.Participants {
			if q.Component == reader.Component || q.Spec != w.From.Spec {
				continue
			}
			out = append(out, candidate{from: q, name: w.From.Name})
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, q := range in.Participants {
		if q.Component == reader.Component {
			continue
		}
		if reports[q.Component].ProvidesData(name) {
			out = append(out, candidate{from: q, name: name})
		}
	}
	return out
}
