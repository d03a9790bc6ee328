package store

import (
	"context"
	"fmt"

	"github.com/roach88/bip/internal/ir"
)

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run ir.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, glue_fingerprint, components, engine_version, ir_version, rounds)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.GlueFingerprint,
		run.Components,
		run.EngineVersion,
		run.IRVersion,
		run.Rounds,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun records the number of rounds a run completed.
func (s *Store) FinishRun(ctx context.Context, runID string, rounds int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET rounds = ? WHERE id = ?`, rounds, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: unknown run %q", runID)
	}
	return nil
}

// WriteEvent appends a status event.
// Uses ON CONFLICT DO NOTHING so re-journaling the same (run_id, seq) is a no-op.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, ev ir.StatusEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, round, phase, kind, component, port, interaction, code, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.RunID,
		ev.Seq,
		ev.Round,
		string(ev.Phase),
		string(ev.Kind),
		ev.Component,
		ev.Port,
		ev.Interaction,
		string(ev.Code),
		ev.Message,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteFiring records a fired interaction.
// Uses ON CONFLICT(id) DO NOTHING: the id is content-addressed over
// (run, round, ports), so a duplicate write is the same firing.
func (s *Store) WriteFiring(ctx context.Context, f ir.FiringRecord) error {
	portsJSON, err := marshalPorts(f.Ports)
	if err != nil {
		return fmt.Errorf("write firing: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO firings (id, run_id, round, ports, priority)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		f.ID,
		f.RunID,
		f.Round,
		portsJSON,
		f.Priority,
	)
	if err != nil {
		return fmt.Errorf("write firing: %w", err)
	}
	return nil
}
