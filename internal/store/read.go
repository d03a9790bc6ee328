package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/bip/internal/ir"
)

// ErrRunNotFound is returned by ReadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// ReadRun returns the record of one run.
func (s *Store) ReadRun(ctx context.Context, runID string) (ir.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, glue_fingerprint, components, engine_version, ir_version, rounds
		FROM runs
		WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RunRecord{}, fmt.Errorf("read run %q: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("read run %q: %w", runID, err)
	}
	return run, nil
}

// Runs returns every run in insertion order.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) Runs(ctx context.Context) ([]ir.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, glue_fingerprint, components, engine_version, ir_version, rounds
		FROM runs
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns the status events of a run ordered by seq.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]ir.StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, round, phase, kind, component, port, interaction, code, message
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.StatusEvent{}
	for rows.Next() {
		var (
			ev                ir.StatusEvent
			phase, kind, code       string
		)
		if err := rows.Scan(&ev.RunID, &ev.Seq, &ev.Round, &phase, &kind,
			&ev.Component, &ev.Port, &ev.Interaction, &code, &ev.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Phase = ir.Phase(phase)
		ev.Kind = ir.StatusKind(kind)
		ev.Code = ir.ErrorCode(code)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadFirings returns the interactions fired in a run ordered by round,
// then by port list.
//
// Returns an empty slice (not nil) if nothing fired.
func (s *Store) ReadFirings(ctx context.Context, runID string) ([]ir.FiringRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, round, ports, priority
		FROM firings
		WHERE run_id = ?
		ORDER BY round ASC, ports COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	firings := []ir.FiringRecord{}
	for rows.Next() {
		var (
			f         ir.FiringRecord
			portsJSON string
		)
		if err := rows.Scan(&f.ID, &f.RunID, &f.Round, &portsJSON, &f.Priority); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		ports, err := unmarshalPorts(portsJSON)
		if err != nil {
			return nil, err
		}
		f.Ports = ports
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return firings, nil
}

// LastSeq returns the highest event seq journaled for a run, or 0.
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events WHERE run_id = ?`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (ir.RunRecord, error) {
	var run ir.RunRecord
	err := row.Scan(&run.ID, &run.GlueFingerprint, &run.Components,
		&run.EngineVersion, &run.IRVersion, &run.Rounds)
	return run, err
}
