package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// sequenceCounter manages the global monotonic sequence number shared
// across both event tables. Per-table auto-increment IDs can't establish
// cross-type ordering; this shared counter assigns a single increasing
// sequence to every event regardless of type, enabling:
//
//   - Cross-type ordering (did the LLM call happen inside which turn?)
//   - Append-only guarantees (events are never reordered)
//
// The mutex serializes within the process; the RETURNING clause makes the
// increment atomic at the database level.
type sequenceCounter struct {
	mu sync.Mutex
	db *sql.DB
}

// newSequenceCounter creates a counter and ensures the tracking table exists.
func newSequenceCounter(db *sql.DB, dialect Dialect) (*sequenceCounter, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS global_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_val INTEGER NOT NULL DEFAULT 1
	)`)
	if err != nil {
		return nil, fmt.Errorf("create sequence table: %w", err)
	}

	seed := `INSERT OR IGNORE INTO global_sequence (id, next_val) VALUES (1, 1)`
	if dialect == DialectPostgres {
		seed = `INSERT INTO global_sequence (id, next_val) VALUES (1, 1) ON CONFLICT (id) DO NOTHING`
	}
	if _, err := db.Exec(seed); err != nil {
		return nil, fmt.Errorf("seed sequence: %w", err)
	}

	return &sequenceCounter{db: db}, nil
}

// Next atomically returns the next sequence number and increments the counter.
func (sc *sequenceCounter) Next(ctx context.Context) (int64, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var seq int64
	err := sc.db.QueryRowContext(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}

// eventRepo implements EventRepo over the llm_events and turn_events
// tables, stamping each row from the global sequence counter.
type eventRepo struct {
	store *Store
}

func (r *eventRepo) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	seq, err := r.store.seq.Next(ctx)
	if err != nil {
		return err
	}

	_, err = r.store.db.ExecContext(ctx, r.store.rebind(
		`INSERT INTO llm_events (sequence, session_id, provider, model, purpose,
			input_tokens, output_tokens, latency_ms, success, error_message,
			request_body, response_body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		seq,
		data.SessionID,
		data.Provider,
		data.Model,
		data.Purpose,
		data.InputTokens,
		data.OutputTokens,
		data.LatencyMs,
		boolToInt(data.Success),
		data.ErrorMessage,
		data.RequestBody,
		data.ResponseBody,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

const llmEventColumns = `sequence, session_id, provider, model, purpose,
	input_tokens, output_tokens, latency_ms, success, error_message,
	request_body, response_body, created_at`

func (r *eventRepo) QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error) {
	query := `SELECT ` + llmEventColumns + ` FROM llm_events`
	where, args := buildWindow(opts)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY sequence DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := r.store.db.QueryContext(ctx, r.store.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query LLM events: %w", err)
	}
	defer rows.Close()

	var out []LLMEvent
	for rows.Next() {
		e, err := scanLLMEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *eventRepo) GetLLMEvent(ctx context.Context, id int64) (*LLMEvent, error) {
	row := r.store.db.QueryRowContext(ctx, r.store.rebind(
		`SELECT `+llmEventColumns+` FROM llm_events WHERE sequence = ?`), id)

	e, err := scanLLMEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func scanLLMEvent(scan func(...any) error) (*LLMEvent, error) {
	var (
		e         LLMEvent
		success   int
		createdAt int64
	)
	err := scan(
		&e.ID, &e.SessionID, &e.Provider, &e.Model, &e.Purpose,
		&e.InputTokens, &e.OutputTokens, &e.LatencyMs, &success, &e.ErrorMessage,
		&e.RequestBody, &e.ResponseBody, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	e.Success = success != 0
	e.Timestamp = time.Unix(createdAt, 0).UTC()
	return &e, nil
}

func (r *eventRepo) LLMUsageByPurpose(ctx context.Context) ([]LLMUsageStat, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT purpose, COUNT(*), SUM(input_tokens), SUM(output_tokens), AVG(latency_ms)
		 FROM llm_events GROUP BY purpose ORDER BY purpose`)
	if err != nil {
		return nil, fmt.Errorf("query usage by purpose: %w", err)
	}
	defer rows.Close()

	var out []LLMUsageStat
	for rows.Next() {
		var (
			st  LLMUsageStat
			avg float64
		)
		if err := rows.Scan(&st.Purpose, &st.Calls, &st.InputTokens, &st.OutputTokens, &avg); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		st.AvgLatencyMs = int64(avg)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *eventRepo) LLMUsageByModel(ctx context.Context) ([]LLMModelUsage, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT model, COUNT(*), SUM(input_tokens), SUM(output_tokens)
		 FROM llm_events GROUP BY model ORDER BY model`)
	if err != nil {
		return nil, fmt.Errorf("query usage by model: %w", err)
	}
	defer rows.Close()

	var out []LLMModelUsage
	for rows.Next() {
		var mu LLMModelUsage
		if err := rows.Scan(&mu.Model, &mu.Calls, &mu.InputTokens, &mu.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan model usage: %w", err)
		}
		out = append(out, mu)
	}
	return out, rows.Err()
}

func (r *eventRepo) AppendTurn(ctx context.Context, data TurnEventData) error {
	seq, err := r.store.seq.Next(ctx)
	if err != nil {
		return err
	}

	_, err = r.store.db.ExecContext(ctx, r.store.rebind(
		`INSERT INTO turn_events (sequence, session_id, turn_index, intent,
			phase_before, phase_after, fatal, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		seq,
		data.SessionID,
		data.TurnIndex,
		data.Intent,
		data.PhaseBefore,
		data.PhaseAfter,
		boolToInt(data.Fatal),
		data.Error,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save turn event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryTurnEvents(ctx context.Context, sessionID string, opts QueryOpts) ([]TurnEvent, error) {
	query := `SELECT sequence, session_id, turn_index, intent, phase_before,
		phase_after, fatal, error, created_at
		 FROM turn_events WHERE session_id = ?`
	args := []any{sessionID}

	where, windowArgs := buildWindow(opts)
	if where != "" {
		query += " AND " + where
		args = append(args, windowArgs...)
	}
	query += " ORDER BY sequence ASC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := r.store.db.QueryContext(ctx, r.store.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query turn events: %w", err)
	}
	defer rows.Close()

	var out []TurnEvent
	for rows.Next() {
		var (
			e         TurnEvent
			fatal     int
			createdAt int64
		)
		err := rows.Scan(
			&e.ID, &e.SessionID, &e.TurnIndex, &e.Intent, &e.PhaseBefore,
			&e.PhaseAfter, &fatal, &e.Error, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan turn event: %w", err)
		}
		e.Fatal = fatal != 0
		e.Timestamp = time.Unix(createdAt, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// buildWindow translates QueryOpts range filters into a WHERE fragment.
func buildWindow(opts QueryOpts) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if opts.After > 0 {
		conds = append(conds, "sequence > ?")
		args = append(args, opts.After)
	}
	if opts.Before > 0 {
		conds = append(conds, "sequence < ?")
		args = append(args, opts.Before)
	}
	if !opts.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, opts.From.Unix())
	}
	if !opts.To.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, opts.To.Unix())
	}
	return strings.Join(conds, " AND "), args
}
