package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/coach/internal/session"
)

// sessionRepo implements SessionRepo over the sessions table. The version
// column is the single source of truth for optimistic concurrency; the
// document column holds everything else.
type sessionRepo struct {
	store *Store
}

func (r *sessionRepo) Create(ctx context.Context, doc *session.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = r.store.db.ExecContext(ctx, r.store.rebind(
		`INSERT INTO sessions (id, version, topic, phase, week, archived, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		doc.Session.ID,
		1,
		doc.Session.Topic,
		string(doc.Session.Phase),
		doc.Session.CurrentWeek,
		boolToInt(doc.Session.Archived),
		string(body),
		doc.Session.CreatedAt.Unix(),
		doc.Session.LastActiveAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	doc.Version = 1
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*session.Document, error) {
	var (
		version int64
		body    string
	)
	err := r.store.db.QueryRowContext(ctx, r.store.rebind(
		`SELECT version, document FROM sessions WHERE id = ?`), id,
	).Scan(&version, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	var doc session.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	doc.Version = version
	return &doc, nil
}

func (r *sessionRepo) List(ctx context.Context, includeArchived bool) ([]SessionSummary, error) {
	query := `SELECT id, topic, phase, week, version, archived, created_at, updated_at
		 FROM sessions`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s                  SessionSummary
			phase              string
			archived           int
			createdAt, updated int64
		)
		if err := rows.Scan(&s.ID, &s.Topic, &phase, &s.Week, &s.Version, &archived, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Phase = session.Phase(phase)
		s.Archived = archived != 0
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		s.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionRepo) CommitTurn(ctx context.Context, doc *session.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	newVersion := doc.Version + 1
	res, err := r.store.db.ExecContext(ctx, r.store.rebind(
		`UPDATE sessions
		 SET version = ?, topic = ?, phase = ?, week = ?, archived = ?, document = ?, updated_at = ?
		 WHERE id = ? AND version = ?`),
		newVersion,
		doc.Session.Topic,
		string(doc.Session.Phase),
		doc.Session.CurrentWeek,
		boolToInt(doc.Session.Archived),
		string(body),
		doc.Session.LastActiveAt.Unix(),
		doc.Session.ID,
		doc.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Either the row is gone or someone committed first.
		var exists int
		err := r.store.db.QueryRowContext(ctx, r.store.rebind(
			`SELECT 1 FROM sessions WHERE id = ?`), doc.Session.ID,
		).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		return ErrStaleTurn
	}

	doc.Version = newVersion
	return nil
}

func (r *sessionRepo) Archive(ctx context.Context, id string) error {
	doc, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Session.Archived {
		return nil
	}
	doc.Session.Archived = true
	return r.CommitTurn(ctx, doc)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
