// Package journal keeps an append-only record of every command the client
// submitted and how it ended.
package journal

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeRedirect  Outcome = "REDIRECT"
	OutcomeFailed    Outcome = "FAILED"
)

type Entry struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Op        string    `json:"op"`
	Method    string    `json:"method"`
	Target    string    `json:"target,omitempty"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS command_journal (
	id         UUID PRIMARY KEY,
	actor      TEXT NOT NULL,
	op         TEXT NOT NULL,
	method     TEXT NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	tx_hash    TEXT NOT NULL DEFAULT '',
	outcome    TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS command_journal_tx
	ON command_journal (tx_hash, outcome) WHERE tx_hash <> '';
CREATE INDEX IF NOT EXISTS command_journal_actor
	ON command_journal (actor, created_at DESC);`

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Migrate(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, schema)
	return err
}

// Record appends e. An entry for a transaction hash that already has the
// same outcome is not written twice; the stored one is returned with
// existed=true.
func (r *Repo) Record(ctx context.Context, e Entry) (out Entry, existed bool, err error) {
	if e.TxHash != "" {
		row := r.DB.QueryRow(ctx, `
			SELECT id, actor, op, method, target, tx_hash, outcome, kind, message, created_at
			FROM command_journal WHERE tx_hash=$1 AND outcome=$2`, e.TxHash, e.Outcome)
		if out, err = scan(row); err == nil {
			return out, true, nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, false, err
		}
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO command_journal(id, actor, op, method, target, tx_hash, outcome, kind, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT DO NOTHING`,
		e.ID, e.Actor, e.Op, e.Method, e.Target, e.TxHash, e.Outcome, e.Kind, e.Message, e.CreatedAt)
	if err != nil {
		return Entry{}, false, err
	}
	return e, ct.RowsAffected() == 0, nil
}

// List returns the newest entries first. An empty actor lists everyone.
func (r *Repo) List(ctx context.Context, actor string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, actor, op, method, target, tx_hash, outcome, kind, message, created_at
		FROM command_journal
		WHERE $1 = '' OR actor = $1
		ORDER BY created_at DESC
		LIMIT $2`, actor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scan(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Actor, &e.Op, &e.Method, &e.Target, &e.TxHash, &e.Outcome, &e.Kind, &e.Message, &e.CreatedAt)
	return e, err
}
