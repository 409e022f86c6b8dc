package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"taptimise/internal/model"
	"taptimise/internal/opt"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          uuid PRIMARY KEY,
    status      text NOT NULL,
    fingerprint text,
    request     jsonb NOT NULL,
    origin      jsonb,
    result      jsonb,
    error       text,
    created_at  timestamptz NOT NULL,
    updated_at  timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_idx ON runs (created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS runs_fingerprint_idx ON runs (fingerprint) WHERE status = 'done';
`

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// EnsureSchema creates the runs table and its indexes when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) SaveRun(ctx context.Context, run model.Run) (model.Run, error) {
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	req, err := jsonArg(run.Request)
	if err != nil {
		return run, err
	}
	origin, err := jsonArg(run.Origin)
	if err != nil {
		return run, err
	}
	result, err := jsonArg(run.Result)
	if err != nil {
		return run, err
	}
	err = p.db.QueryRowContext(ctx, `
INSERT INTO runs (id, status, fingerprint, request, origin, result, error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, fingerprint=EXCLUDED.fingerprint,
    request=EXCLUDED.request, origin=EXCLUDED.origin, result=EXCLUDED.result,
    error=EXCLUDED.error, updated_at=EXCLUDED.updated_at
RETURNING created_at`,
		run.ID, run.Status, nullIfEmpty(run.Fingerprint), req, origin, result, nullIfEmpty(run.Error), run.CreatedAt, run.UpdatedAt,
	).Scan(&run.CreatedAt)
	if err != nil {
		return run, fmt.Errorf("store: save run %s: %w", run.ID, err)
	}
	return run, nil
}

const runColumns = `id::text, status, fingerprint, request, origin, result, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.Run, error) {
	var (
		r                   model.Run
		fp, errText         sql.NullString
		req, origin, result []byte
	)
	if err := row.Scan(&r.ID, &r.Status, &fp, &req, &origin, &result, &errText, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return r, err
	}
	r.Fingerprint = fp.String
	r.Error = errText.String
	if err := json.Unmarshal(req, &r.Request); err != nil {
		return r, fmt.Errorf("store: decode request of %s: %w", r.ID, err)
	}
	if len(origin) > 0 {
		r.Origin = &model.Origin{}
		if err := json.Unmarshal(origin, r.Origin); err != nil {
			return r, fmt.Errorf("store: decode origin of %s: %w", r.ID, err)
		}
	}
	if len(result) > 0 {
		r.Result = &opt.Result{}
		if err := json.Unmarshal(result, r.Result); err != nil {
			return r, fmt.Errorf("store: decode result of %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (model.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Run{}, ErrNotFound
	}
	r, err := scanRun(p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, cursor string, limit int) ([]model.RunSummary, string, error) {
	limit = clampLimit(limit)
	var (
		rows *sql.Rows
		err  error
	)
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs
WHERE (created_at, id) < (SELECT created_at, id FROM runs WHERE id::text=$1)
ORDER BY created_at DESC, id DESC LIMIT $2`, cursor, limit+1)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT $1`, limit+1)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.RunSummary{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

func (p *Postgres) FindByFingerprint(ctx context.Context, fp string) (model.Run, error) {
	if fp == "" {
		return model.Run{}, ErrNotFound
	}
	r, err := scanRun(p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs
WHERE fingerprint=$1 AND status=$2 ORDER BY created_at DESC LIMIT 1`, fp, model.StatusDone))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	return r, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonArg encodes v for a jsonb column; nil pointers become SQL NULL.
func jsonArg(v any) (any, error) {
	switch t := v.(type) {
	case *model.Origin:
		if t == nil {
			return nil, nil
		}
	case *opt.Result:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: encode json: %w", err)
	}
	return string(b), nil
}
