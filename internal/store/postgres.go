package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/db"
	"github.com/sells-group/lead-engine/internal/model"
)

// PostgresStore implements Store on a direct Postgres connection.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool sizing.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres connects to connString and verifies the connection.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

func statusCheckList() string {
	quoted := make([]string, len(model.Statuses))
	for i, s := range model.Statuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return strings.Join(quoted, ", ")
}

var postgresMigration = `
CREATE TABLE IF NOT EXISTS conferences (
	id   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name TEXT NOT NULL,
	cost NUMERIC NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name          TEXT NOT NULL,
	email         TEXT,
	phone         TEXT,
	notes         TEXT,
	revenue       DOUBLE PRECISION,
	conference_id TEXT REFERENCES conferences(id),
	owner_id      TEXT,
	status        TEXT NOT NULL DEFAULT 'New' CHECK (status IN (` + statusCheckList() + `)),
	reminder_date TIMESTAMPTZ,
	captured_at   TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	meta_data     JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE TABLE IF NOT EXISTS interactions (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id       TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	type          TEXT NOT NULL CHECK (type IN ('Note', 'Sync')),
	summary       TEXT NOT NULL,
	recording_url TEXT,
	meta_data     JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_leads_conference_id ON leads(conference_id);
CREATE INDEX IF NOT EXISTS idx_interactions_lead_id ON interactions(lead_id);
`

// Migrate implements Store.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// classifyPgError maps a write error onto a status code. Integrity violations are
// completed calls; anything else is a failure.
func classifyPgError(err error, op string) (int, error) {
	switch {
	case db.IsUniqueViolation(err):
		return StatusConflict, nil
	case db.IsIntegrityViolation(err):
		zap.L().Debug("postgres: integrity violation", zap.String("op", op), zap.Error(err))
		return StatusBadRequest, nil
	default:
		return 0, eris.Wrapf(err, "postgres: %s", op)
	}
}

// InsertLead implements Store.
func (s *PostgresStore) InsertLead(ctx context.Context, lead model.Lead) (int, *model.Lead, error) {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Meta == nil {
		lead.Meta = model.Meta{}
	}
	meta, err := json.Marshal(lead.Meta)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: marshal meta_data")
	}

	var raw []byte
	err = s.pool.QueryRow(ctx,
		`INSERT INTO leads (id, name, email, phone, notes, revenue, conference_id, owner_id, status, reminder_date, captured_at, meta_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING to_jsonb(leads.*)`,
		lead.ID, lead.Name, nullString(lead.Email), nullString(lead.Phone), nullString(lead.Notes),
		lead.Revenue, nullString(lead.ConferenceID), nullString(lead.OwnerID), string(lead.Status),
		nullTime(lead.ReminderDate), nullTime(lead.CapturedAt), meta,
	).Scan(&raw)
	if err != nil {
		code, err := classifyPgError(err, "insert lead")
		return code, nil, err
	}

	var out model.Lead
	if err := json.Unmarshal(raw, &out); err != nil {
		return StatusCreated, nil, eris.Wrap(err, "postgres: decode inserted lead")
	}
	return StatusCreated, &out, nil
}

// PatchLead implements Store.
func (s *PostgresStore) PatchLead(ctx context.Context, id string, patch LeadPatch) (int, error) {
	if patch.IsEmpty() {
		return StatusBadRequest, nil
	}

	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.OwnerID != nil {
		add("owner_id", nullString(*patch.OwnerID))
	}
	if patch.ReminderDate != nil {
		add("reminder_date", nullTime(*patch.ReminderDate))
	}
	if patch.Meta != nil {
		meta, err := json.Marshal(patch.Meta)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal meta_data")
		}
		add("meta_data", meta)
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return classifyPgError(err, "patch lead")
	}
	if tag.RowsAffected() == 0 {
		return StatusNotFound, nil
	}
	return StatusOK, nil
}

// leadWhere renders lq as a WHERE clause with positional args.
func leadWhere(lq LeadQuery) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if lq.ID != "" {
		add("id = $%d", lq.ID)
	}
	if len(lq.Statuses) > 0 {
		statuses := make([]string, len(lq.Statuses))
		for i, st := range lq.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	if lq.ConferenceID != "" {
		add("conference_id = $%d", lq.ConferenceID)
	}
	if !lq.ReminderBefore.IsZero() {
		add("reminder_date < $%d", lq.ReminderBefore.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// GetLeads implements Store.
func (s *PostgresStore) GetLeads(ctx context.Context, lq LeadQuery) (int, []model.Lead, error) {
	where, args := leadWhere(lq)
	sql := "SELECT to_jsonb(l.*) FROM leads l" + where
	if lq.NewestFirst {
		sql += " ORDER BY created_at DESC"
	}
	if lq.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", lq.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: get leads")
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return 0, nil, eris.Wrap(err, "postgres: scan lead")
		}
		var l model.Lead
		if err := json.Unmarshal(raw, &l); err != nil {
			return 0, nil, eris.Wrap(err, "postgres: decode lead")
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, eris.Wrap(err, "postgres: iterate leads")
	}
	return StatusOK, leads, nil
}

// CountLeads implements Store.
func (s *PostgresStore) CountLeads(ctx context.Context, lq LeadQuery) (int, int, error) {
	where, args := leadWhere(lq)
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM leads"+where, args...).Scan(&n); err != nil {
		return 0, 0, eris.Wrap(err, "postgres: count leads")
	}
	return StatusOK, n, nil
}

// InsertInteraction implements Store.
func (s *PostgresStore) InsertInteraction(ctx context.Context, in model.Interaction) (int, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	var meta []byte
	if in.Meta != nil {
		b, err := json.Marshal(in.Meta)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal interaction meta_data")
		}
		meta = b
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO interactions (id, lead_id, type, summary, recording_url, meta_data) VALUES ($1, $2, $3, $4, $5, $6)`,
		in.ID, in.LeadID, string(in.Type), in.Summary, nullString(in.RecordingURL), meta,
	)
	if err != nil {
		return classifyPgError(err, "insert interaction")
	}
	return StatusCreated, nil
}

// GetConference implements Store.
func (s *PostgresStore) GetConference(ctx context.Context, id string) (int, *model.Conference, error) {
	var c model.Conference
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, cost::float8 FROM conferences WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return StatusNotFound, nil, nil
	}
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: get conference")
	}
	return StatusOK, &c, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
