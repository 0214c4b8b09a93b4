package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-engine/internal/model"
)

// sqliteTime is fixed-width so stored timestamps compare lexically.
const sqliteTime = "2006-01-02T15:04:05.000000Z"

// SQLiteStore implements Store using modernc.org/sqlite for local and
// offline use.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer keeps WAL happy and makes pragmas apply to every query.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

var sqliteMigration = `
CREATE TABLE IF NOT EXISTS conferences (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	cost REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT,
	phone         TEXT,
	notes         TEXT,
	revenue       REAL,
	conference_id TEXT REFERENCES conferences(id),
	owner_id      TEXT,
	status        TEXT NOT NULL DEFAULT 'New' CHECK (status IN (` + statusCheckList() + `)),
	reminder_date TEXT,
	captured_at   TEXT,
	created_at    TEXT NOT NULL,
	meta_data     TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS interactions (
	id            TEXT PRIMARY KEY,
	lead_id       TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	type          TEXT NOT NULL CHECK (type IN ('Note', 'Sync')),
	summary       TEXT NOT NULL,
	recording_url TEXT,
	meta_data     TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_lead_id ON interactions(lead_id);
`

// Migrate implements Store.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// AddConference stores a conference record. The hosted backends manage
// conferences elsewhere; this exists for local setups and tests.
func (s *SQLiteStore) AddConference(ctx context.Context, c model.Conference) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO conferences (id, name, cost) VALUES (?, ?, ?)`, c.ID, c.Name, c.Cost)
	return eris.Wrap(err, "sqlite: add conference")
}

func classifySQLiteError(err error, op string) (int, error) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return StatusConflict, nil
	case strings.Contains(msg, "constraint failed"):
		return StatusBadRequest, nil
	default:
		return 0, eris.Wrapf(err, "sqlite: %s", op)
	}
}

const leadColumns = `id, name, email, phone, notes, revenue, conference_id, owner_id, status, reminder_date, captured_at, created_at, meta_data`

// InsertLead implements Store.
func (s *SQLiteStore) InsertLead(ctx context.Context, lead model.Lead) (int, *model.Lead, error) {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Meta == nil {
		lead.Meta = model.Meta{}
	}
	meta, err := json.Marshal(lead.Meta)
	if err != nil {
		return 0, nil, eris.Wrap(err, "sqlite: marshal meta_data")
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING `+leadColumns,
		lead.ID, lead.Name, nullString(lead.Email), nullString(lead.Phone), nullString(lead.Notes),
		lead.Revenue, nullString(lead.ConferenceID), nullString(lead.OwnerID), string(lead.Status),
		sqliteTimeArg(lead.ReminderDate), sqliteTimeArg(lead.CapturedAt), s.now().UTC().Format(sqliteTime), string(meta),
	)
	out, err := scanLead(row)
	if err != nil {
		code, err := classifySQLiteError(err, "insert lead")
		return code, nil, err
	}
	return StatusCreated, out, nil
}

// PatchLead implements Store.
func (s *SQLiteStore) PatchLead(ctx context.Context, id string, patch LeadPatch) (int, error) {
	if patch.IsEmpty() {
		return StatusBadRequest, nil
	}

	var sets []string
	var args []any
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.OwnerID != nil {
		sets = append(sets, "owner_id = ?")
		args = append(args, nullString(*patch.OwnerID))
	}
	if patch.ReminderDate != nil {
		sets = append(sets, "reminder_date = ?")
		args = append(args, sqliteTimeArg(*patch.ReminderDate))
	}
	if patch.Meta != nil {
		meta, err := json.Marshal(patch.Meta)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal meta_data")
		}
		sets = append(sets, "meta_data = ?")
		args = append(args, string(meta))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE leads SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return classifySQLiteError(err, "patch lead")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return StatusNotFound, nil
	}
	return StatusOK, nil
}

func sqliteWhere(lq LeadQuery) (string, []any) {
	var conds []string
	var args []any
	if lq.ID != "" {
		conds = append(conds, "id = ?")
		args = append(args, lq.ID)
	}
	if len(lq.Statuses) > 0 {
		marks := make([]string, len(lq.Statuses))
		for i, st := range lq.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if lq.ConferenceID != "" {
		conds = append(conds, "conference_id = ?")
		args = append(args, lq.ConferenceID)
	}
	if !lq.ReminderBefore.IsZero() {
		conds = append(conds, "reminder_date IS NOT NULL AND reminder_date < ?")
		args = append(args, lq.ReminderBefore.UTC().Format(sqliteTime))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// GetLeads implements Store.
func (s *SQLiteStore) GetLeads(ctx context.Context, lq LeadQuery) (int, []model.Lead, error) {
	where, args := sqliteWhere(lq)
	q := "SELECT " + leadColumns + " FROM leads" + where
	if lq.NewestFirst {
		q += " ORDER BY created_at DESC, rowid DESC"
	}
	if lq.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", lq.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return 0, nil, eris.Wrap(err, "sqlite: get leads")
	}
	defer rows.Close() //nolint:errcheck

	leads := []model.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return 0, nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, eris.Wrap(err, "sqlite: iterate leads")
	}
	return StatusOK, leads, nil
}

// CountLeads implements Store.
func (s *SQLiteStore) CountLeads(ctx context.Context, lq LeadQuery) (int, int, error) {
	where, args := sqliteWhere(lq)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM leads"+where, args...).Scan(&n); err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: count leads")
	}
	return StatusOK, n, nil
}

// InsertInteraction implements Store.
func (s *SQLiteStore) InsertInteraction(ctx context.Context, in model.Interaction) (int, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	var meta *string
	if in.Meta != nil {
		b, err := json.Marshal(in.Meta)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal interaction meta_data")
		}
		m := string(b)
		meta = &m
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, lead_id, type, summary, recording_url, meta_data, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.LeadID, string(in.Type), in.Summary, nullString(in.RecordingURL), meta, s.now().UTC().Format(sqliteTime),
	)
	if err != nil {
		return classifySQLiteError(err, "insert interaction")
	}
	return StatusCreated, nil
}

// ListInteractions returns a lead's interactions, oldest first.
func (s *SQLiteStore) ListInteractions(ctx context.Context, leadID string) ([]model.Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, type, summary, recording_url, meta_data, created_at FROM interactions WHERE lead_id = ? ORDER BY created_at, rowid`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list interactions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Interaction
	for rows.Next() {
		var in model.Interaction
		var typ, created string
		var rec, meta sql.NullString
		if err := rows.Scan(&in.ID, &in.LeadID, &typ, &in.Summary, &rec, &meta, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan interaction")
		}
		in.Type = model.InteractionType(typ)
		in.RecordingURL = rec.String
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &in.Meta); err != nil {
				return nil, eris.Wrap(err, "sqlite: decode interaction meta_data")
			}
		}
		in.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, in)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate interactions")
}

// GetConference implements Store.
func (s *SQLiteStore) GetConference(ctx context.Context, id string) (int, *model.Conference, error) {
	var c model.Conference
	err := s.db.QueryRowContext(ctx, `SELECT id, name, cost FROM conferences WHERE id = ?`, id).Scan(&c.ID, &c.Name, &c.Cost)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusNotFound, nil, nil
	}
	if err != nil {
		return 0, nil, eris.Wrap(err, "sqlite: get conference")
	}
	return StatusOK, &c, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var (
		l                                model.Lead
		email, phone, notes, conf, owner sql.NullString
		reminder, captured               sql.NullString
		status, created, meta            string
		revenue                          sql.NullFloat64
	)
	if err := row.Scan(&l.ID, &l.Name, &email, &phone, &notes, &revenue, &conf, &owner,
		&status, &reminder, &captured, &created, &meta); err != nil {
		return nil, err
	}

	l.Email, l.Phone, l.Notes = email.String, phone.String, notes.String
	l.ConferenceID, l.OwnerID = conf.String, owner.String
	l.Status = model.Status(status)
	if revenue.Valid {
		v := revenue.Float64
		l.Revenue = &v
	}
	l.ReminderDate = parseSQLiteTime(reminder.String)
	l.CapturedAt = parseSQLiteTime(captured.String)
	l.CreatedAt = parseSQLiteTime(created)
	if err := json.Unmarshal([]byte(meta), &l.Meta); err != nil {
		return nil, eris.Wrap(err, "decode meta_data")
	}
	return &l, nil
}

func sqliteTimeArg(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(sqliteTime)
	return &s
}

func parseSQLiteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
