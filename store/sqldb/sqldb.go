/*
Package sqldb provides a SQL-backed implementation of the compliance stores.

PURPOSE:
  Implements compliance.Store and compliance.PlanStore on SQLite (default)
  or PostgreSQL. Queries are written once with '?' placeholders and rebound
  per dialect by sqlx.

INTERFACES IMPLEMENTED:
  compliance.Store:     Record create/update/delete/filter
  compliance.PlanStore: Plan definitions and assignment state

NO UNIQUENESS:
  compliance_records has only a plain index on (client_id, plan_id, day).
  The engine is built for a store that cannot promise uniqueness, and this
  implementation keeps that contract so reconciliation stays exercised.

ARRIVAL ORDER:
  Every row is stamped with stored_at by the store's own clock at insert.
  Filter orders by (stored_at, id); the Reconciler keeps the first row.

MIGRATIONS:
  Embedded migrations/*.sql are applied by golang-migrate on Open.

USAGE:
  store, err := sqldb.Open(sqldb.DriverSQLite, "./data/compliance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - compliance/store.go: Interface definitions
  - compliance/store/memory.go: In-memory implementation for testing
*/
package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/adherence-engine/compliance"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store implements the compliance storage interfaces on database/sql.
type Store struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

// Open connects, migrates and returns a Store. For SQLite, dsn is a file
// path or ":memory:".
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = dsn + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// Single writer; also keeps ":memory:" on one connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := NewWithDB(db)
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an existing connection without migrating it.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db, driver: db.DriverName(), now: time.Now}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies every pending embedded migration.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	var driver database.Driver
	switch s.driver {
	case DriverSQLite:
		driver, err = migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
	case DriverPostgres:
		driver, err = migratepg.WithInstance(s.db.DB, &migratepg.Config{})
	default:
		return fmt.Errorf("unsupported driver %q", s.driver)
	}
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.driver, driver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}

// =============================================================================
// COMPLIANCE RECORDS (compliance.Store interface)
// =============================================================================

type recordRow struct {
	ID        string         `db:"id"`
	ClientID  string         `db:"client_id"`
	PlanID    string         `db:"plan_id"`
	Day       string         `db:"day"`
	ItemsJSON string         `db:"items_json"`
	Notes     sql.NullString `db:"notes"`
	StoredAt  string         `db:"stored_at"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt string         `db:"updated_at"`
}

const recordColumns = `id, client_id, plan_id, day, items_json, notes, stored_at, created_at, updated_at`

// Create inserts a record. Duplicate keys are accepted.
func (s *Store) Create(ctx context.Context, rec compliance.Record) (compliance.Record, error) {
	if rec.ItemsCompleted == nil {
		rec.ItemsCompleted = compliance.NewItemSet()
	}
	row, err := toRecordRow(rec)
	if err != nil {
		return compliance.Record{}, err
	}
	row.StoredAt = formatTime(s.now())

	query := `INSERT INTO compliance_records (` + recordColumns + `)
		VALUES (:id, :client_id, :plan_id, :day, :items_json, :notes, :stored_at, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return compliance.Record{}, fmt.Errorf("failed to insert compliance record: %w", err)
	}
	return rec.Clone(), nil
}

// Update applies patch to one record.
func (s *Store) Update(ctx context.Context, id compliance.RecordID, patch compliance.RecordPatch) (compliance.Record, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return compliance.Record{}, err
	}
	if patch.ItemsCompleted != nil {
		rec.ItemsCompleted = patch.ItemsCompleted.Clone()
	}
	if patch.Notes != nil {
		rec.Notes = *patch.Notes
	}
	rec.UpdatedAt = s.now().UTC()

	items, err := json.Marshal(rec.ItemsCompleted)
	if err != nil {
		return compliance.Record{}, fmt.Errorf("failed to encode items: %w", err)
	}
	query := s.db.Rebind(`UPDATE compliance_records SET items_json = ?, notes = ?, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, string(items), nullString(rec.Notes), formatTime(rec.UpdatedAt), string(id))
	if err != nil {
		return compliance.Record{}, fmt.Errorf("failed to update compliance record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return compliance.Record{}, compliance.ErrRecordNotFound
	}
	return rec, nil
}

// Delete removes one record.
func (s *Store) Delete(ctx context.Context, id compliance.RecordID) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM compliance_records WHERE id = ?`), string(id))
	if err != nil {
		return fmt.Errorf("failed to delete compliance record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete compliance record: %w", err)
	}
	if n == 0 {
		return compliance.ErrRecordNotFound
	}
	return nil
}

// Filter returns matching records in arrival order.
func (s *Store) Filter(ctx context.Context, q compliance.Query) ([]compliance.Record, error) {
	var where []string
	var args []any
	if q.ClientID != nil {
		where = append(where, "client_id = ?")
		args = append(args, string(*q.ClientID))
	}
	if q.PlanID != nil {
		where = append(where, "plan_id = ?")
		args = append(args, string(*q.PlanID))
	}
	if q.Date != nil {
		where = append(where, "day = ?")
		args = append(args, q.Date.String())
	}

	query := `SELECT ` + recordColumns + ` FROM compliance_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY stored_at ASC, id ASC`

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query compliance records: %w", err)
	}

	records := make([]compliance.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) get(ctx context.Context, id compliance.RecordID) (compliance.Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+recordColumns+` FROM compliance_records WHERE id = ?`), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return compliance.Record{}, compliance.ErrRecordNotFound
	}
	if err != nil {
		return compliance.Record{}, fmt.Errorf("failed to get compliance record: %w", err)
	}
	return row.toRecord()
}

func toRecordRow(rec compliance.Record) (recordRow, error) {
	items, err := json.Marshal(rec.ItemsCompleted)
	if err != nil {
		return recordRow{}, fmt.Errorf("failed to encode items: %w", err)
	}
	return recordRow{
		ID:        string(rec.ID),
		ClientID:  string(rec.ClientID),
		PlanID:    string(rec.PlanID),
		Day:       rec.Date.String(),
		ItemsJSON: string(items),
		Notes:     nullString(rec.Notes),
		CreatedAt: formatTime(rec.CreatedAt),
		UpdatedAt: formatTime(rec.UpdatedAt),
	}, nil
}

func (r recordRow) toRecord() (compliance.Record, error) {
	day, err := compliance.ParseDate(r.Day)
	if err != nil {
		return compliance.Record{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	var items compliance.ItemSet
	if err := json.Unmarshal([]byte(r.ItemsJSON), &items); err != nil {
		return compliance.Record{}, fmt.Errorf("record %s: failed to decode items: %w", r.ID, err)
	}
	return compliance.Record{
		ID:             compliance.RecordID(r.ID),
		ClientID:       compliance.ClientID(r.ClientID),
		PlanID:         compliance.PlanID(r.PlanID),
		Date:           day,
		ItemsCompleted: items,
		Notes:          r.Notes.String,
		CreatedAt:      parseTime(r.CreatedAt),
		UpdatedAt:      parseTime(r.UpdatedAt),
	}, nil
}

// =============================================================================
// PLANS (compliance.PlanStore interface)
// =============================================================================

type planRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Kind      string         `db:"kind"`
	ClientID  sql.NullString `db:"client_id"`
	State     string         `db:"state"`
	ItemsJSON string         `db:"items_json"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt string         `db:"updated_at"`
}

const planColumns = `id, name, kind, client_id, state, items_json, created_at, updated_at`

// SavePlan inserts or replaces a plan.
func (s *Store) SavePlan(ctx context.Context, plan compliance.Plan) error {
	items, err := json.Marshal(plan.Items)
	if err != nil {
		return fmt.Errorf("failed to encode plan items: %w", err)
	}
	row := planRow{
		ID:        string(plan.ID),
		Name:      plan.Name,
		Kind:      string(plan.Kind),
		ClientID:  nullString(string(plan.ClientID)),
		State:     string(plan.State),
		ItemsJSON: string(items),
		CreatedAt: formatTime(plan.CreatedAt),
		UpdatedAt: formatTime(plan.UpdatedAt),
	}

	query := `
		INSERT INTO plans (` + planColumns + `)
		VALUES (:id, :name, :kind, :client_id, :state, :items_json, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			client_id = excluded.client_id,
			state = excluded.state,
			items_json = excluded.items_json,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by ID.
func (s *Store) GetPlan(ctx context.Context, id compliance.PlanID) (compliance.Plan, error) {
	var row planRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+planColumns+` FROM plans WHERE id = ?`), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return compliance.Plan{}, compliance.ErrPlanNotFound
	}
	if err != nil {
		return compliance.Plan{}, fmt.Errorf("failed to get plan: %w", err)
	}
	return row.toPlan()
}

// ListPlans returns all plans ordered by name.
func (s *Store) ListPlans(ctx context.Context) ([]compliance.Plan, error) {
	var rows []planRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+planColumns+` FROM plans ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	plans := make([]compliance.Plan, 0, len(rows))
	for _, row := range rows {
		p, err := row.toPlan()
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (r planRow) toPlan() (compliance.Plan, error) {
	var items []compliance.PlanItem
	if err := json.Unmarshal([]byte(r.ItemsJSON), &items); err != nil {
		return compliance.Plan{}, fmt.Errorf("plan %s: failed to decode items: %w", r.ID, err)
	}
	return compliance.Plan{
		ID:        compliance.PlanID(r.ID),
		Name:      r.Name,
		Kind:      compliance.PlanKind(r.Kind),
		ClientID:  compliance.ClientID(r.ClientID.String),
		State:     compliance.PlanState(r.State),
		Items:     items,
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset deletes all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM compliance_records`); err != nil {
		return fmt.Errorf("failed to reset compliance records: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plans`); err != nil {
		return fmt.Errorf("failed to reset plans: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timestampLayout, s)
	return t
}
