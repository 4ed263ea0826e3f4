package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/memvault/memvault/internal/model"
)

// SQLiteProvider implements MemoryProvider on a local SQLite database.
type SQLiteProvider struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLiteProvider opens or creates a SQLite database at the given path.
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteProvider{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteProvider) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory_items (
		id                TEXT PRIMARY KEY,
		owner_id          TEXT NOT NULL,
		scope             TEXT NOT NULL,
		content           TEXT NOT NULL,
		sensitivity_tier  TEXT NOT NULL,
		redaction_applied INTEGER NOT NULL DEFAULT 0,
		entropy_score     REAL,
		created_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_owner_scope ON memory_items(owner_id, scope);
	CREATE INDEX IF NOT EXISTS idx_items_created ON memory_items(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteProvider) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteProvider) Remember(ctx context.Context, item *model.MemoryItem) (string, error) {
	id := item.ID
	if id == "" {
		id = s.newID()
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var entropy *float64
	if item.EntropyScore != nil {
		entropy = item.EntropyScore
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_items (id, owner_id, scope, content, sensitivity_tier, redaction_applied, entropy_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, item.OwnerID, item.Scope, item.Content, item.SensitivityTier,
		boolToInt(item.RedactionApplied), entropy, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", translateSQLiteErr(fmt.Errorf("insert item: %w", err))
	}
	return id, nil
}

func (s *SQLiteProvider) Recall(ctx context.Context, p RecallParams) ([]model.MemoryItem, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"owner_id = ?"}
	args := []interface{}{p.OwnerID}
	if p.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, p.Scope)
	}
	if p.Query != "" {
		where = append(where, "content LIKE ?")
		args = append(args, "%"+p.Query+"%")
	}

	query := fmt.Sprintf(
		`SELECT id, owner_id, scope, content, sensitivity_tier, redaction_applied, entropy_score, created_at
		 FROM memory_items WHERE %s ORDER BY created_at DESC LIMIT ?`,
		strings.Join(where, " AND "))
	args = append(args, limit)

	return s.queryItems(ctx, query, args...)
}

func (s *SQLiteProvider) List(ctx context.Context, p ListParams) ([]model.MemoryItem, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"owner_id = ?"}
	args := []interface{}{p.OwnerID}
	if p.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, p.Scope)
	}
	if p.Tier != "" {
		where = append(where, "sensitivity_tier = ?")
		args = append(args, p.Tier)
	}

	query := fmt.Sprintf(
		`SELECT id, owner_id, scope, content, sensitivity_tier, redaction_applied, entropy_score, created_at
		 FROM memory_items WHERE %s ORDER BY created_at DESC LIMIT ?`,
		strings.Join(where, " AND "))
	args = append(args, limit)

	return s.queryItems(ctx, query, args...)
}

func (s *SQLiteProvider) queryItems(ctx context.Context, query string, args ...interface{}) ([]model.MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateSQLiteErr(err)
	}
	defer rows.Close()

	items := []model.MemoryItem{}
	for rows.Next() {
		var m model.MemoryItem
		var applied int
		var entropy sql.NullFloat64
		var createdAt string
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Scope, &m.Content, &m.SensitivityTier,
			&applied, &entropy, &createdAt); err != nil {
			return nil, translateSQLiteErr(err)
		}
		m.RedactionApplied = applied != 0
		if entropy.Valid {
			v := entropy.Float64
			m.EntropyScore = &v
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translateSQLiteErr(err)
	}
	return items, nil
}

func (s *SQLiteProvider) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_items WHERE id = ?`, id)
	if err != nil {
		return false, translateSQLiteErr(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteProvider) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return translateSQLiteErr(err)
	}
	return nil
}

func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}

// translateSQLiteErr maps backend faults into the provider taxonomy. Caller
// cancellation passes through untranslated.
func translateSQLiteErr(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("sqlite: %v: %w", err, ErrTimeout)
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("sqlite: %w", ErrNotFound)
	default:
		return fmt.Errorf("sqlite: %v: %w", err, ErrUnavailable)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
