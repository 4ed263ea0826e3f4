package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/memvault/memvault/internal/model"
)

// SQLiteLogger implements Logger on an append-only SQLite table. Records are
// never updated or deleted.
type SQLiteLogger struct {
	db      *sql.DB
	entropy *rand.Rand
	log     *logrus.Logger
	errors  atomic.Int64
}

// NewSQLiteLogger opens or creates the audit database at the given path.
func NewSQLiteLogger(dbPath string, log *logrus.Logger) (*SQLiteLogger, error) {
	if log == nil {
		log = logrus.New()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	l := &SQLiteLogger{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     log,
	}

	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	return l, nil
}

func (l *SQLiteLogger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS redaction_audit (
		id                 TEXT PRIMARY KEY,
		ts                 TEXT NOT NULL,
		owner_id           TEXT NOT NULL,
		context_id         TEXT,
		request_id         TEXT NOT NULL,
		redaction_applied  INTEGER NOT NULL,
		redaction_types    TEXT,
		sensitivity_tier   TEXT NOT NULL,
		patterns_matched   TEXT,
		entropy_score      REAL,
		original_length    INTEGER NOT NULL,
		redacted_length    INTEGER NOT NULL,
		processing_time_ms REAL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_request ON redaction_audit(request_id);
	CREATE INDEX IF NOT EXISTS idx_audit_owner ON redaction_audit(owner_id, ts DESC);
	`
	_, err := l.db.Exec(schema)
	return err
}

func (l *SQLiteLogger) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String()
}

// Record persists one audit event. Failures are logged and counted, never
// propagated: the enclosing write must still succeed.
func (l *SQLiteLogger) Record(ctx context.Context, a *model.RedactionAudit) {
	if a.ID == "" {
		a.ID = l.newID()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	types, _ := json.Marshal(a.RedactionTypes)
	patterns, _ := json.Marshal(a.PatternsMatched)

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO redaction_audit
		 (id, ts, owner_id, context_id, request_id, redaction_applied, redaction_types,
		  sensitivity_tier, patterns_matched, entropy_score, original_length, redacted_length, processing_time_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Timestamp.Format(time.RFC3339Nano), a.OwnerID, nullable(a.ContextID), a.RequestID,
		boolToInt(a.RedactionApplied), string(types), a.SensitivityTier, string(patterns),
		a.EntropyScore, a.OriginalLength, a.RedactedLength, a.ProcessingTimeMs)
	if err != nil {
		l.errors.Add(1)
		l.log.WithFields(logrus.Fields{
			"component":  "audit",
			"request_id": a.RequestID,
		}).WithError(err).Error("audit record not persisted")
	}
}

// Recent returns the newest audit records, for compliance review.
func (l *SQLiteLogger) Recent(ctx context.Context, limit int) ([]model.RedactionAudit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, ts, owner_id, context_id, request_id, redaction_applied, redaction_types,
		        sensitivity_tier, patterns_matched, entropy_score, original_length, redacted_length, processing_time_ms
		 FROM redaction_audit ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RedactionAudit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ByRequestID returns the audit records correlated with a request.
func (l *SQLiteLogger) ByRequestID(ctx context.Context, requestID string) ([]model.RedactionAudit, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, ts, owner_id, context_id, request_id, redaction_applied, redaction_types,
		        sensitivity_tier, patterns_matched, entropy_score, original_length, redacted_length, processing_time_ms
		 FROM redaction_audit WHERE request_id = ?`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RedactionAudit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAudit(rows *sql.Rows) (model.RedactionAudit, error) {
	var a model.RedactionAudit
	var ts string
	var contextID, typesJSON, patternsJSON sql.NullString
	var applied int
	var entropy sql.NullFloat64
	var processing sql.NullFloat64

	err := rows.Scan(&a.ID, &ts, &a.OwnerID, &contextID, &a.RequestID, &applied, &typesJSON,
		&a.SensitivityTier, &patternsJSON, &entropy, &a.OriginalLength, &a.RedactedLength, &processing)
	if err != nil {
		return a, err
	}

	a.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	a.RedactionApplied = applied != 0
	if contextID.Valid {
		a.ContextID = contextID.String
	}
	if typesJSON.Valid {
		json.Unmarshal([]byte(typesJSON.String), &a.RedactionTypes)
	}
	if patternsJSON.Valid {
		json.Unmarshal([]byte(patternsJSON.String), &a.PatternsMatched)
	}
	if entropy.Valid {
		a.EntropyScore = entropy.Float64
	}
	if processing.Valid {
		a.ProcessingTimeMs = processing.Float64
	}
	return a, nil
}

// ErrorCount reports how many records failed to persist.
func (l *SQLiteLogger) ErrorCount() int64 {
	return l.errors.Load()
}

// Close closes the underlying database.
func (l *SQLiteLogger) Close() error {
	return l.db.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
