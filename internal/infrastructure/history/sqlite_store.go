package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/ports"
)

const schema = `CREATE TABLE IF NOT EXISTS commands (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	user_input TEXT,
	command TEXT NOT NULL,
	directory TEXT,
	target TEXT,
	model TEXT,
	executed INTEGER,
	success INTEGER,
	exit_code INTEGER,
	severity TEXT,
	execution_time_ms INTEGER
);
CREATE INDEX IF NOT EXISTS idx_commands_timestamp ON commands(timestamp);`

// SQLiteStore persists history in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates (or opens) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Append inserts a new record.
func (s *SQLiteStore) Append(ctx context.Context, record domain.HistoryRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO commands
		(timestamp, user_input, command, directory, target, model, executed, success, exit_code, severity, execution_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTimestamp(record.Timestamp),
		record.UserInput,
		record.Command,
		record.Directory,
		record.Target,
		record.Model,
		boolToInt(record.Executed),
		boolToInt(record.Success),
		record.ExitCode,
		record.Severity.String(),
		record.ExecutionTimeMS,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// Records returns history entries newest first (limit/search optional).
func (s *SQLiteStore) Records(ctx context.Context, limit int, search string) ([]domain.HistoryRecord, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT timestamp, user_input, command, directory, target, model,
		executed, success, exit_code, severity, execution_time_ms FROM commands`)
	var args []interface{}
	if search != "" {
		builder.WriteString(` WHERE user_input LIKE ? ESCAPE '\' OR command LIKE ? ESCAPE '\'`)
		pattern := "%" + escapeLike(search) + "%"
		args = append(args, pattern, pattern)
	}
	builder.WriteString(" ORDER BY timestamp DESC, id DESC")
	if limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []domain.HistoryRecord
	for rows.Next() {
		var (
			rec               domain.HistoryRecord
			ts, severity      string
			input, directory  sql.NullString
			target, model     sql.NullString
			executed, success int
		)
		if err := rows.Scan(&ts, &input, &rec.Command, &directory, &target, &model,
			&executed, &success, &rec.ExitCode, &severity, &rec.ExecutionTimeMS); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.Timestamp = t
		}
		rec.UserInput = input.String
		rec.Directory = directory.String
		rec.Target = target.String
		rec.Model = model.String
		rec.Executed = executed == 1
		rec.Success = success == 1
		rec.Severity, _ = domain.ParseSeverity(severity)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear deletes all history entries.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM commands")
	return err
}

// Path returns the sqlite database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.HistoryRepository = (*SQLiteStore)(nil)
