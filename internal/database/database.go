package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/vexmx/avotex/internal/models"
)

//go:embed schema.sql schema_postgres.sql
var schemaFS embed.FS

var (
	// ErrNotApplicable is returned when asked to store a "not an avocado" scan.
	ErrNotApplicable = errors.New("label is not storable")
	// ErrNotFound is returned when a task does not exist for the user.
	ErrNotFound = errors.New("not found")
)

// DB interface defines the methods our database should implement
type DB interface {
	SaveScan(ctx context.Context, scan *models.ScanRecord) error
	ListScans(ctx context.Context, userID string) ([]models.ScanRecord, error)
	ScanLabels(ctx context.Context, userID string) ([]models.ScanRecord, error)

	AddTask(ctx context.Context, task *models.Task) error
	ListTasks(ctx context.Context, userID string) ([]models.Task, error)
	ToggleTask(ctx context.Context, userID string, id int64) (bool, error)
	DeleteTask(ctx context.Context, userID string, id int64) error

	Close() error
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLDB implements the DB interface on database/sql
type SQLDB struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
	now     func() time.Time
}

// Open connects using the named driver: "sqlite" (target is a file path) or
// "postgres" (target is a DSN).
func Open(driver, target string, logger *slog.Logger) (*SQLDB, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLiteDB(target, logger)
	case "postgres":
		return NewPostgresDB(target, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(dbPath string, logger *slog.Logger) (*SQLDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Enable foreign keys and WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	return newSQLDB(db, dialectSQLite, "schema.sql", logger)
}

// NewPostgresDB creates a new Postgres database connection
func NewPostgresDB(dsn string, logger *slog.Logger) (*SQLDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return newSQLDB(db, dialectPostgres, "schema_postgres.sql", logger)
}

func newSQLDB(db *sql.DB, d dialect, schemaFile string, logger *slog.Logger) (*SQLDB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLDB{db: db, dialect: d, logger: logger.With("component", "database"), now: time.Now}

	// Initialize database schema
	if err := s.initializeSchema(schemaFile); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLDB) initializeSchema(schemaFile string) error {
	// Read schema file
	schemaBytes, err := schemaFS.ReadFile(schemaFile)
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}

	// Execute schema
	if _, err := s.db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}

	s.logger.Debug("database schema initialized", "schema", schemaFile)
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLDB) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveScan inserts a scan record and fills in its ID and CreatedAt
func (s *SQLDB) SaveScan(ctx context.Context, scan *models.ScanRecord) error {
	if scan.Label == "" || scan.Label == models.LabelNotAvocado {
		return fmt.Errorf("save scan %q: %w", scan.Label, ErrNotApplicable)
	}
	if scan.UserID == "" {
		return fmt.Errorf("save scan: user id is required")
	}

	query := `
		INSERT INTO scans (user_id, user_email, label, score, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`

	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = s.now().UTC()
	}

	err := s.db.QueryRowContext(ctx, s.rebind(query),
		scan.UserID, scan.UserEmail, scan.Label, scan.Score, scan.CreatedAt,
	).Scan(&scan.ID)
	if err != nil {
		return fmt.Errorf("error inserting scan: %w", err)
	}
	return nil
}

// ListScans returns every scan of the user, newest first
func (s *SQLDB) ListScans(ctx context.Context, userID string) ([]models.ScanRecord, error) {
	query := `
		SELECT id, user_id, user_email, label, score, created_at
		FROM scans
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.ScanRecord
	for rows.Next() {
		var rec models.ScanRecord
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.UserEmail, &rec.Label, &rec.Score, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// ScanLabels returns the (label, score) projection the recommendation
// engine reads.
func (s *SQLDB) ScanLabels(ctx context.Context, userID string) ([]models.ScanRecord, error) {
	query := `SELECT label, score FROM scans WHERE user_id = ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.ScanRecord
	for rows.Next() {
		rec := models.ScanRecord{UserID: userID}
		if err := rows.Scan(&rec.Label, &rec.Score); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// AddTask inserts a task and fills in its ID and CreatedAt
func (s *SQLDB) AddTask(ctx context.Context, task *models.Task) error {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return fmt.Errorf("add task: title is required")
	}
	if task.UserID == "" {
		return fmt.Errorf("add task: user id is required")
	}

	query := `
		INSERT INTO tasks (user_id, title, detail, completed, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`

	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now().UTC()
	}

	err := s.db.QueryRowContext(ctx, s.rebind(query),
		task.UserID, task.Title, task.Detail, task.Completed, task.CreatedAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("error inserting task: %w", err)
	}
	return nil
}

// ListTasks returns the user's tasks, newest first
func (s *SQLDB) ListTasks(ctx context.Context, userID string) ([]models.Task, error) {
	query := `
		SELECT id, user_id, title, detail, completed, created_at
		FROM tasks
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.Task
	for rows.Next() {
		var task models.Task
		if err := rows.Scan(
			&task.ID, &task.UserID, &task.Title, &task.Detail, &task.Completed, &task.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, task)
	}
	return results, rows.Err()
}

// ToggleTask flips the completed flag and returns the new value
func (s *SQLDB) ToggleTask(ctx context.Context, userID string, id int64) (bool, error) {
	query := `
		UPDATE tasks
		SET completed = NOT completed
		WHERE id = ? AND user_id = ?
		RETURNING completed
	`

	var completed bool
	err := s.db.QueryRowContext(ctx, s.rebind(query), id, userID).Scan(&completed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("error toggling task: %w", err)
	}
	return completed, nil
}

// DeleteTask removes one of the user's tasks
func (s *SQLDB) DeleteTask(ctx context.Context, userID string, id int64) error {
	query := `DELETE FROM tasks WHERE id = ? AND user_id = ?`

	res, err := s.db.ExecContext(ctx, s.rebind(query), id, userID)
	if err != nil {
		return fmt.Errorf("error deleting task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// Close closes the database connection
func (s *SQLDB) Close() error {
	return s.db.Close()
}
