package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/checkin/internal/domain"
	"github.com/ashureev/checkin/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository and PendingStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ Repository   = (*SQLiteStore)(nil)
	_ PendingStore = (*SQLiteStore)(nil)
)

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers alongside the single writer.
	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		start_hour INTEGER NOT NULL DEFAULT 8,
		end_hour INTEGER NOT NULL DEFAULT 22,
		interval_hours INTEGER NOT NULL DEFAULT 3,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		order_num INTEGER UNIQUE NOT NULL CHECK (order_num > 0)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		duration INTEGER,
		status TEXT NOT NULL DEFAULT 'open'
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, start_time);
	CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(start_time) WHERE end_time IS NULL;

	CREATE TABLE IF NOT EXISTS responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(session_id),
		question_id INTEGER NOT NULL REFERENCES questions(id),
		answer TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		duration INTEGER NOT NULL,
		UNIQUE (session_id, question_id)
	);

	CREATE TABLE IF NOT EXISTS pending_questions (
		user_id TEXT PRIMARY KEY,
		session_id INTEGER NOT NULL REFERENCES sessions(session_id),
		question_id INTEGER NOT NULL,
		order_num INTEGER NOT NULL,
		sent_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_sent ON pending_questions(sent_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// exec runs a single write statement with busy retries.
func (s *SQLiteStore) exec(ctx context.Context, name, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := shared.RetryOnConflict(ctx, name, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return result, err
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// GetUserSettings retrieves the settings row of a user.
func (s *SQLiteStore) GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	query := `
		SELECT user_id, timezone, start_hour, end_hour, interval_hours, created_at, updated_at
		FROM users WHERE user_id = ?`

	settings, err := scanSettings(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user settings: %w", err)
	}
	return settings, nil
}

// UpsertUserSettings creates or updates a settings row.
func (s *SQLiteStore) UpsertUserSettings(ctx context.Context, settings *domain.UserSettings) error {
	query := `
	INSERT INTO users (user_id, timezone, start_hour, end_hour, interval_hours, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		timezone = excluded.timezone,
		start_hour = excluded.start_hour,
		end_hour = excluded.end_hour,
		interval_hours = excluded.interval_hours,
		updated_at = excluded.updated_at`

	now := time.Now().Unix()
	_, err := s.exec(ctx, "upsert user settings", query,
		settings.UserID, settings.Timezone, settings.StartHour, settings.EndHour,
		settings.IntervalHours, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert user settings: %w", err)
	}
	return nil
}

// ListUserSettings returns every configured user ordered by id.
func (s *SQLiteStore) ListUserSettings(ctx context.Context) ([]*domain.UserSettings, error) {
	query := `
		SELECT user_id, timezone, start_hour, end_hour, interval_hours, created_at, updated_at
		FROM users ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query user settings: %w", err)
	}
	defer closeRows(rows, "user settings")

	var out []*domain.UserSettings
	for rows.Next() {
		settings, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user settings row: %w", err)
		}
		out = append(out, settings)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user settings: %w", err)
	}
	return out, nil
}

// NextActiveQuestion returns the first active question after afterOrder.
func (s *SQLiteStore) NextActiveQuestion(ctx context.Context, afterOrder int) (*domain.Question, error) {
	query := `
		SELECT id, text, active, order_num FROM questions
		WHERE active = 1 AND order_num > ?
		ORDER BY order_num LIMIT 1`

	var q domain.Question
	err := s.db.QueryRowContext(ctx, query, afterOrder).Scan(&q.ID, &q.Text, &q.Active, &q.OrderNum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query next question: %w", err)
	}
	return &q, nil
}

// ListQuestions returns all questions, active or not.
func (s *SQLiteStore) ListQuestions(ctx context.Context) ([]*domain.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, active, order_num FROM questions ORDER BY order_num`)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer closeRows(rows, "questions")

	var out []*domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.Active, &q.OrderNum); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		out = append(out, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

// SeedQuestions inserts questions that are not present yet, keyed by order_num.
// Existing rows are left untouched.
func (s *SQLiteStore) SeedQuestions(ctx context.Context, questions []domain.Question) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO questions (text, active, order_num) VALUES (?, ?, ?) ON CONFLICT(order_num) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare seed: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var inserted int64
	for _, q := range questions {
		res, err := stmt.ExecContext(ctx, q.Text, q.Active, q.OrderNum)
		if err != nil {
			return 0, fmt.Errorf("seed question %d: %w", q.OrderNum, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("seed rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return inserted, nil
}

// CreateSession inserts an open session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, userID string, startTime time.Time) (int64, error) {
	res, err := s.exec(ctx, "create session",
		`INSERT INTO sessions (user_id, start_time, status) VALUES (?, ?, ?)`,
		userID, startTime.UnixMilli(), string(domain.SessionOpen),
	)
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	return id, nil
}

// CloseSession closes an open session. The update only touches rows whose
// end_time is still NULL, so a closed session is never overwritten.
func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID int64, endTime time.Time, durationSeconds int64, status domain.SessionStatus) error {
	res, err := s.exec(ctx, "close session",
		`UPDATE sessions SET end_time = ?, duration = ?, status = ? WHERE session_id = ? AND end_time IS NULL`,
		endTime.UnixMilli(), durationSeconds, string(status), sessionID,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}
	slog.Warn("CloseSession affected 0 rows", "session_id", sessionID)
	return ErrSessionClosed
}

const sessionColumns = `session_id, user_id, start_time, end_time, duration, status`

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID int64) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

// GetOpenSession returns the newest open session of a user.
func (s *SQLiteStore) GetOpenSession(ctx context.Context, userID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND end_time IS NULL
		ORDER BY session_id DESC LIMIT 1`, userID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan open session: %w", err)
	}
	return session, nil
}

// LastSessionStart returns the start time of the user's newest session.
func (s *SQLiteStore) LastSessionStart(ctx context.Context, userID string) (time.Time, bool, error) {
	var startMillis sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(start_time) FROM sessions WHERE user_id = ?`, userID).Scan(&startMillis)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last session start: %w", err)
	}
	if !startMillis.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(startMillis.Int64), true, nil
}

// ListSessions returns a user's sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY session_id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	return collectSessions(rows)
}

// ListOpenSessionsBefore returns open sessions that started before the cutoff.
func (s *SQLiteStore) ListOpenSessionsBefore(ctx context.Context, startedBefore time.Time) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		WHERE end_time IS NULL AND start_time < ? ORDER BY session_id`,
		startedBefore.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query open sessions: %w", err)
	}
	return collectSessions(rows)
}

// InsertResponse stores one answer row.
func (s *SQLiteStore) InsertResponse(ctx context.Context, r *domain.Response) (int64, error) {
	res, err := s.exec(ctx, "insert response",
		`INSERT INTO responses (session_id, question_id, answer, start_time, end_time, duration)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.QuestionID, r.Answer, r.StartTime.UnixMilli(), r.EndTime.UnixMilli(), r.DurationSeconds,
	)
	if shared.IsSQLiteUniqueError(err) {
		return 0, fmt.Errorf("session %d question %d: %w", r.SessionID, r.QuestionID, ErrDuplicateResponse)
	}
	if err != nil {
		return 0, fmt.Errorf("insert response: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("response id: %w", err)
	}
	return id, nil
}

// ListResponses returns a session's answers ordered by question order.
func (s *SQLiteStore) ListResponses(ctx context.Context, sessionID int64) ([]*domain.Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.session_id, r.question_id, r.answer, r.start_time, r.end_time, r.duration
		FROM responses r
		JOIN questions q ON q.id = r.question_id
		WHERE r.session_id = ?
		ORDER BY q.order_num`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer closeRows(rows, "responses")

	var out []*domain.Response
	for rows.Next() {
		var r domain.Response
		var start, end int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.QuestionID, &r.Answer, &start, &end, &r.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan response row: %w", err)
		}
		r.StartTime = fromMillis(start)
		r.EndTime = fromMillis(end)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return out, nil
}

// GetPending returns the pending question of a user.
func (s *SQLiteStore) GetPending(ctx context.Context, userID string) (*domain.PendingQuestion, error) {
	var p domain.PendingQuestion
	var sentAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, session_id, question_id, order_num, sent_at FROM pending_questions WHERE user_id = ?`,
		userID).Scan(&p.UserID, &p.SessionID, &p.QuestionID, &p.OrderNum, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pending question: %w", err)
	}
	p.SentAt = fromMillis(sentAt)
	return &p, nil
}

// SavePending creates or replaces the pending slot of a user.
func (s *SQLiteStore) SavePending(ctx context.Context, p *domain.PendingQuestion) error {
	_, err := s.exec(ctx, "save pending question", `
		INSERT INTO pending_questions (user_id, session_id, question_id, order_num, sent_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			session_id = excluded.session_id,
			question_id = excluded.question_id,
			order_num = excluded.order_num,
			sent_at = excluded.sent_at`,
		p.UserID, p.SessionID, p.QuestionID, p.OrderNum, p.SentAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save pending question: %w", err)
	}
	return nil
}

// DeletePending clears the pending slot of a user.
func (s *SQLiteStore) DeletePending(ctx context.Context, userID string) error {
	if _, err := s.exec(ctx, "delete pending question", `DELETE FROM pending_questions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete pending question: %w", err)
	}
	return nil
}

// ListPendingBefore returns pending questions sent before cutoff.
func (s *SQLiteStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.PendingQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, session_id, question_id, order_num, sent_at FROM pending_questions
		WHERE sent_at < ? ORDER BY sent_at`, cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query stale pending questions: %w", err)
	}
	defer closeRows(rows, "pending questions")

	var out []*domain.PendingQuestion
	for rows.Next() {
		var p domain.PendingQuestion
		var sentAt int64
		if err := rows.Scan(&p.UserID, &p.SessionID, &p.QuestionID, &p.OrderNum, &sentAt); err != nil {
			return nil, fmt.Errorf("scan pending question row: %w", err)
		}
		p.SentAt = fromMillis(sentAt)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending questions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettings(row rowScanner) (*domain.UserSettings, error) {
	var u domain.UserSettings
	var createdAt, updatedAt int64
	if err := row.Scan(&u.UserID, &u.Timezone, &u.StartHour, &u.EndHour, &u.IntervalHours, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var start int64
	var end, duration sql.NullInt64
	var status string
	if err := row.Scan(&session.ID, &session.UserID, &start, &end, &duration, &status); err != nil {
		return nil, err
	}
	session.StartTime = fromMillis(start)
	if end.Valid {
		t := fromMillis(end.Int64)
		session.EndTime = &t
	}
	session.DurationSeconds = duration.Int64
	session.Status = domain.SessionStatus(status)
	return &session, nil
}

func collectSessions(rows *sql.Rows) ([]*domain.Session, error) {
	defer closeRows(rows, "sessions")

	var out []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}
