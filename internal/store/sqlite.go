package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/preplay-ai/preplay/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; SQLite serializes writers anyway, and the
	// pragma below is per-connection.
	db.SetMaxOpenConns(1)

	// Enable foreign keys so session deletion cascades to messages.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			red_sid TEXT,
			blue_sid TEXT,
			knowledge_file_ids TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			source TEXT,
			content TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp)`,
		`CREATE TABLE IF NOT EXISTS knowledge_files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id TEXT NOT NULL UNIQUE,
			file_name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			file_size INTEGER,
			content TEXT,
			uploaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session row. It returns false, without an
// error, when the id is already taken.
func (s *SQLiteStore) CreateSession(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id) VALUES (?)`, sessionID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetSession retrieves a session by id, nil when it does not exist.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, red_sid, blue_sid, knowledge_file_ids, created_at, updated_at
		 FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

// ListSessions returns up to limit sessions, most recently created first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, red_sid, blue_sid, knowledge_file_ids, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// UpdateSessionTokens partially updates the red/blue remote conversation
// tokens. A call with both tokens nil is a no-op returning false.
func (s *SQLiteStore) UpdateSessionTokens(ctx context.Context, sessionID string, redSID, blueSID *string) (bool, error) {
	var updates []string
	var params []interface{}

	if redSID != nil {
		updates = append(updates, "red_sid = ?")
		params = append(params, *redSID)
	}
	if blueSID != nil {
		updates = append(updates, "blue_sid = ?")
		params = append(params, *blueSID)
	}
	if len(updates) == 0 {
		return false, nil
	}

	updates = append(updates, "updated_at = CURRENT_TIMESTAMP")
	params = append(params, sessionID)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE sessions SET %s WHERE id = ?", strings.Join(updates, ", ")),
		params...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateSessionDocuments replaces the full attached-document list.
func (s *SQLiteStore) UpdateSessionDocuments(ctx context.Context, sessionID string, fileIDs []string) (bool, error) {
	if fileIDs == nil {
		fileIDs = []string{}
	}
	encoded, err := json.Marshal(fileIDs)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET knowledge_file_ids = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(encoded), sessionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetSessionDocuments returns the attached document ids in insertion
// order. Corrupt stored data is treated as an empty list.
func (s *SQLiteStore) GetSessionDocuments(ctx context.Context, sessionID string) ([]string, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT knowledge_file_ids FROM sessions WHERE id = ?`, sessionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !raw.Valid || raw.String == "" {
		return []string{}, nil
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw.String), &ids); err != nil {
		return []string{}, nil
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// DeleteSession removes the session; its messages go with it via the
// foreign-key cascade.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AddMessage appends a message. A zero ts defaults to the local wall
// clock, truncated to second resolution. Appending to a nonexistent
// session fails the foreign-key constraint.
func (s *SQLiteStore) AddMessage(ctx context.Context, sessionID, role, content, source string, ts time.Time) (int64, error) {
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, source, timestamp) VALUES (?, ?, ?, ?, ?)`,
		sessionID, role, content, source, ts.Format(domain.TimeLayout))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return 0, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// GetMessages returns a session's messages, timestamp ascending with
// insertion order breaking ties.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, source, content, timestamp
		 FROM messages WHERE session_id = ?
		 ORDER BY timestamp ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var source sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &source, &msg.Content, &msg.Timestamp); err != nil {
			return nil, err
		}
		if source.Valid {
			msg.Source = source.String
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetSessionStats counts messages by role and splits assistant replies
// into red/blue buckets by substring match on the source label. A label
// with neither marker counts toward assistant only.
func (s *SQLiteStore) GetSessionStats(ctx context.Context, sessionID string) (*domain.SessionStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, source, COUNT(*) FROM messages WHERE session_id = ? GROUP BY role, source`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.SessionStats{}
	for rows.Next() {
		var role string
		var source sql.NullString
		var count int
		if err := rows.Scan(&role, &source, &count); err != nil {
			return nil, err
		}

		stats.Total += count
		switch role {
		case domain.RoleUser:
			stats.User += count
		case domain.RoleAssistant:
			stats.Assistant += count
			if strings.Contains(source.String, "红") {
				stats.Red += count
			} else if strings.Contains(source.String, "蓝") {
				stats.Blue += count
			}
		}
	}
	return stats, rows.Err()
}

// AddKnowledgeFile records a document registered with the remote
// knowledge base.
func (s *SQLiteStore) AddKnowledgeFile(ctx context.Context, f *domain.KnowledgeFile) (int64, error) {
	var size interface{}
	if f.FileSize > 0 {
		size = f.FileSize
	}
	var content interface{}
	if f.Content != "" {
		content = f.Content
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_files (file_id, file_name, file_type, file_size, content) VALUES (?, ?, ?, ?, ?)`,
		f.FileID, f.FileName, f.FileType, size, content)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListKnowledgeFiles lists registry rows, most recently uploaded first.
func (s *SQLiteStore) ListKnowledgeFiles(ctx context.Context) ([]domain.KnowledgeFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, file_name, file_type, file_size, content, uploaded_at
		 FROM knowledge_files ORDER BY uploaded_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []domain.KnowledgeFile
	for rows.Next() {
		f, err := scanKnowledgeFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// GetKnowledgeFile looks up a registry row by remote file id, nil when
// absent.
func (s *SQLiteStore) GetKnowledgeFile(ctx context.Context, fileID string) (*domain.KnowledgeFile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_id, file_name, file_type, file_size, content, uploaded_at
		 FROM knowledge_files WHERE file_id = ?`, fileID)
	f, err := scanKnowledgeFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

// DeleteKnowledgeFile removes a registry row.
func (s *SQLiteStore) DeleteKnowledgeFile(ctx context.Context, fileID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_files WHERE file_id = ?`, fileID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteAllKnowledgeFiles clears the registry and returns the number of
// rows removed.
func (s *SQLiteStore) DeleteAllKnowledgeFiles(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_files`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var redSID, blueSID, fileIDs sql.NullString
	err := row.Scan(&sess.ID, &redSID, &blueSID, &fileIDs, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if redSID.Valid {
		sess.RedSID = redSID.String
	}
	if blueSID.Valid {
		sess.BlueSID = blueSID.String
	}
	if fileIDs.Valid && fileIDs.String != "" {
		// Corrupt stored data degrades to an empty list.
		_ = json.Unmarshal([]byte(fileIDs.String), &sess.KnowledgeFileIDs)
	}
	return &sess, nil
}

func scanKnowledgeFile(row rowScanner) (*domain.KnowledgeFile, error) {
	var f domain.KnowledgeFile
	var size sql.NullInt64
	var content sql.NullString
	err := row.Scan(&f.ID, &f.FileID, &f.FileName, &f.FileType, &size, &content, &f.UploadedAt)
	if err != nil {
		return nil, err
	}
	if size.Valid {
		f.FileSize = size.Int64
	}
	if content.Valid {
		f.Content = content.String
	}
	return &f, nil
}
