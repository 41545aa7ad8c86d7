// Package store defines the transcript storage interface and its SQLite
// implementation.
package store

import (
	"context"
	"time"

	"github.com/preplay-ai/preplay/internal/domain"
)

// Store is the durable record of sessions, their messages, and the local
// knowledge-file registry.
type Store interface {
	// Session operations. CreateSession returns false when the id is
	// already taken; callers retry with a fresh id.
	CreateSession(ctx context.Context, sessionID string) (bool, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context, limit int) ([]domain.Session, error)
	UpdateSessionTokens(ctx context.Context, sessionID string, redSID, blueSID *string) (bool, error)
	UpdateSessionDocuments(ctx context.Context, sessionID string, fileIDs []string) (bool, error)
	GetSessionDocuments(ctx context.Context, sessionID string) ([]string, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)

	// Message operations. Messages are immutable once written.
	AddMessage(ctx context.Context, sessionID, role, content, source string, ts time.Time) (int64, error)
	GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	GetSessionStats(ctx context.Context, sessionID string) (*domain.SessionStats, error)

	// Knowledge-file registry operations.
	AddKnowledgeFile(ctx context.Context, f *domain.KnowledgeFile) (int64, error)
	ListKnowledgeFiles(ctx context.Context) ([]domain.KnowledgeFile, error)
	GetKnowledgeFile(ctx context.Context, fileID string) (*domain.KnowledgeFile, error)
	DeleteKnowledgeFile(ctx context.Context, fileID string) (bool, error)
	DeleteAllKnowledgeFiles(ctx context.Context) (int64, error)

	// Lifecycle
	Close() error
}
