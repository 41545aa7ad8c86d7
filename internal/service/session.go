package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/preplay-ai/preplay/internal/domain"
)

// NewSession creates a session with a fresh opaque id. On the unlikely
// id collision it retries once with another id.
func (s *Service) NewSession(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		sessionID := "session_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		ok, err := s.store.CreateSession(ctx, sessionID)
		if err != nil {
			return "", fmt.Errorf("failed to create session: %w", err)
		}
		if ok {
			return sessionID, nil
		}
	}
	return "", fmt.Errorf("failed to create session: id collisions")
}

// GetSession loads one session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return sess, nil
}

// ListSessions returns recent sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 10
	}
	sessions, err := s.store.ListSessions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and all its messages.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	ok, err := s.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return nil
}

// GetMessages returns a session's transcript, timestamp ascending.
func (s *Service) GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// GetStats returns the transcript summary counts.
func (s *Service) GetStats(ctx context.Context, sessionID string) (*domain.SessionStats, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	stats, err := s.store.GetSessionStats(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}
	return stats, nil
}

// ResumeSession loads everything needed to continue a past session: the
// session row, its full transcript and its attached document ids.
func (s *Service) ResumeSession(ctx context.Context, sessionID string) (*domain.Session, []domain.Message, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return sess, messages, nil
}

// AttachDocument adds one document id to the session's attached set.
// The set keeps insertion order and ignores duplicates.
func (s *Service) AttachDocument(ctx context.Context, sessionID, fileID string) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}
	ids, err := s.store.GetSessionDocuments(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session documents: %w", err)
	}
	for _, id := range ids {
		if id == fileID {
			return nil
		}
	}
	ids = append(ids, fileID)
	if _, err := s.store.UpdateSessionDocuments(ctx, sessionID, ids); err != nil {
		return fmt.Errorf("failed to update session documents: %w", err)
	}
	return nil
}

// SetDocuments replaces the session's attached-document list.
func (s *Service) SetDocuments(ctx context.Context, sessionID string, fileIDs []string) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}
	// Deduplicate while keeping insertion order.
	seen := make(map[string]bool, len(fileIDs))
	unique := make([]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if _, err := s.store.UpdateSessionDocuments(ctx, sessionID, unique); err != nil {
		return fmt.Errorf("failed to update session documents: %w", err)
	}
	return nil
}

// GetDocuments returns the session's attached document ids.
func (s *Service) GetDocuments(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.store.GetSessionDocuments(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GenerateReport synthesizes the session transcript into a Markdown
// report. A failure leaves the transcript intact and retryable.
func (s *Service) GenerateReport(ctx context.Context, sessionID string) (string, error) {
	messages, err := s.GetMessages(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: session has no messages to report on", domain.ErrValidation)
	}
	report, err := s.reporter.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}
	return report, nil
}
