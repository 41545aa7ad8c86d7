package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/preplay-ai/preplay/internal/domain"
)

// Per-persona temperatures for knowledge-base search. The red coach
// challenges harder, so its retrieval runs a little hotter.
const (
	redSearchTemperature  = 0.8
	blueSearchTemperature = 0.7
)

// RunTurn executes one full user turn against the addressed persona:
// the user text is persisted first, context is assembled for the
// persona, the question is optionally augmented from the attached
// knowledge documents, the exchange runs to completion, and the reply
// is persisted. The user turn survives even when the exchange fails,
// so a retry carries the full context.
func (s *Service) RunTurn(ctx context.Context, sessionID string, persona domain.Persona, text string) (*domain.TurnResult, error) {
	if !persona.Valid() {
		return nil, fmt.Errorf("%w: unknown persona %q", domain.ErrValidation, persona)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrValidation)
	}
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.config.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.TurnTimeout)
		defer cancel()
	}

	// History is assembled before the user turn is persisted so the
	// current question is not duplicated into it.
	messages, err := s.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	// Persist the original user text, tagged with the persona it was
	// addressed to.
	if _, err := s.store.AddMessage(ctx, sessionID, domain.RoleUser, text, string(persona), time.Now()); err != nil {
		return nil, fmt.Errorf("failed to persist user turn: %w", err)
	}

	history := assembleHistory(persona, messages)

	question := text
	var warning string
	if len(sess.KnowledgeFileIDs) > 0 {
		augmented, err := s.augmentQuestion(ctx, sess.KnowledgeFileIDs, text, persona)
		if err != nil {
			// Knowledge-base failures degrade the turn, never abort it.
			warning = "knowledge base unavailable, answered without document context"
			log.Printf("WARN: knowledge search for session %s failed: %v", sessionID, err)
		} else if augmented != "" {
			question = augmented
		}
	}

	client := s.red
	source := domain.SourceRed
	if persona == domain.PersonaBlue {
		client = s.blue
		source = domain.SourceBlue
	}

	answer, sid, err := client.Chat(ctx, question, history)
	if err != nil {
		return nil, fmt.Errorf("%s exchange failed: %w", persona, err)
	}

	if _, err := s.store.AddMessage(ctx, sessionID, domain.RoleAssistant, answer, source, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to persist reply: %w", err)
	}

	if sid != "" {
		if err := s.recordSID(ctx, sessionID, persona, sid); err != nil {
			log.Printf("WARN: failed to record %s sid for session %s: %v", persona, sessionID, err)
		}
	}

	stats, err := s.store.GetSessionStats(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}

	return &domain.TurnResult{
		SessionID: sessionID,
		Persona:   persona,
		Reply:     answer,
		Source:    source,
		Round:     stats.User,
		Warning:   warning,
	}, nil
}

// assembleHistory builds the persona's view of prior turns. The blue
// coach converses normally and sees the whole two-role transcript, both
// personas' replies collapsed into the assistant role. The red coach
// cross-examines the user's own statements, so it sees only prior user
// turns that were addressed to it or to nobody.
func assembleHistory(persona domain.Persona, messages []domain.Message) []domain.ChatMessage {
	if persona == domain.PersonaBlue {
		history := make([]domain.ChatMessage, 0, len(messages))
		for _, msg := range messages {
			history = append(history, domain.ChatMessage{Role: msg.Role, Content: msg.Content})
		}
		return history
	}

	var history []domain.ChatMessage
	for _, msg := range messages {
		if msg.Role != domain.RoleUser {
			continue
		}
		if msg.Source != "" && msg.Source != string(domain.PersonaRed) {
			continue
		}
		history = append(history, domain.ChatMessage{Role: domain.RoleUser, Content: msg.Content})
	}
	return history
}

// augmentQuestion runs a knowledge-base search and folds the result into
// the outgoing question. An empty search result leaves the question
// unchanged.
func (s *Service) augmentQuestion(ctx context.Context, fileIDs []string, question string, persona domain.Persona) (string, error) {
	temperature := blueSearchTemperature
	if persona == domain.PersonaRed {
		temperature = redSearchTemperature
	}
	kb, err := s.searcher.Search(ctx, fileIDs, question, temperature)
	if err != nil {
		return "", err
	}
	kb = strings.TrimSpace(kb)
	if kb == "" {
		return "", nil
	}
	return fmt.Sprintf("[知识库参考]\n%s\n\n[用户问题]\n%s", kb, question), nil
}

func (s *Service) recordSID(ctx context.Context, sessionID string, persona domain.Persona, sid string) error {
	var redSID, blueSID *string
	if persona == domain.PersonaRed {
		redSID = &sid
	} else {
		blueSID = &sid
	}
	_, err := s.store.UpdateSessionTokens(ctx, sessionID, redSID, blueSID)
	return err
}
