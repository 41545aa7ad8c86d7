// Package service orchestrates training turns: persona selection,
// context assembly, knowledge-base augmentation, dispatch, and
// transcript persistence.
package service

import (
	"context"

	"github.com/preplay-ai/preplay/internal/config"
	"github.com/preplay-ai/preplay/internal/domain"
	"github.com/preplay-ai/preplay/internal/knowledge"
	"github.com/preplay-ai/preplay/internal/store"
)

// ChatClient is one persona's streaming chat client.
type ChatClient interface {
	Chat(ctx context.Context, question string, history []domain.ChatMessage) (answer, sid string, err error)
}

// Searcher answers a question against attached knowledge documents.
type Searcher interface {
	Search(ctx context.Context, fileIDs []string, question string, temperature float64) (string, error)
}

// ReportGenerator synthesizes a transcript into a Markdown report.
type ReportGenerator interface {
	Generate(ctx context.Context, messages []domain.Message) (string, error)
}

// Service coordinates the store, the two persona clients, the knowledge
// base and the report generator. All dependencies are injected at
// construction; nothing here is a process-wide singleton.
type Service struct {
	store     store.Store
	red       ChatClient
	blue      ChatClient
	searcher  Searcher
	knowledge *knowledge.Service
	reporter  ReportGenerator
	config    *config.Config
}

// New creates the orchestration service.
func New(st store.Store, red, blue ChatClient, searcher Searcher, kn *knowledge.Service, reporter ReportGenerator, cfg *config.Config) *Service {
	return &Service{
		store:     st,
		red:       red,
		blue:      blue,
		searcher:  searcher,
		knowledge: kn,
		reporter:  reporter,
		config:    cfg,
	}
}

// Knowledge exposes the knowledge-document service for the transport
// layer.
func (s *Service) Knowledge() *knowledge.Service {
	return s.knowledge
}
