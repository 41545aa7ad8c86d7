package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/preplay-ai/preplay/internal/auth"
	"github.com/preplay-ai/preplay/internal/config"
	"github.com/preplay-ai/preplay/internal/domain"
)

// Knowledge-base search defaults. The remote service fills the
// <wikicontent>/<wikiquestion> placeholders server-side.
const (
	DefaultFilterScore = 0.83
	wikiPromptTpl      = "请将以下内容作为已知信息：\n<wikicontent>\n请根据以上内容回答用户的问题。\n问题:<wikiquestion>\n回答:"
)

const searchStatusDone = 2

// Searcher performs one streaming question-answering exchange against
// the attached documents. One connection per call, like the assistant
// clients, but content arrives as plain delta strings and no session
// token is issued.
type Searcher struct {
	wsURL  string
	signer *auth.DocSigner
	dialer *websocket.Dialer
}

// NewSearcher creates a knowledge-base search client.
func NewSearcher(cfg config.ChatDocConfig) *Searcher {
	return &Searcher{
		wsURL: cfg.WSURL,
		signer: &auth.DocSigner{
			AppID:     cfg.AppID,
			APISecret: cfg.APISecret,
		},
		dialer: websocket.DefaultDialer,
	}
}

type searchRequest struct {
	ChatExtends searchExtends        `json:"chatExtends"`
	FileIDs     []string             `json:"fileIds"`
	Messages    []domain.ChatMessage `json:"messages"`
}

type searchExtends struct {
	WikiPromptTpl   string  `json:"wikiPromptTpl"`
	WikiFilterScore float64 `json:"wikiFilterScore"`
	Temperature     float64 `json:"temperature"`
}

type searchFrame struct {
	Code    int    `json:"code"`
	Content string `json:"content"`
	Status  int    `json:"status"`
}

// Search asks a question against the given documents and blocks until
// the final frame, an error frame, or ctx is done. It returns the
// concatenated answer.
func (s *Searcher) Search(ctx context.Context, fileIDs []string, question string, temperature float64) (string, error) {
	if len(fileIDs) == 0 {
		return "", fmt.Errorf("%w: no documents to search", domain.ErrValidation)
	}
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("%w: empty question", domain.ErrValidation)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.signer.SignURL(s.wsURL), nil)
	if err != nil {
		return "", fmt.Errorf("%w: dial: %v", domain.ErrTransport, err)
	}
	defer conn.Close()

	req := searchRequest{
		ChatExtends: searchExtends{
			WikiPromptTpl:   wikiPromptTpl,
			WikiFilterScore: DefaultFilterScore,
			Temperature:     temperature,
		},
		FileIDs:  fileIDs,
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: question}},
	}
	if err := conn.WriteJSON(req); err != nil {
		return "", fmt.Errorf("%w: write request: %v", domain.ErrTransport, err)
	}

	type outcome struct {
		answer string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		var answer strings.Builder
		gotContent := false
		for {
			var frame searchFrame
			if err := conn.ReadJSON(&frame); err != nil {
				done <- outcome{answer: answer.String()}
				return
			}
			if frame.Code != 0 {
				kind := domain.ErrAuth
				if gotContent {
					kind = domain.ErrRemote
				}
				done <- outcome{err: fmt.Errorf("%w: code %d", kind, frame.Code)}
				return
			}
			if frame.Content != "" {
				answer.WriteString(frame.Content)
				gotContent = true
			}
			if frame.Status == searchStatusDone {
				done <- outcome{answer: answer.String()}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return "", fmt.Errorf("%w: %v", domain.ErrTransport, ctx.Err())
	case out := <-done:
		return out.answer, out.err
	}
}
