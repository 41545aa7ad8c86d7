// Package spark implements the streaming chat client for the assistant
// websocket endpoints. One connection is opened per exchange; chunked
// response frames are accumulated into a single answer.
package spark

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/preplay-ai/preplay/internal/auth"
	"github.com/preplay-ai/preplay/internal/config"
	"github.com/preplay-ai/preplay/internal/domain"
)

// defaultUID is the caller identity sent in each request header.
const defaultUID = "user123"

// statusDone marks the final frame of a streamed answer.
const statusDone = 2

// Client performs one question/answer exchange per call against a
// persona's streaming endpoint.
type Client struct {
	cfg    config.SparkConfig
	signer *auth.SparkSigner
	dialer *websocket.Dialer
	uid    string
}

// NewClient creates a streaming chat client for one persona.
func NewClient(cfg config.SparkConfig) *Client {
	return &Client{
		cfg: cfg,
		signer: &auth.SparkSigner{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
		},
		dialer: websocket.DefaultDialer,
		uid:    defaultUID,
	}
}

type requestFrame struct {
	Header    requestHeader    `json:"header"`
	Parameter requestParameter `json:"parameter"`
	Payload   requestPayload   `json:"payload"`
}

type requestHeader struct {
	AppID string `json:"app_id"`
	UID   string `json:"uid"`
}

type requestParameter struct {
	Chat chatParameter `json:"chat"`
}

type chatParameter struct {
	Domain      string  `json:"domain"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopK        int     `json:"top_k"`
}

type requestPayload struct {
	Message requestMessage `json:"message"`
}

type requestMessage struct {
	Text []domain.ChatMessage `json:"text"`
}

type responseFrame struct {
	Header struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		SID     string `json:"sid"`
	} `json:"header"`
	Payload struct {
		Choices struct {
			Status int `json:"status"`
			Text   []struct {
				Content string `json:"content"`
			} `json:"text"`
		} `json:"choices"`
	} `json:"payload"`
}

// exchange is the final outcome the frame-reading goroutine hands back.
type exchange struct {
	answer string
	sid    string
	err    error
}

// Chat sends one question plus prior history and blocks until the server
// signals completion, an error frame arrives, or ctx is done. It returns
// the accumulated answer and the last server-issued session id seen in
// any frame. If the connection closes without a final-status frame, the
// text accumulated so far is returned as a best-effort result.
func (c *Client) Chat(ctx context.Context, question string, history []domain.ChatMessage) (string, string, error) {
	if strings.TrimSpace(question) == "" {
		return "", "", fmt.Errorf("%w: empty question", domain.ErrValidation)
	}

	wsURL, err := c.signer.SignURL(c.cfg.WSURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: dial: %v", domain.ErrTransport, err)
	}
	defer conn.Close()

	messages := make([]domain.ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: question})

	req := requestFrame{
		Header: requestHeader{AppID: c.cfg.AppID, UID: c.uid},
		Parameter: requestParameter{Chat: chatParameter{
			Domain:      c.cfg.Domain,
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
			TopK:        c.cfg.TopK,
		}},
		Payload: requestPayload{Message: requestMessage{Text: messages}},
	}
	if err := conn.WriteJSON(req); err != nil {
		return "", "", fmt.Errorf("%w: write request: %v", domain.ErrTransport, err)
	}

	done := make(chan exchange, 1)
	go readFrames(conn, done)

	select {
	case <-ctx.Done():
		// Closing the socket unblocks the reader.
		conn.Close()
		return "", "", fmt.Errorf("%w: %v", domain.ErrTransport, ctx.Err())
	case ex := <-done:
		if ex.err != nil {
			return "", ex.sid, ex.err
		}
		return ex.answer, ex.sid, nil
	}
}

// readFrames accumulates streamed content until the final status, an
// error frame, or connection loss, then sends exactly one outcome.
func readFrames(conn *websocket.Conn, done chan<- exchange) {
	var answer strings.Builder
	var sid string
	gotContent := false

	for {
		var frame responseFrame
		if err := conn.ReadJSON(&frame); err != nil {
			// No final-status frame: return what arrived so far.
			done <- exchange{answer: answer.String(), sid: sid}
			return
		}

		if frame.Header.SID != "" {
			sid = frame.Header.SID
		}

		if frame.Header.Code != 0 {
			// A nonzero code before any content is a rejected
			// signature; later it is a mid-stream failure. Either
			// way the partial answer is discarded.
			kind := domain.ErrAuth
			if gotContent {
				kind = domain.ErrRemote
			}
			done <- exchange{sid: sid, err: fmt.Errorf("%w: code %d: %s",
				kind, frame.Header.Code, frame.Header.Message)}
			return
		}

		for _, t := range frame.Payload.Choices.Text {
			answer.WriteString(t.Content)
			gotContent = true
		}

		if frame.Payload.Choices.Status == statusDone {
			done <- exchange{answer: answer.String(), sid: sid}
			return
		}
	}
}
