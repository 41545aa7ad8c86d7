// Package report synthesizes a training session's transcript into a
// structured Markdown report via a remote chat-completions endpoint.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/preplay-ai/preplay/internal/config"
	"github.com/preplay-ai/preplay/internal/domain"
)

// systemPrompt fixes the five-section report template. The model fills
// in the sections from the serialized transcript.
const systemPrompt = `你是 PrePlay 专业的训练报告生成助手。你的职责是分析用户与红方魔鬼导师、蓝方心理教练的完整对话，生成一份结构清晰、有指导意义的训练报告。请严格按照以下结构生成 Markdown 格式的报告：

# PrePlay 训练报告

生成时间：[当前时间]

## 📈 训练摘要

[统计数据的 Markdown 列表]

## ⚠️ 发现的问题

[分析对话中发现的主要问题，按类别分组]

## 💡 改进建议

[针对问题给出具体的改进建议]

## 🌟 鼓励与肯定

[正面的鼓励语言，2-3 句话]`

// Generator calls a remote OpenAI-compatible chat-completions endpoint.
// No report-writing logic lives here; the synthesis is entirely the
// remote model's.
type Generator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGenerator creates a report generator.
func NewGenerator(cfg config.ReportConfig) *Generator {
	return &Generator{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate produces the Markdown report for a transcript. A failure here
// aborts only the report; the transcript is untouched and the call can
// simply be retried.
func (g *Generator) Generate(ctx context.Context, messages []domain.Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: domain.RoleUser, Content: buildPrompt(messages)},
		},
		Temperature: 0.6,
		MaxTokens:   4000,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrRemote, resp.StatusCode, string(respBody))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: status %d", domain.ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		if result.Error != nil {
			msg = result.Error.Message
		}
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrRemote, resp.StatusCode, msg)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: response carried no choices", domain.ErrRemote)
	}

	return result.Choices[0].Message.Content, nil
}

// buildPrompt serializes the transcript as "[timestamp] role(source):
// content" lines followed by summary counts.
func buildPrompt(messages []domain.Message) string {
	var userCount, assistantCount int
	var lines []string

	for _, msg := range messages {
		role := "AI回复"
		switch msg.Role {
		case domain.RoleUser:
			role = "你"
			userCount++
		case domain.RoleAssistant:
			assistantCount++
		}
		if msg.Source != "" {
			role = fmt.Sprintf("%s(%s)", role, msg.Source)
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			msg.Timestamp.Format(domain.TimeLayout), role, msg.Content))
	}

	stats := fmt.Sprintf("- 总消息数：%d\n- 用户提问：%d 次\n- 智能体回复：%d 次",
		len(messages), userCount, assistantCount)

	return fmt.Sprintf("以下是对话内容：\n\n%s\n\n%s\n\n请严格按照要求的结构生成报告。",
		strings.Join(lines, "\n\n"), stats)
}
