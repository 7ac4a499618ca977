package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jxiee/campus-qa/internal/models"
)

const systemPrompt = `你是江西工业工程职业技术学院的智能问答助手，名字叫小尤学长。
请以亲切、友好的语气，根据提供的上下文信息和对话历史回答用户问题。
如果你不知道答案，请坦率表示，并建议用户联系学校相关部门。
回答要简洁明了，重点突出。`

// Generator produces an answer for a question given retrieved context and
// chat history. The pipeline never propagates generator failures to the
// client; the error return exists so callers can log and degrade.
type Generator interface {
	Generate(ctx context.Context, question string, docs []models.Document, history []models.ChatTurn) (string, error)
	Configured() bool
}

// OpenAIGenerator calls an OpenAI-compatible chat-completions endpoint.
type OpenAIGenerator struct {
	apiBase string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIGenerator(apiBase, apiKey, model string, timeout time.Duration) *OpenAIGenerator {
	return &OpenAIGenerator{
		apiBase: apiBase,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the endpoint, key and model are all set.
func (g *OpenAIGenerator) Configured() bool {
	return g.apiBase != "" && g.apiKey != "" && g.model != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, question string, docs []models.Document, history []models.ChatTurn) (string, error) {
	if !g.Configured() {
		return "", fmt.Errorf("model API not configured")
	}

	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	for _, turn := range history {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: buildPrompt(question, docs)})

	payload, err := json.Marshal(completionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("model API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model API returned status %d", resp.StatusCode)
	}

	var result completionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("malformed model API response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("model API returned no choices")
	}

	slog.Info("Model API call completed",
		"model", g.model,
		"duration_ms", time.Since(start).Milliseconds())
	return result.Choices[0].Message.Content, nil
}

// buildPrompt prefixes the question with the retrieved passages so the model
// answers from institutional material rather than from memory.
func buildPrompt(question string, docs []models.Document) string {
	if len(docs) == 0 {
		return question
	}
	var b bytes.Buffer
	b.WriteString(question)
	b.WriteString("\n\n参考信息：\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, doc.Content)
	}
	return b.String()
}
