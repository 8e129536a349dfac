package data

import (
	"context"
	"fmt"

	"citylayers/internal/biz"
	"citylayers/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"google.golang.org/genai"
)

// NewLanguageModel 按配置选择模型提供方。
func NewLanguageModel(c *conf.Data, logger log.Logger) (biz.LanguageModel, func(), error) {
	l := c.LLM
	switch l.Provider {
	case "google", "gemini":
		m, err := newGeminiModel(l)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	case "ollama":
		m, err := newOllamaModel(l)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {
			log.NewHelper(logger).Info("closing the ollama client")
			_ = m.conn.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider: %s", l.Provider)
	}
}

type geminiModel struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func newGeminiModel(c *conf.Data_LLM) (*geminiModel, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  c.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &geminiModel{
		client: client,
		model:  c.Model,
		config: &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(c.Temperature))},
	}, nil
}

// Generate 返回首个候选的内容块列表，由 biz 层统一归一为文本。
func (m *geminiModel) Generate(ctx context.Context, prompt string) (any, error) {
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), m.config)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, nil
	}
	blocks := make([]any, 0, len(resp.Candidates[0].Content.Parts))
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		blocks = append(blocks, map[string]any{"type": "text", "text": p.Text})
	}
	return blocks, nil
}

type ollamaModel struct {
	conn        *khttp.Client
	model       string
	temperature float64
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaReply struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func newOllamaModel(c *conf.Data_LLM) (*ollamaModel, error) {
	conn, err := newHTTPClient(c.BaseURL, c.Timeout.AsDuration())
	if err != nil {
		return nil, err
	}
	return &ollamaModel{conn: conn, model: c.Model, temperature: c.Temperature}, nil
}

func (m *ollamaModel) Generate(ctx context.Context, prompt string) (any, error) {
	req := &ollamaRequest{
		Model:   m.model,
		Prompt:  prompt,
		Options: map[string]any{"temperature": m.temperature},
	}
	var reply ollamaReply
	if err := m.conn.Invoke(ctx, "POST", "/api/generate", req, &reply); err != nil {
		return nil, err
	}
	return reply.Response, nil
}
