package aireview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

func init() {
	Register(openAIStrategy{})
	Register(claudeStrategy{})
	Register(geminiStrategy{})
	Register(ollamaStrategy{})
}

func jsonBody(payload interface{}) (*bytes.Reader, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode provider request: %w", err)
	}
	return bytes.NewReader(data), nil
}

// openAIStrategy: chat-completions endpoint, Bearer auth, text under
// choices[0].message.content
type openAIStrategy struct{}

func (openAIStrategy) Name() string { return "openai" }

func (openAIStrategy) BuildRequest(ctx context.Context, cfg Config, prompt string) (*http.Request, error) {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	body, err := jsonBody(map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/chat/completions", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (openAIStrategy) ExtractText(body []byte) (string, error) {
	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode openai envelope: %w", err)
	}
	if envelope.Error != nil {
		return "", fmt.Errorf("openai error: %s", envelope.Error.Message)
	}
	if len(envelope.Choices) == 0 {
		return "", fmt.Errorf("openai response contained no choices")
	}
	return envelope.Choices[0].Message.Content, nil
}

// claudeStrategy: messages endpoint, x-api-key auth plus version header,
// text under content[0].text
type claudeStrategy struct{}

func (claudeStrategy) Name() string { return "claude" }

func (claudeStrategy) BuildRequest(ctx context.Context, cfg Config, prompt string) (*http.Request, error) {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.anthropic.com"
	}
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}

	body, err := jsonBody(map[string]interface{}{
		"model":      model,
		"max_tokens": 4096,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/messages", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (claudeStrategy) ExtractText(body []byte) (string, error) {
	var envelope struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode claude envelope: %w", err)
	}
	if envelope.Error != nil {
		return "", fmt.Errorf("claude error: %s", envelope.Error.Message)
	}
	for _, block := range envelope.Content {
		if block.Type == "text" || block.Type == "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("claude response contained no text block")
}

// geminiStrategy: generateContent endpoint, key in the URL query rather
// than a header, text under candidates[0].content.parts[0].text
type geminiStrategy struct{}

func (geminiStrategy) Name() string { return "gemini" }

func (geminiStrategy) BuildRequest(ctx context.Context, cfg Config, prompt string) (*http.Request, error) {
	base := cfg.BaseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	body, err := jsonBody(map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]interface{}{
			"temperature": cfg.Temperature,
		},
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		base, model, url.QueryEscape(cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (geminiStrategy) ExtractText(body []byte) (string, error) {
	var envelope struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode gemini envelope: %w", err)
	}
	if envelope.Error != nil {
		return "", fmt.Errorf("gemini error: %s", envelope.Error.Message)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response contained no candidates")
	}
	return envelope.Candidates[0].Content.Parts[0].Text, nil
}

// ollamaStrategy: local generate endpoint, no auth by default, text under
// the top-level response field
type ollamaStrategy struct{}

func (ollamaStrategy) Name() string { return "ollama" }

func (ollamaStrategy) BuildRequest(ctx context.Context, cfg Config, prompt string) (*http.Request, error) {
	base := cfg.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}

	body, err := jsonBody(map[string]interface{}{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/generate", body)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (ollamaStrategy) ExtractText(body []byte) (string, error) {
	var envelope struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode ollama envelope: %w", err)
	}
	if envelope.Error != "" {
		return "", fmt.Errorf("ollama error: %s", envelope.Error)
	}
	if envelope.Response == "" {
		return "", fmt.Errorf("ollama response was empty")
	}
	return envelope.Response, nil
}
