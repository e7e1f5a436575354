package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type claudeClient struct {
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

func newClaudeClient(cfg FactoryConfig) *claudeClient {
	return &claudeClient{
		apiKey:      cfg.APIKey,
		model:       valueOrDefault(cfg.Model, "claude-3-haiku-20240307"),
		temperature: orFloat(cfg.Temperature, 0.2),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *claudeClient) Screen(ctx context.Context, in Input) (ScreenResult, error) {
	text, err := c.complete(ctx, screenSystemPrompt, buildUserPrompt(in), 500)
	if err != nil {
		return ScreenResult{}, err
	}
	return parseScreenResult(text)
}

func (c *claudeClient) Judge(ctx context.Context, in Input) (Verdict, error) {
	text, err := c.complete(ctx, judgeSystemPrompt, buildUserPrompt(in), 1000)
	if err != nil {
		return Verdict{}, err
	}
	return parseVerdict(text)
}

func (c *claudeClient) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	reqBody := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": user},
		},
		"system":      system,
		"max_tokens":  maxTokens,
		"temperature": c.temperature,
	}
	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.anthropic.com/v1/messages", bytes.NewBuffer(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("claude API error: %s", string(body))
	}
	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("no response from Claude")
	}
	return result.Content[0].Text, nil
}
