package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type openAIClient struct {
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

func newOpenAIClient(cfg FactoryConfig) *openAIClient {
	return &openAIClient{
		apiKey:      cfg.APIKey,
		model:       valueOrDefault(cfg.Model, "gpt-4o-mini"),
		temperature: orFloat(cfg.Temperature, 0.2),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *openAIClient) Screen(ctx context.Context, in Input) (ScreenResult, error) {
	text, err := c.complete(ctx, screenSystemPrompt, buildUserPrompt(in))
	if err != nil {
		return ScreenResult{}, err
	}
	return parseScreenResult(text)
}

func (c *openAIClient) Judge(ctx context.Context, in Input) (Verdict, error) {
	text, err := c.complete(ctx, judgeSystemPrompt, buildUserPrompt(in))
	if err != nil {
		return Verdict{}, err
	}
	return parseVerdict(text)
}

func (c *openAIClient) complete(ctx context.Context, system, user string) (string, error) {
	messages := []map[string]string{
		{"role": "system", "content": system},
		{"role": "user", "content": user},
	}
	reqBody := map[string]interface{}{
		"model":           c.model,
		"messages":        messages,
		"temperature":     c.temperature,
		"response_format": map[string]string{"type": "json_object"},
	}
	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewBuffer(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
		return "", fmt.Errorf("openAI API error: %s", string(body))
	}
	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return result.Choices[0].Message.Content, nil
}
