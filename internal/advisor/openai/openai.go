package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"defi-position-manager/internal/store"
	"defi-position-manager/internal/trace"
)

// requestTimeout bounds a single completion call. A stalled endpoint
// must fail the tick, not suspend it.
const requestTimeout = 60 * time.Second

// Oracle calls the OpenAI chat completions API and returns the raw
// assistant text. Interpreting that text is the caller's problem.
type Oracle struct {
	cfg      *store.Config
	endpoint string
	client   *http.Client
}

func New(cfg *store.Config) *Oracle {
	return &Oracle{
		cfg:      cfg,
		endpoint: "https://api.openai.com/v1/chat/completions",
		client:   &http.Client{Timeout: requestTimeout},
	}
}

func (o *Oracle) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return "", errors.New("OPENAI_API_KEY missing")
	}

	body := map[string]any{
		"model":       o.cfg.LLM.Model,
		"messages":    []map[string]string{{"role": "system", "content": system}, {"role": "user", "content": user}},
		"temperature": o.cfg.LLM.Temperature,
		"max_tokens":  o.cfg.LLM.MaxTokens,
	}
	bb, _ := json.Marshal(body)

	req, _ := http.NewRequestWithContext(ctx, "POST", o.endpoint, bytes.NewReader(bb))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai http %d", resp.StatusCode)
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", err
	}

	if len(r.Choices) == 0 {
		return "", errors.New("no choices")
	}

	return strings.TrimSpace(r.Choices[0].Message.Content), nil
}
