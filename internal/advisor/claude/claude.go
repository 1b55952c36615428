package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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

// Oracle calls the Anthropic messages API and returns the raw assistant
// text. The endpoint can be overridden via CLAUDE_API_ENDPOINT for
// proxy/bedrock/vertex setups.
type Oracle struct {
	cfg      *store.Config
	endpoint string
	client   *http.Client
}

func New(cfg *store.Config) *Oracle {
	endpoint := "https://api.anthropic.com/v1/messages"
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &Oracle{
		cfg:      cfg,
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

func (o *Oracle) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	apiKey := os.Getenv("CLAUDE_API_KEY")
	if apiKey == "" {
		return "", errors.New("CLAUDE_API_KEY missing")
	}

	body := map[string]any{
		"model":       o.cfg.LLM.Model,
		"system":      system,
		"messages":    []map[string]string{{"role": "user", "content": user}},
		"max_tokens":  o.cfg.LLM.MaxTokens,
		"temperature": o.cfg.LLM.Temperature,
	}
	bb, _ := json.Marshal(body)

	req, _ := http.NewRequestWithContext(ctx, "POST", o.endpoint, bytes.NewReader(bb))
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("claude http %d: %s", resp.StatusCode, string(rb))
	}

	var r struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("empty completion")
	}

	return out, nil
}
