package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GeneratorConfig describes the upstream generation service. Populated from
// the environment via pkg/config.
type GeneratorConfig struct {
	BaseURL string        `env:"GENERATOR_BASE_URL,required"`
	APIKey  string        `env:"GENERATOR_API_KEY"`
	Timeout time.Duration `env:"GENERATOR_TIMEOUT" envDefault:"55s"`
}

// HTTPGenerator calls the generation service over HTTP. The service owns
// prompt templates and provider fallback; this client just ships the
// validated payload and returns the produced content.
type HTTPGenerator struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGenerator returns a Generator backed by the configured service.
func NewHTTPGenerator(cfg GeneratorConfig) *HTTPGenerator {
	if cfg.BaseURL == "" {
		panic("coach: generator base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 55 * time.Second
	}
	return &HTTPGenerator{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	UserID  string          `json:"user_id"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type generateResponse struct {
	Content    json.RawMessage `json:"content"`
	Provider   string          `json:"provider"`
	TokensUsed int64           `json:"tokens_used"`
	Error      string          `json:"error"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	body, err := json.Marshal(generateRequest{
		UserID:  req.UserID.String(),
		Action:  string(req.Action),
		Payload: req.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call generation service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read generation response: %w", err)
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode generation response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := decoded.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("generation service returned %d: %s", resp.StatusCode, msg)
	}
	if len(decoded.Content) == 0 {
		return nil, errors.New("generation service returned empty content")
	}

	return &GenerationResult{
		Content:    decoded.Content,
		Provider:   decoded.Provider,
		TokensUsed: decoded.TokensUsed,
	}, nil
}
