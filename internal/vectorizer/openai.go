package vectorizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/n1hub/deepmine-engine/internal/logger"
)

type openAIVectorizer struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	embedModel string
	dim        int
	httpClient *http.Client
}

// NewOpenAI builds an embedding client against an OpenAI-compatible API.
// Requires OPENAI_API_KEY; honors OPENAI_BASE_URL, OPENAI_EMBED_MODEL and
// OPENAI_TIMEOUT_SECONDS.
func NewOpenAI(log *logger.Logger, dim int) (Vectorizer, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	embedModel := os.Getenv("OPENAI_EMBED_MODEL")
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	timeoutSec := 60
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	return &openAIVectorizer{
		log:        log.With("service", "OpenAIVectorizer"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		embedModel: embedModel,
		dim:        dim,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (v *openAIVectorizer) Dimension() int {
	return v.dim
}

func (v *openAIVectorizer) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"model":      v.embedModel,
		"input":      []string{text},
		"dimensions": v.dim,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+v.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		v.log.Warn("Embeddings API returned non-200", "status", resp.StatusCode)
		return nil, fmt.Errorf("embeddings API status %d", resp.StatusCode)
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embeddings response contained no vectors")
	}
	embedding := parsed.Data[0].Embedding
	if len(embedding) != v.dim {
		return nil, fmt.Errorf("vectorizer returned %d dims but config expects %d", len(embedding), v.dim)
	}
	return embedding, nil
}

// New picks the OpenAI-backed vectorizer when an API key is configured and
// falls back to the local hash projection otherwise.
func New(log *logger.Logger, dim int) (Vectorizer, error) {
	if os.Getenv("OPENAI_API_KEY") != "" {
		v, err := NewOpenAI(log, dim)
		if err == nil {
			return v, nil
		}
		log.Warn("OpenAI vectorizer init failed, falling back to local", "error", err)
	}
	return NewLocal(log, dim)
}
