package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/types"
	"github.com/n1hub/deepmine-engine/internal/utils"
)

const systemPrompt = `You are a grounded answerer. Use ONLY the provided CONTEXT_CAPSULES.
- NO external facts from training data
- Every factual claim must cite >=1 capsule_id using inline format: 【<capsule_id>】
- If insufficient evidence: Return "Insufficient capsule evidence to answer."
- Be concise and precise
- Use bullet points for lists
- Mark interpretations clearly`

// Answerer turns a query plus its retrieved context into a cited answer.
type Answerer interface {
	GenerateGroundedAnswer(ctx context.Context, query string, capsules []types.Capsule) (string, error)
}

type answerer struct {
	log              *logger.Logger
	client           *http.Client
	baseURL          string
	apiKey           string
	model            string
	maxTokens        int
	citationFallback string
}

// New builds the answerer. Without an LLM_API_KEY every call degrades to the
// deterministic local composition; with one it calls an OpenAI-compatible
// chat completions endpoint and still degrades locally on any failure.
func New(baseLog *logger.Logger, maxTokens int, citationFallback string) Answerer {
	log := baseLog.With("service", "Answerer")
	apiKey := utils.GetEnv("LLM_API_KEY", "", log)
	if apiKey == "" {
		log.Info("LLM_API_KEY not set, answers use local composition")
	}
	timeout := utils.GetEnvAsInt("LLM_TIMEOUT_SECONDS", 30, log)
	return &answerer{
		log:              log,
		client:           &http.Client{Timeout: time.Duration(timeout) * time.Second},
		baseURL:          utils.GetEnv("LLM_BASE_URL", "https://api.openai.com", log),
		apiKey:           apiKey,
		model:            utils.GetEnv("LLM_MODEL", "gpt-4o-mini", log),
		maxTokens:        maxTokens,
		citationFallback: citationFallback,
	}
}

func (a *answerer) GenerateGroundedAnswer(ctx context.Context, query string, capsules []types.Capsule) (string, error) {
	if len(capsules) < 2 {
		return a.citationFallback, nil
	}
	if a.apiKey == "" {
		return composeAnswer(capsules), nil
	}
	answer, err := a.callModel(ctx, query, capsules)
	if err != nil {
		a.log.Warn("LLM call failed, composing locally", "error", err)
		return composeAnswer(capsules), nil
	}
	return answer, nil
}

func (a *answerer) callModel(ctx context.Context, query string, capsules []types.Capsule) (string, error) {
	contextParts := make([]string, 0, len(capsules))
	for _, capsule := range capsules {
		content := capsule.CorePayload.Content
		if len(content) > 500 {
			content = content[:500]
		}
		contextParts = append(contextParts, fmt.Sprintf(
			"【%s】\nSummary: %s\nKeywords: %s\nContent: %s...",
			capsule.Metadata.CapsuleID,
			capsule.NeuroConcentrate.Summary,
			strings.Join(capsule.NeuroConcentrate.Keywords, ", "),
			content,
		))
	}
	userPrompt := fmt.Sprintf(
		"QUERY: %s\n\nCONTEXT_CAPSULES:\n%s\n\nGenerate a grounded answer using ONLY the context above. Cite capsule_ids inline using 【<capsule_id>】 format.",
		query, strings.Join(contextParts, "\n\n"),
	)

	body, err := json.Marshal(map[string]any{
		"model":      a.model,
		"max_tokens": a.maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm returned status %d", resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message.Content == "" {
		return a.citationFallback, nil
	}
	return payload.Choices[0].Message.Content, nil
}

// composeAnswer is the deterministic local composition: one lead sentence,
// then each capsule's first summary sentence with an inline citation.
func composeAnswer(capsules []types.Capsule) string {
	sentences := []string{
		"N1Hub evaluated the active scope and assembled the following grounded perspective.",
	}
	for _, capsule := range capsules {
		first := capsule.NeuroConcentrate.Summary
		if idx := strings.Index(first, "."); idx >= 0 {
			first = first[:idx]
		}
		sentences = append(sentences, fmt.Sprintf("【%s】 %s", capsule.Metadata.CapsuleID, strings.TrimSpace(first)))
	}
	sentences = append(sentences, "Responses stay within cited capsules; request a richer scope to go deeper.")
	return strings.Join(sentences, " ")
}
