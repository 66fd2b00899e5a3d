package types

import (
	"time"
)

const (
	PrivacyLevelStandard = "standard"
	PrivacyLevelHigh     = "high"
)

type IngestRequest struct {
	Title        string           `json:"title"`
	Content      string           `json:"content"`
	Tags         []string         `json:"tags"`
	IncludeInRAG *bool            `json:"include_in_rag,omitempty"`
	Author       string           `json:"author"`
	Language     string           `json:"language"`
	Source       SourceDescriptor `json:"source"`
	PrivacyLevel string           `json:"privacy_level"`
}

// ApplyDefaults fills the optional fields the same way the API schema would.
func (r *IngestRequest) ApplyDefaults() {
	if r.Author == "" {
		r.Author = "user"
	}
	if r.Language == "" {
		r.Language = "en"
	}
	if r.Source.Type == "" {
		r.Source.Type = "text"
	}
	if r.PrivacyLevel == "" {
		r.PrivacyLevel = PrivacyLevelStandard
	}
	if r.IncludeInRAG == nil {
		v := true
		r.IncludeInRAG = &v
	}
}

type ChatRequest struct {
	Query string `json:"query"`
	// Scope is ["my"], ["public"], ["inbox"], or an arbitrary tag list.
	Scope []string `json:"scope"`
}

type ChatResponse struct {
	Answer  string             `json:"answer"`
	Sources []string           `json:"sources"`
	Metrics map[string]float64 `json:"metrics"`
}

type CapsulePatch struct {
	IncludeInRAG *bool    `json:"include_in_rag,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Status       *string  `json:"status,omitempty"`
}

type ObservabilityReport struct {
	Name    string             `json:"name"`
	Status  string             `json:"status"`
	Details string             `json:"details"`
	Metrics map[string]float64 `json:"metrics"`
}

type HealthComponent struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]HealthComponent `json:"components,omitempty"`
}

// Segment is transient during ingestion; it is folded into extraction
// metadata and never persisted as its own entity.
type Segment struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	StartToken int    `json:"start_token"`
	EndToken   int    `json:"end_token"`
	ChunkID    string `json:"chunk_id,omitempty"`
}
