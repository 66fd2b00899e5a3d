package types

import (
	"time"
)

const (
	CapsuleStatusDraft    = "draft"
	CapsuleStatusActive   = "active"
	CapsuleStatusArchived = "archived"
)

const (
	LinkRelSupports    = "supports"
	LinkRelContradicts = "contradicts"
	LinkRelExtends     = "extends"
	LinkRelDuplicates  = "duplicates"
	LinkRelReferences  = "references"
	LinkRelDependsOn   = "depends_on"
	LinkRelDerivedFrom = "derived_from"
)

// AllowedLinkRels is the fixed relation vocabulary for capsule graph edges.
var AllowedLinkRels = map[string]bool{
	LinkRelSupports:    true,
	LinkRelContradicts: true,
	LinkRelExtends:     true,
	LinkRelDuplicates:  true,
	LinkRelReferences:  true,
	LinkRelDependsOn:   true,
	LinkRelDerivedFrom: true,
}

func ValidCapsuleStatus(status string) bool {
	switch status {
	case CapsuleStatusDraft, CapsuleStatusActive, CapsuleStatusArchived:
		return true
	default:
		return false
	}
}

type SourceDescriptor struct {
	Type string `json:"type"`
	URI  string `json:"uri,omitempty"`
}

type CapsuleMetadata struct {
	CapsuleID    string           `json:"capsule_id"`
	Version      string           `json:"version"`
	Status       string           `json:"status"`
	Author       string           `json:"author"`
	CreatedAt    time.Time        `json:"created_at"`
	Language     string           `json:"language"`
	Source       SourceDescriptor `json:"source"`
	Tags         []string         `json:"tags"`
	Length       map[string]int   `json:"length"`
	SemanticHash string           `json:"semantic_hash"`
}

type CapsuleCorePayload struct {
	ContentType    string  `json:"content_type"`
	Content        string  `json:"content"`
	TruncationNote *string `json:"truncation_note,omitempty"`
}

type CapsuleEntity struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type CapsuleNeuroConcentrate struct {
	Summary         string          `json:"summary"`
	Keywords        []string        `json:"keywords"`
	Entities        []CapsuleEntity `json:"entities"`
	Claims          []string        `json:"claims"`
	Insights        []string        `json:"insights"`
	Questions       []string        `json:"questions"`
	Archetypes      []string        `json:"archetypes"`
	Symbols         []string        `json:"symbols"`
	EmotionalCharge float64         `json:"emotional_charge"`
	VectorHint      []string        `json:"vector_hint"`
	SemanticHash    string          `json:"semantic_hash"`
}

type CapsuleLink struct {
	Rel             string  `json:"rel"`
	TargetCapsuleID string  `json:"target_capsule_id"`
	Reason          string  `json:"reason"`
	Confidence      float64 `json:"confidence"`
}

type CapsuleAction struct {
	Name         string         `json:"name"`
	Intent       string         `json:"intent"`
	Params       map[string]any `json:"params,omitempty"`
	HITLRequired bool           `json:"hitl_required"`
}

type CapsulePrompt struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

type CapsuleRecursive struct {
	Links      []CapsuleLink   `json:"links"`
	Actions    []CapsuleAction `json:"actions"`
	Prompts    []CapsulePrompt `json:"prompts"`
	Confidence float64         `json:"confidence"`
}

// Capsule is the persisted unit of knowledge: metadata, payload, extracted
// signals, and graph links. Metadata.SemanticHash must always mirror
// NeuroConcentrate.SemanticHash.
type Capsule struct {
	IncludeInRAG     bool                    `json:"include_in_rag"`
	Metadata         CapsuleMetadata         `json:"metadata"`
	CorePayload      CapsuleCorePayload      `json:"core_payload"`
	NeuroConcentrate CapsuleNeuroConcentrate `json:"neuro_concentrate"`
	Recursive        CapsuleRecursive        `json:"recursive"`
}

// Clone returns a deep copy so validation repairs never mutate the caller's value.
func (c Capsule) Clone() Capsule {
	out := c
	out.Metadata.Tags = append([]string(nil), c.Metadata.Tags...)
	if c.Metadata.Length != nil {
		out.Metadata.Length = make(map[string]int, len(c.Metadata.Length))
		for k, v := range c.Metadata.Length {
			out.Metadata.Length[k] = v
		}
	}
	if c.CorePayload.TruncationNote != nil {
		note := *c.CorePayload.TruncationNote
		out.CorePayload.TruncationNote = &note
	}
	out.NeuroConcentrate.Keywords = append([]string(nil), c.NeuroConcentrate.Keywords...)
	out.NeuroConcentrate.Entities = append([]CapsuleEntity(nil), c.NeuroConcentrate.Entities...)
	out.NeuroConcentrate.Claims = append([]string(nil), c.NeuroConcentrate.Claims...)
	out.NeuroConcentrate.Insights = append([]string(nil), c.NeuroConcentrate.Insights...)
	out.NeuroConcentrate.Questions = append([]string(nil), c.NeuroConcentrate.Questions...)
	out.NeuroConcentrate.Archetypes = append([]string(nil), c.NeuroConcentrate.Archetypes...)
	out.NeuroConcentrate.Symbols = append([]string(nil), c.NeuroConcentrate.Symbols...)
	out.NeuroConcentrate.VectorHint = append([]string(nil), c.NeuroConcentrate.VectorHint...)
	out.Recursive.Links = append([]CapsuleLink(nil), c.Recursive.Links...)
	out.Recursive.Actions = append([]CapsuleAction(nil), c.Recursive.Actions...)
	out.Recursive.Prompts = append([]CapsulePrompt(nil), c.Recursive.Prompts...)
	return out
}
