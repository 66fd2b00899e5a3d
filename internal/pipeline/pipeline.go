package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/n1hub/deepmine-engine/internal/app"
	"github.com/n1hub/deepmine-engine/internal/flags"
	"github.com/n1hub/deepmine-engine/internal/linking"
	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/pii"
	"github.com/n1hub/deepmine-engine/internal/store"
	"github.com/n1hub/deepmine-engine/internal/textutil"
	"github.com/n1hub/deepmine-engine/internal/types"
	"github.com/n1hub/deepmine-engine/internal/validator"
	"github.com/n1hub/deepmine-engine/internal/vectorizer"
)

var entityPattern = regexp.MustCompile(`[A-Z][a-z]{2,}[^\s]*`)

// StageError carries the structured failure a stage produced; the job row
// records it verbatim.
type StageError struct {
	Err types.JobError
}

func (e *StageError) Error() string {
	parts := make([]string, 0, len(e.Err.Issues))
	for _, issue := range e.Err.Issues {
		parts = append(parts, issue.Path+": "+issue.Message)
	}
	return fmt.Sprintf("stage %s failed: %s", e.Err.Stage, strings.Join(parts, "; "))
}

// Pipeline drives one ingest request through the staged state machine and
// produces a validated, persisted capsule.
type Pipeline struct {
	store     store.Store
	cfg       app.Config
	flags     *flags.FeatureFlags
	suggester linking.Suggester
	vec       vectorizer.Vectorizer
	log       *logger.Logger
}

func New(s store.Store, cfg app.Config, ff *flags.FeatureFlags, suggester linking.Suggester, vec vectorizer.Vectorizer, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		store:     s,
		cfg:       cfg,
		flags:     ff,
		suggester: suggester,
		vec:       vec,
		log:       baseLog.With("service", "Pipeline"),
	}
}

// Run executes every stage in order, advancing the job code after each one.
// Codes only increase on success; any failure jumps straight to 500.
func (p *Pipeline) Run(ctx context.Context, jobID string, request types.IngestRequest) (types.Capsule, error) {
	capsule, err := p.run(ctx, jobID, request)
	if err != nil {
		p.fail(ctx, jobID, err)
		return types.Capsule{}, err
	}
	return capsule, nil
}

func (p *Pipeline) run(ctx context.Context, jobID string, request types.IngestRequest) (types.Capsule, error) {
	if err := p.advance(ctx, jobID, types.StageCodeIngesting, "ingesting", types.JobStateProcessing, 5); err != nil {
		return types.Capsule{}, err
	}
	normalized := p.normalize(request)

	if err := p.advance(ctx, jobID, types.StageCodeNormalizing, "normalizing", "", 15); err != nil {
		return types.Capsule{}, err
	}
	segments := p.segment(normalized)

	if err := p.advance(ctx, jobID, types.StageCodeSegmenting, "segmenting", "", 30); err != nil {
		return types.Capsule{}, err
	}
	extraction := p.extract(segments, normalized)

	if err := p.advance(ctx, jobID, types.StageCodeExtracting, "extracting", "", 45); err != nil {
		return types.Capsule{}, err
	}
	summary := p.synthesize(normalized)

	if err := p.advance(ctx, jobID, types.StageCodeSynthesizing, "synthesizing", "", 60); err != nil {
		return types.Capsule{}, err
	}
	neighbors, err := p.store.ListCapsules(ctx, nil)
	if err != nil {
		return types.Capsule{}, err
	}
	capsule, err := p.assemble(request, normalized, summary, extraction, neighbors)
	if err != nil {
		return types.Capsule{}, err
	}

	if err := p.advance(ctx, jobID, types.StageCodeAssembling, "assembling", "", 75); err != nil {
		return types.Capsule{}, err
	}

	if p.flags.Enabled(flags.LinkSuggester) {
		suggested, err := p.suggester.SuggestLinks(ctx, capsule, 5)
		if err != nil {
			return types.Capsule{}, err
		}
		existing := make(map[string]bool, len(capsule.Recursive.Links))
		for _, link := range capsule.Recursive.Links {
			existing[link.TargetCapsuleID] = true
		}
		for _, link := range suggested {
			if !existing[link.TargetCapsuleID] {
				capsule.Recursive.Links = append(capsule.Recursive.Links, link)
			}
		}
	}

	if err := p.advance(ctx, jobID, types.StageCodeValidating, "validating", "", 85); err != nil {
		return types.Capsule{}, err
	}
	result := validator.Validate(capsule, false)
	if !result.Valid {
		return types.Capsule{}, &StageError{Err: types.JobError{
			Code:   types.StageCodeFailed,
			Stage:  "validating",
			Issues: result.Errors,
		}}
	}
	capsule = result.Capsule

	if err := p.advance(ctx, jobID, types.StageCodeIndexing, "indexing", "", 90); err != nil {
		return types.Capsule{}, err
	}
	if err := p.store.SaveCapsule(ctx, capsule); err != nil {
		return types.Capsule{}, err
	}
	embedText := capsule.NeuroConcentrate.Summary + " " + strings.Join(capsule.NeuroConcentrate.Keywords, " ")
	embedding, err := p.vec.Embed(ctx, embedText)
	if err != nil {
		return types.Capsule{}, err
	}
	if err := p.store.SaveVector(ctx, capsule.Metadata.CapsuleID, embedding); err != nil {
		return types.Capsule{}, err
	}

	if err := p.advance(ctx, jobID, types.StageCodeReporting, "reporting", "", 95); err != nil {
		return types.Capsule{}, err
	}
	artifact := types.Artifact{Kind: "capsule", URI: "capsules/" + capsule.Metadata.CapsuleID}
	if err := p.store.RecordArtifact(ctx, jobID, artifact); err != nil {
		return types.Capsule{}, err
	}

	update := types.JobUpdate{
		Code:      intPtr(types.StageCodeDone),
		Stage:     strPtr("done"),
		State:     strPtr(types.JobStateSucceeded),
		Progress:  intPtr(100),
		CapsuleID: strPtr(capsule.Metadata.CapsuleID),
	}
	if _, err := p.store.UpdateJob(ctx, jobID, update); err != nil {
		return types.Capsule{}, err
	}
	p.log.Info("Pipeline finished", "job_id", jobID, "capsule_id", capsule.Metadata.CapsuleID)
	return capsule, nil
}

func (p *Pipeline) fail(ctx context.Context, jobID string, cause error) {
	stage := "unknown"
	if job, err := p.store.GetJob(ctx, jobID); err == nil {
		stage = job.Stage
	}

	var stageErr *StageError
	jobErr := types.JobError{
		Code:   types.StageCodeFailed,
		Stage:  stage,
		Issues: []types.JobErrorIssue{{Path: "/pipeline", Message: cause.Error()}},
	}
	if errors.As(cause, &stageErr) {
		jobErr = stageErr.Err
	}

	update := types.JobUpdate{
		Code:     intPtr(types.StageCodeFailed),
		Stage:    strPtr("failed"),
		State:    strPtr(types.JobStateFailed),
		Progress: intPtr(100),
		Error:    &jobErr,
	}
	if _, err := p.store.UpdateJob(ctx, jobID, update); err != nil {
		p.log.Error("Could not record job failure", "job_id", jobID, "error", err)
	}
	p.log.Warn("Pipeline failed", "job_id", jobID, "stage", stage, "error", cause)
}

func (p *Pipeline) advance(ctx context.Context, jobID string, code int, stage, state string, progress int) error {
	update := types.JobUpdate{
		Code:     intPtr(code),
		Stage:    strPtr(stage),
		Progress: intPtr(progress),
	}
	if state != "" {
		update.State = strPtr(state)
	}
	_, err := p.store.UpdateJob(ctx, jobID, update)
	return err
}

func (p *Pipeline) normalize(request types.IngestRequest) string {
	text := strings.TrimSpace(request.Content)
	if request.PrivacyLevel == types.PrivacyLevelHigh {
		text = pii.Redact(text)
	}
	return textutil.CollapseWhitespace(text)
}

// segment slides a token window of chunk_size with step chunk_size-stride.
// Short inputs fall back to one segment spanning everything.
func (p *Pipeline) segment(text string) []types.Segment {
	size := p.cfg.ChunkSize
	stride := p.cfg.ChunkStride
	tokens := strings.Fields(text)
	var segments []types.Segment
	start := 0
	index := 1
	step := size - stride
	if step < 1 {
		step = 1
	}
	for start < len(tokens) {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := tokens[start:end]
		if len(chunk) == 0 {
			break
		}
		segments = append(segments, types.Segment{
			Index:      index,
			Text:       strings.Join(chunk, " "),
			StartToken: start,
			EndToken:   start + len(chunk) - 1,
		})
		index++
		start += step
	}
	if len(segments) == 0 {
		fallbackEnd := len(tokens) - 1
		if fallbackEnd < 0 {
			fallbackEnd = 0
		}
		segments = append(segments, types.Segment{
			Index:      1,
			Text:       text,
			StartToken: 0,
			EndToken:   fallbackEnd,
		})
	}
	return segments
}

type extraction struct {
	Keywords   []string
	Entities   []types.CapsuleEntity
	Claims     []string
	Insights   []string
	Questions  []string
	Archetypes []string
	Symbols    []string
	VectorHint []string
	Segments   []types.Segment
}

func (p *Pipeline) extract(segments []types.Segment, normalized string) extraction {
	keywords := extractKeywords(normalized)
	claims := make([]string, 0, 4)
	for _, kw := range keywords {
		if len(claims) == 4 {
			break
		}
		claims = append(claims, titleCase(kw)+" is discussed in the capsule")
	}
	questions := []string{"What follow-up data do we need?"}
	if len(keywords) > 0 {
		questions = []string{fmt.Sprintf("How can we operationalize %s within N1Hub workflows?", keywords[0])}
	}
	vectorHint := append([]string(nil), keywords...)
	if len(vectorHint) > 16 {
		vectorHint = vectorHint[:16]
	}
	for len(vectorHint) < 8 {
		vectorHint = append(vectorHint, fmt.Sprintf("signal-%d", len(vectorHint)+1))
	}
	return extraction{
		Keywords:   keywords,
		Entities:   extractEntities(normalized),
		Claims:     claims,
		Insights:   []string{"DeepMine captured structured knowledge for downstream RAG."},
		Questions:  questions,
		Archetypes: []string{"researcher", "operator", "reviewer", "architect", "qa"},
		Symbols:    []string{"deepmine", "capsule", "rag", "graph"},
		VectorHint: vectorHint,
		Segments:   segments,
	}
}

// synthesize accumulates sentences until 70 words, pads with a fixed filler
// sentence when the material is too short, and truncates at 140 words.
func (p *Pipeline) synthesize(normalized string) string {
	sentences := textutil.SplitSentences(normalized)
	wordCount := 0
	var parts []string
	for _, sentence := range sentences {
		tokens := strings.Fields(sentence)
		if len(tokens) == 0 {
			continue
		}
		parts = append(parts, strings.TrimSpace(sentence))
		wordCount += len(tokens)
		if wordCount >= 70 {
			break
		}
	}
	if wordCount < 70 {
		parts = append(parts, "This capsule documents how DeepMine processed the material into metadata, neuro concentrate, and graph-ready signals, preserving retrieval defaults and guardrails.")
	}
	summary := strings.Join(parts, " ")
	words := strings.Fields(summary)
	if len(words) > 140 {
		summary = strings.Join(words[:140], " ")
	}
	return summary
}

func (p *Pipeline) assemble(
	request types.IngestRequest,
	normalized string,
	summary string,
	ext extraction,
	neighbors []types.Capsule,
) (types.Capsule, error) {
	capsuleID := ulid.Make().String()
	now := time.Now().UTC()
	assignChunkIDs(capsuleID, ext.Segments)

	tags := dedupeLower(request.Tags)
	if len(tags) < 3 {
		tags = append(tags, "capsule", "n1hub", "deepmine")
	}
	if len(tags) > 10 {
		tags = tags[:10]
	}

	length := map[string]int{
		"chars":      len(normalized),
		"tokens_est": int(math.Ceil(float64(len(normalized)) / 4)),
	}
	semanticHash := textutil.ComputeSemanticHash(summary)

	keywords := ext.Keywords
	if len(keywords) > 12 {
		keywords = keywords[:12]
	}

	capsule := types.Capsule{
		IncludeInRAG: request.IncludeInRAG == nil || *request.IncludeInRAG,
		Metadata: types.CapsuleMetadata{
			CapsuleID:    capsuleID,
			Version:      "1.0.0",
			Status:       types.CapsuleStatusActive,
			Author:       request.Author,
			CreatedAt:    now,
			Language:     request.Language,
			Source:       request.Source,
			Tags:         tags,
			Length:       length,
			SemanticHash: semanticHash,
		},
		CorePayload: types.CapsuleCorePayload{
			ContentType: "text/markdown",
			Content:     normalized,
		},
		NeuroConcentrate: types.CapsuleNeuroConcentrate{
			Summary:         summary,
			Keywords:        keywords,
			Entities:        ext.Entities,
			Claims:          ext.Claims,
			Insights:        ext.Insights,
			Questions:       ext.Questions,
			Archetypes:      ext.Archetypes,
			Symbols:         ext.Symbols,
			EmotionalCharge: 0.0,
			VectorHint:      ext.VectorHint,
			SemanticHash:    semanticHash,
		},
		Recursive: types.CapsuleRecursive{
			Links: linksForCapsule(capsuleID, tags, neighbors),
			Actions: []types.CapsuleAction{
				{
					Name:         "Validate-Capsule",
					Intent:       "Run schema + guardrail validation",
					Params:       map[string]any{"strict_mode": true},
					HITLRequired: false,
				},
				{
					Name:         "Notify-Graph",
					Intent:       "Broadcast new capsule hash to graph monitor",
					Params:       map[string]any{"capsule_id": capsuleID},
					HITLRequired: false,
				},
			},
			Prompts: []types.CapsulePrompt{
				{
					Title:  "RAG summary",
					Prompt: "Summarize capsule context in under 3 sentences with citations.",
				},
				{
					Title:  "Faithfulness guardrail",
					Prompt: "Answer only when context fully supports the claim; otherwise reply with idk+dig_deep.",
				},
			},
			Confidence: 0.92,
		},
	}

	if hits := pii.ScanCapsule(capsule); len(hits) > 0 {
		return types.Capsule{}, &StageError{Err: types.JobError{
			Code:  types.StageCodeFailed,
			Stage: "assembling",
			Issues: []types.JobErrorIssue{{
				Path:    "/capsule",
				Message: fmt.Sprintf("Privacy guardrail triggered: %s", strings.Join(hits, ", ")),
			}},
		}}
	}
	return capsule, nil
}

// assignChunkIDs derives the deterministic chunk id from (capsule id, segment
// index, token span); same inputs always yield the same string.
func assignChunkIDs(capsuleID string, segments []types.Segment) {
	for i := range segments {
		segments[i].ChunkID = fmt.Sprintf("%s::c%04d@t%d-%d",
			capsuleID, segments[i].Index, segments[i].StartToken, segments[i].EndToken)
	}
}

// extractKeywords ranks cleaned tokens by frequency, breaking ties by first
// appearance, and pads with signal-N placeholders up to five.
func extractKeywords(text string) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, raw := range strings.Fields(text) {
		token := textutil.StripNonAlnum(raw)
		if token == "" || textutil.Stopwords[token] {
			continue
		}
		if _, ok := counts[token]; !ok {
			firstSeen[token] = order
			order++
		}
		counts[token]++
	}
	ranked := make([]string, 0, len(counts))
	for token := range counts {
		ranked = append(ranked, token)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return firstSeen[ranked[i]] < firstSeen[ranked[j]]
	})
	if len(ranked) > 12 {
		ranked = ranked[:12]
	}
	for len(ranked) < 5 {
		ranked = append(ranked, fmt.Sprintf("signal-%d", len(ranked)+1))
	}
	return ranked
}

// extractEntities keeps capitalized multi-letter tokens, deduplicated in
// first-appearance order, capped at six.
func extractEntities(text string) []types.CapsuleEntity {
	seen := make(map[string]bool)
	var out []types.CapsuleEntity
	for _, match := range entityPattern.FindAllString(text, -1) {
		name := strings.Trim(match, ",.;:")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, types.CapsuleEntity{Type: "concept", Name: name})
		if len(out) == 6 {
			break
		}
	}
	return out
}

// linksForCapsule attaches up to three reference links to tag-sharing
// neighbors, confidence capped at 0.99.
func linksForCapsule(capsuleID string, tags []string, neighbors []types.Capsule) []types.CapsuleLink {
	tagSet := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tagSet[tag] = true
	}
	var links []types.CapsuleLink
	seen := make(map[string]bool)
	for _, neighbor := range neighbors {
		if neighbor.Metadata.CapsuleID == capsuleID || seen[neighbor.Metadata.CapsuleID] {
			continue
		}
		var overlap []string
		for _, tag := range neighbor.Metadata.Tags {
			if tagSet[tag] {
				overlap = append(overlap, tag)
			}
		}
		if len(overlap) == 0 {
			continue
		}
		seen[neighbor.Metadata.CapsuleID] = true
		sort.Strings(overlap)
		links = append(links, types.CapsuleLink{
			Rel:             types.LinkRelReferences,
			TargetCapsuleID: neighbor.Metadata.CapsuleID,
			Reason:          "Shared tags: " + strings.Join(overlap, ", "),
			Confidence:      math.Min(0.99, neighbor.Recursive.Confidence),
		})
		if len(links) == 3 {
			break
		}
	}
	return links
}

func dedupeLower(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
