package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"

	"resolvebot/internal/decision"
	"resolvebot/internal/domain"
	"resolvebot/internal/httpx"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// Analyzer is the external ticket-analysis service: it guesses the category,
// proposes fix steps and says how sure it is.
type Analyzer interface {
	Analyze(ctx context.Context, t domain.Ticket) (decision.Analysis, error)
}

type LLMUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

type AnthropicAnalyzer struct {
	client anthropic.Client
	model  string
}

func NewAnthropicAnalyzer(apiKey, model string, opts ...option.RequestOption) *AnthropicAnalyzer {
	if strings.TrimSpace(model) == "" {
		model = defaultAnthropicModel
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpx.ExternalHTTPClient()),
	}
	return &AnthropicAnalyzer{
		client: anthropic.NewClient(append(base, opts...)...),
		model:  model,
	}
}

func (a *AnthropicAnalyzer) Analyze(ctx context.Context, t domain.Ticket) (decision.Analysis, error) {
	systemPrompt, userPrompt := buildAnalysisPrompts(t)
	log.Printf("llm analyze provider=anthropic model=%s ticket=%d", a.model, t.ID)

	text, usage, err := a.call(ctx, systemPrompt, userPrompt)
	if err != nil {
		return decision.Analysis{}, err
	}
	analysis, err := parseAnalysisResponse(text, t.Category)
	if err != nil {
		return decision.Analysis{}, err
	}
	log.Printf("llm analyze ticket=%d category=%s confidence=%.2f tokens=%d",
		t.ID, analysis.Category, analysis.Confidence, usage.TotalTokens())
	return analysis, nil
}

func (a *AnthropicAnalyzer) call(ctx context.Context, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

func buildAnalysisPrompts(t domain.Ticket) (string, string) {
	var cats []string
	for _, c := range domain.Categories() {
		cats = append(cats, string(c))
	}

	systemPrompt := `You are an IT helpdesk triage assistant. Read the ticket and reply with a single JSON object, no prose:
{"category": "<one of: ` + strings.Join(cats, ", ") + `>",
 "confidence": <0.0-1.0, how sure you are the steps will fix the issue>,
 "resolution_steps": ["step 1", "step 2"],
 "reasoning": "<one sentence>"}
Use a low confidence when the description is vague or the fix needs admin access you cannot assume.
Never suggest disabling security controls.`

	var b strings.Builder
	fmt.Fprintf(&b, "Ticket #%d\n", t.ID)
	if t.Category != "" && t.Category != domain.CategoryOther {
		fmt.Fprintf(&b, "Reported category: %s\n", t.Category)
	}
	fmt.Fprintf(&b, "Description:\n%s\n", strings.TrimSpace(t.Description))
	return systemPrompt, b.String()
}

type analysisResponse struct {
	Category        string          `json:"category"`
	Confidence      float64         `json:"confidence"`
	ResolutionSteps json.RawMessage `json:"resolution_steps"`
	Reasoning       string          `json:"reasoning"`
}

// parseAnalysisResponse accepts fenced or bare JSON. An unknown category
// falls back to the reported one and confidence is clamped to [0,1].
func parseAnalysisResponse(responseText string, fallback domain.Category) (decision.Analysis, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)
	if start, end := strings.Index(responseText, "{"), strings.LastIndex(responseText, "}"); start >= 0 && end > start {
		responseText = responseText[start : end+1]
	}

	var resp analysisResponse
	if err := json.Unmarshal([]byte(responseText), &resp); err != nil {
		return decision.Analysis{}, fmt.Errorf("parsing LLM analysis response: %w (response: %s)", err, responseText)
	}

	category, err := domain.ParseCategory(resp.Category)
	if err != nil {
		category = fallback
		if !category.Valid() {
			category = domain.CategoryOther
		}
	}
	return decision.Analysis{
		Category:        category,
		Confidence:      clampConfidence(resp.Confidence),
		ResolutionSteps: parseSteps(resp.ResolutionSteps),
		Reasoning:       strings.TrimSpace(resp.Reasoning),
	}, nil
}

func parseSteps(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		var out []string
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	// Some replies put all steps in one newline-separated string.
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		var out []string
		for _, line := range strings.Split(single, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	}
	return nil
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// StaticAnalyzer is used when no analysis service is configured. It keeps
// the reported category and a fixed confidence, which routes to humans.
type StaticAnalyzer struct {
	Confidence float64
}

func (s StaticAnalyzer) Analyze(_ context.Context, t domain.Ticket) (decision.Analysis, error) {
	category := t.Category
	if !category.Valid() {
		category = domain.CategoryOther
	}
	return decision.Analysis{
		Category:   category,
		Confidence: clampConfidence(s.Confidence),
		Reasoning:  "no analysis service configured",
	}, nil
}
