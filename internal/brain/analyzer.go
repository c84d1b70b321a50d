package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/docuchat/console/internal/llm"
	"github.com/docuchat/console/internal/retry"
)

// maxTurnChars caps each recent turn included in the analysis prompt.
const maxTurnChars = 300

// maxRecentTurns caps how many prior turns the prompt carries.
const maxRecentTurns = 6

// Generator is the LLM completion call the analyzer depends on.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error)
}

// Analyzer classifies and rewrites queries with an LLM, falling back to
// keyword analysis when the model is unreachable or returns garbage.
type Analyzer struct {
	llm      Generator
	retryCfg retry.RetryConfig
}

// NewAnalyzer creates an analyzer over the given LLM connector.
func NewAnalyzer(generator Generator) *Analyzer {
	return &Analyzer{
		llm:      generator,
		retryCfg: retry.LLMRetryConfig(),
	}
}

// SetRetryConfig overrides the LLM retry configuration.
func (a *Analyzer) SetRetryConfig(cfg retry.RetryConfig) {
	a.retryCfg = cfg
}

// Analyze produces an AnalysisResult for the query. It never returns an
// error: any transport failure or unparsable response delegates to the
// keyword fallback (or, if that is disabled, to plain defaults), so a broken
// model never fails the request.
func (a *Analyzer) Analyze(ctx context.Context, query string, agentCtx *AgentContext, cfg BrainConfig) AnalysisResult {
	if !cfg.EnableIntentDetection && !cfg.EnableQueryRewriting {
		// Nothing left for the model to decide.
		result := defaultAnalysis(query)
		if cfg.EnableDocumentDetection {
			result.DetectedDocuments = DetectDocuments(query, agentCtx.KeyDocuments)
			result.SearchConfig.BoostDocuments = result.DetectedDocuments
		}
		return result
	}

	prompt := buildAnalysisPrompt(query, agentCtx, cfg)

	var response string
	result := retry.RetryWithBackoff(ctx, a.retryCfg, func() error {
		var err error
		response, err = a.llm.Generate(ctx, prompt,
			llms.WithModel(cfg.Model),
			llms.WithTemperature(cfg.Temperature),
			llms.WithMaxTokens(cfg.MaxTokens),
		)
		return err
	})

	if !result.Success {
		log.Warn().Err(result.LastError).
			Int("attempts", result.Attempts).
			Msg("LLM analysis failed, using fallback")
		return a.fallback(query, agentCtx, cfg)
	}

	parsed, err := parseAnalysisResponse(response, query)
	if err != nil {
		log.Warn().Err(err).
			Int("response_chars", len(response)).
			Msg("LLM analysis unparsable, using fallback")
		return a.fallback(query, agentCtx, cfg)
	}

	if !cfg.EnableIntentDetection {
		parsed.Intent = IntentFactual
	}
	if !cfg.EnableQueryRewriting || parsed.RewrittenQuery == "" {
		parsed.RewrittenQuery = strings.TrimSpace(query)
	}
	if !cfg.EnableDocumentDetection {
		parsed.DetectedDocuments = nil
		parsed.SearchConfig.BoostDocuments = nil
	}
	if !cfg.EnableSearchConfigGeneration {
		parsed.SearchConfig = searchPresets[parsed.Intent]
		parsed.SearchConfig.BoostDocuments = parsed.DetectedDocuments
	}

	return parsed
}

func (a *Analyzer) fallback(query string, agentCtx *AgentContext, cfg BrainConfig) AnalysisResult {
	if cfg.FallbackToKeywords {
		return AnalyzeFallback(query, agentCtx.KeyDocuments)
	}
	// Keyword fallback disabled: degrade to the fixed defaults, which always
	// retrieve.
	result := defaultAnalysis(query)
	result.Reasoning = "analysis unavailable"
	return result
}

func defaultAnalysis(query string) AnalysisResult {
	return AnalysisResult{
		Intent:         IntentFactual,
		RequiresSearch: true,
		RewrittenQuery: strings.TrimSpace(query),
		SearchConfig:   searchPresets[IntentFactual],
		AnswerFormat:   FormatParagraph,
	}
}

// buildAnalysisPrompt assembles the prompt from ordered, individually
// omittable layers: key documents, conversation summary, recent turns
// (most recent first, each capped), project facts, then the question.
func buildAnalysisPrompt(query string, agentCtx *AgentContext, cfg BrainConfig) string {
	var prompt strings.Builder

	prompt.WriteString("You are the routing brain of a document-grounded assistant. ")
	prompt.WriteString("Analyze the user's message and decide how to handle it.\n\n")

	if cfg.EnableDocumentDetection && len(agentCtx.KeyDocuments) > 0 {
		prompt.WriteString("# Available reference documents\n")
		for _, doc := range agentCtx.KeyDocuments {
			prompt.WriteString(fmt.Sprintf("- %s (%s)\n", doc.Label, doc.Slug))
		}
		prompt.WriteString("\n")
	}

	if agentCtx.Summary != "" {
		prompt.WriteString("# Conversation summary\n")
		prompt.WriteString(agentCtx.Summary)
		prompt.WriteString("\n\n")
	}

	if len(agentCtx.Messages) > 0 {
		prompt.WriteString("# Recent turns (most recent first)\n")
		count := 0
		for i := len(agentCtx.Messages) - 1; i >= 0 && count < maxRecentTurns; i-- {
			msg := agentCtx.Messages[i]
			prompt.WriteString(fmt.Sprintf("[%s] %s\n", msg.Role, truncate(msg.Content, maxTurnChars)))
			count++
		}
		prompt.WriteString("\n")
	}

	if len(agentCtx.ProjectFacts) > 0 {
		prompt.WriteString("# Project facts\n")
		for _, fact := range agentCtx.ProjectFacts {
			prompt.WriteString("- " + fact + "\n")
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("# User message\n")
	prompt.WriteString(query)
	prompt.WriteString("\n\n")

	prompt.WriteString("Respond with a single JSON object and nothing else:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"intent\": \"synthesis|factual|comparison|citation|conversational\",\n")
	prompt.WriteString("  \"requires_search\": true,\n")
	if cfg.EnableQueryRewriting {
		prompt.WriteString("  \"rewritten_query\": \"the question rewritten as a standalone query, enriched with conversation context\",\n")
	}
	prompt.WriteString("  \"detected_documents\": [\"labels of reference documents the user explicitly names\"],\n")
	prompt.WriteString("  \"search_config\": {\"scope\": \"narrow|broad\", \"max_files\": 3, \"min_similarity\": 0.4, \"boost_documents\": []},\n")
	prompt.WriteString("  \"answer_format\": \"paragraph|list|table|quote\",\n")
	prompt.WriteString("  \"key_concepts\": [\"up to 5 key concepts\"],\n")
	prompt.WriteString("  \"reasoning\": \"one sentence\"\n")
	prompt.WriteString("}\n")
	prompt.WriteString("Set requires_search to false ONLY for pure greetings or acknowledgements with no question content.\n")

	return prompt.String()
}

// rawAnalysis mirrors the model's JSON. Pointers keep absent fields
// distinguishable so each one takes its own fixed default.
type rawAnalysis struct {
	Intent            *string        `json:"intent"`
	RequiresSearch    *bool          `json:"requires_search"`
	RewrittenQuery    *string        `json:"rewritten_query"`
	DetectedDocuments []string       `json:"detected_documents"`
	SearchConfig      *rawSearchConf `json:"search_config"`
	AnswerFormat      *string        `json:"answer_format"`
	KeyConcepts       []string       `json:"key_concepts"`
	Reasoning         string         `json:"reasoning"`
}

type rawSearchConf struct {
	Scope          *string  `json:"scope"`
	MaxFiles       *int     `json:"max_files"`
	MinSimilarity  *float64 `json:"min_similarity"`
	BoostDocuments []string `json:"boost_documents"`
	FileFilter     []string `json:"file_filter"`
}

func parseAnalysisResponse(response, query string) (AnalysisResult, error) {
	var raw rawAnalysis
	if err := llm.DecodeModelJSON(response, &raw); err != nil {
		return AnalysisResult{}, err
	}

	result := defaultAnalysis(query)
	result.Reasoning = raw.Reasoning
	result.DetectedDocuments = raw.DetectedDocuments
	result.KeyConcepts = raw.KeyConcepts

	if raw.Intent != nil {
		if intent, ok := parseIntent(*raw.Intent); ok {
			result.Intent = intent
		}
	}
	if raw.RequiresSearch != nil {
		result.RequiresSearch = *raw.RequiresSearch
	}
	if raw.RewrittenQuery != nil && strings.TrimSpace(*raw.RewrittenQuery) != "" {
		result.RewrittenQuery = strings.TrimSpace(*raw.RewrittenQuery)
	}
	if raw.AnswerFormat != nil {
		if format, ok := parseAnswerFormat(*raw.AnswerFormat); ok {
			result.AnswerFormat = format
		}
	}
	if raw.SearchConfig != nil {
		sc := &result.SearchConfig
		if raw.SearchConfig.Scope != nil && *raw.SearchConfig.Scope == string(ScopeBroad) {
			sc.Scope = ScopeBroad
		}
		if raw.SearchConfig.MaxFiles != nil && *raw.SearchConfig.MaxFiles >= 0 {
			sc.MaxFiles = *raw.SearchConfig.MaxFiles
		}
		if raw.SearchConfig.MinSimilarity != nil && *raw.SearchConfig.MinSimilarity >= 0 {
			sc.MinSimilarity = *raw.SearchConfig.MinSimilarity
		}
		sc.BoostDocuments = raw.SearchConfig.BoostDocuments
		sc.FileFilter = raw.SearchConfig.FileFilter
	}

	return result, nil
}

func parseIntent(s string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentSynthesis:
		return IntentSynthesis, true
	case IntentFactual:
		return IntentFactual, true
	case IntentComparison:
		return IntentComparison, true
	case IntentCitation:
		return IntentCitation, true
	case IntentConversational:
		return IntentConversational, true
	}
	return "", false
}

func parseAnswerFormat(s string) (AnswerFormat, bool) {
	switch AnswerFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatParagraph:
		return FormatParagraph, true
	case FormatList:
		return FormatList, true
	case FormatTable:
		return FormatTable, true
	case FormatQuote:
		return FormatQuote, true
	}
	return "", false
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}
