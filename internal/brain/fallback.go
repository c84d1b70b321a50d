package brain

import (
	"regexp"
	"sort"
	"strings"
)

// Keyword families for intent classification, checked in precedence order:
// comparison outranks synthesis, which outranks citation. Default is factual.
var (
	comparisonMarkers = []string{
		"incohérence", "incoherence", "discrepancy", "discrepancies",
		"différence", "difference", "divergence", "contradiction",
		"versus", " vs ", " vs.", "écart", "comparer", "comparaison",
		"compare", "comparison", "conflit", "conflict",
	}
	synthesisMarkers = []string{
		"résume", "résumé", "resume", "summarize", "summary", "synthèse",
		"synthesis", "explique", "expliquer", "explain", "overview",
		"vue d'ensemble", "présente", "describe", "décris",
	}
	citationMarkers = []string{
		"cite", "citation", "quote", "verbatim", "extrait",
		"texte exact", "mot pour mot", "article exact", "clause exacte",
	}
)

// searchPresets maps each intent to its fixed retrieval tuning. The
// conversational preset retrieves nothing.
var searchPresets = map[Intent]SearchConfig{
	IntentFactual:        {Scope: ScopeNarrow, MaxFiles: 3, MinSimilarity: 0.4},
	IntentSynthesis:      {Scope: ScopeBroad, MaxFiles: 8, MinSimilarity: 0.35},
	IntentComparison:     {Scope: ScopeBroad, MaxFiles: 5, MinSimilarity: 0.35},
	IntentCitation:       {Scope: ScopeNarrow, MaxFiles: 2, MinSimilarity: 0.5},
	IntentConversational: {Scope: ScopeNarrow, MaxFiles: 0, MinSimilarity: 0},
}

var answerFormats = map[Intent]AnswerFormat{
	IntentFactual:        FormatParagraph,
	IntentSynthesis:      FormatList,
	IntentComparison:     FormatTable,
	IntentCitation:       FormatQuote,
	IntentConversational: FormatParagraph,
}

var stopwords = map[string]bool{
	// French
	"le": true, "la": true, "les": true, "un": true, "une": true, "des": true,
	"de": true, "du": true, "et": true, "ou": true, "est": true, "sont": true,
	"dans": true, "pour": true, "avec": true, "sur": true, "par": true,
	"que": true, "qui": true, "quoi": true, "quel": true, "quelle": true,
	"quels": true, "quelles": true, "entre": true, "cette": true, "ces": true,
	"pas": true, "plus": true, "comment": true, "pourquoi": true, "votre": true,
	// English
	"the": true, "a": true, "an": true, "and": true, "or": true, "is": true,
	"are": true, "in": true, "for": true, "with": true, "on": true, "by": true,
	"what": true, "which": true, "between": true, "this": true, "these": true,
	"not": true, "how": true, "why": true, "your": true, "of": true, "to": true,
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'-]*`)

// AnalyzeFallback is the keyword/regex substitute for the LLM analyzer. It is
// a pure function of the query and the known key documents, matching the LLM
// path's output contract so callers never see which path ran.
func AnalyzeFallback(query string, keyDocuments []KeyDocument) AnalysisResult {
	intent := classifyKeywordIntent(query)
	detected := DetectDocuments(query, keyDocuments)

	cfg := searchPresets[intent]
	cfg.BoostDocuments = detected

	return AnalysisResult{
		Intent:            intent,
		RequiresSearch:    intent != IntentConversational,
		RewrittenQuery:    strings.TrimSpace(query),
		DetectedDocuments: detected,
		SearchConfig:      cfg,
		AnswerFormat:      answerFormats[intent],
		KeyConcepts:       extractKeyConcepts(query),
		Reasoning:         "keyword analysis",
	}
}

func classifyKeywordIntent(query string) Intent {
	if IsPureSalutation(query) {
		return IntentConversational
	}

	q := strings.ToLower(query)
	for _, m := range comparisonMarkers {
		if strings.Contains(q, m) {
			return IntentComparison
		}
	}
	for _, m := range synthesisMarkers {
		if strings.Contains(q, m) {
			return IntentSynthesis
		}
	}
	for _, m := range citationMarkers {
		if strings.Contains(q, m) {
			return IntentCitation
		}
	}
	return IntentFactual
}

// extractKeyConcepts returns the up-to-5 longest non-stopword tokens,
// longest first, preserving query order among equal lengths.
func extractKeyConcepts(query string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(query), -1)

	seen := map[string]bool{}
	var concepts []string
	for _, tok := range tokens {
		if len([]rune(tok)) < 3 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		concepts = append(concepts, tok)
	}

	sort.SliceStable(concepts, func(i, j int) bool {
		return len([]rune(concepts[i])) > len([]rune(concepts[j]))
	})

	if len(concepts) > 5 {
		concepts = concepts[:5]
	}
	return concepts
}

// DetectDocuments returns the labels of known key documents literally
// mentioned in the query, by case-insensitive slug or label match.
func DetectDocuments(query string, keyDocuments []KeyDocument) []string {
	q := strings.ToLower(query)

	var detected []string
	for _, doc := range keyDocuments {
		slug := strings.ToLower(doc.Slug)
		label := strings.ToLower(doc.Label)
		if (slug != "" && strings.Contains(q, slug)) || (label != "" && strings.Contains(q, label)) {
			detected = append(detected, doc.Label)
		}
	}
	return detected
}
