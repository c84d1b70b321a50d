// Package brain implements the query-orchestration engine that sits between
// an incoming chat request and the downstream retrieval+generation agent. Per
// message it decides whether document retrieval is needed, rewrites the query
// with conversation context, tunes retrieval parameters, and drives the
// response stream.
package brain

import "time"

// Intent is the classified purpose of a query. It drives the retrieval
// strategy and the desired answer shape.
type Intent string

const (
	IntentSynthesis      Intent = "synthesis"
	IntentFactual        Intent = "factual"
	IntentComparison     Intent = "comparison"
	IntentCitation       Intent = "citation"
	IntentConversational Intent = "conversational"
)

// SearchScope controls how wide the retrieval collaborator casts its net.
type SearchScope string

const (
	ScopeNarrow SearchScope = "narrow"
	ScopeBroad  SearchScope = "broad"
)

// AnswerFormat is the answer shape hint forwarded to generation.
type AnswerFormat string

const (
	FormatParagraph AnswerFormat = "paragraph"
	FormatList      AnswerFormat = "list"
	FormatTable     AnswerFormat = "table"
	FormatQuote     AnswerFormat = "quote"
)

// SearchConfig is the retrieval tuning bundle passed downstream.
type SearchConfig struct {
	Scope          SearchScope `json:"scope"`
	MaxFiles       int         `json:"max_files"`
	MinSimilarity  float64     `json:"min_similarity"`
	BoostDocuments []string    `json:"boost_documents"`
	FileFilter     []string    `json:"file_filter,omitempty"`
}

// AnalysisResult is the structured decision produced by the query analyzer
// (or its keyword fallback). Produced once per request, consumed once.
type AnalysisResult struct {
	Intent            Intent       `json:"intent"`
	RequiresSearch    bool         `json:"requires_search"`
	RewrittenQuery    string       `json:"rewritten_query"`
	DetectedDocuments []string     `json:"detected_documents"`
	SearchConfig      SearchConfig `json:"search_config"`
	AnswerFormat      AnswerFormat `json:"answer_format"`
	KeyConcepts       []string     `json:"key_concepts"`
	Reasoning         string       `json:"reasoning"`
}

// KeyDocument is an org-level reference document, always eligible for
// detection and boosting regardless of retrieval scope.
type KeyDocument struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
}

// ContextMessage is one prior turn of the conversation.
type ContextMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []string  `json:"sources,omitempty"`
}

// AgentContext is everything the engine knows about the conversation when a
// request arrives. Built fresh per request, never cached or mutated after
// creation.
type AgentContext struct {
	ConversationID    string           `json:"conversation_id"`
	OrgID             string           `json:"org_id,omitempty"`
	AppID             string           `json:"app_id,omitempty"`
	SystemPrompt      string           `json:"system_prompt,omitempty"`
	PromptParams      map[string]any   `json:"prompt_params,omitempty"`
	ProjectFacts      []string         `json:"project_facts,omitempty"`
	Messages          []ContextMessage `json:"messages"`
	Summary           string           `json:"summary,omitempty"`
	FirstMessage      string           `json:"first_message,omitempty"`
	PreviousSourceIDs []string         `json:"previous_source_ids,omitempty"`
	KeyDocuments      []KeyDocument    `json:"key_documents"`
	MessageCount      int              `json:"message_count"`
}

// Request is one client chat request after transport-level validation.
type Request struct {
	Query          string   `json:"query"`
	UserID         string   `json:"user_id"`
	OrgID          string   `json:"org_id,omitempty"`
	ProjectID      string   `json:"project_id,omitempty"`
	AppID          string   `json:"app_id,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Stream         bool     `json:"stream,omitempty"`
	GenerationMode string   `json:"generation_mode,omitempty"`
	LayerFilter    []string `json:"layer_filter,omitempty"`
	SourceFilter   []string `json:"source_filter,omitempty"`

	// BearerToken is the caller's credential, forwarded verbatim downstream.
	BearerToken string `json:"-"`
}
