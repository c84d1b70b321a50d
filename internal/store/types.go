package store

import "encoding/json"

// ContextQuery keys the conversation resolve-or-create call.
type ContextQuery struct {
	UserID             string
	OrgID              string
	ProjectID          string
	AppID              string
	ConversationID     string
	IdleTimeoutMinutes int
	MessageLimit       int
}

// ContextRow is the raw result of the resolve_conversation_context RPC.
// Collection fields stay json.RawMessage because the store returns them
// either as JSON values or as string-encoded JSON depending on the row's
// age; decoding happens at a single boundary in the brain package.
type ContextRow struct {
	ConversationID  string          `json:"conversation_id"`
	IsNew           bool            `json:"is_new"`
	OrgID           string          `json:"org_id"`
	AppID           string          `json:"app_id"`
	SystemPrompt    string          `json:"system_prompt"`
	PromptParams    json.RawMessage `json:"prompt_params"`
	ProjectFacts    json.RawMessage `json:"project_facts"`
	Messages        json.RawMessage `json:"messages"`
	Summary         string          `json:"summary"`
	FirstMessage    string          `json:"first_message"`
	PreviousSources json.RawMessage `json:"previous_sources"`
	KeyDocuments    json.RawMessage `json:"key_documents"`
	MessageCount    int             `json:"message_count"`
}

// AgentConfigRow is a possibly-partial behavior row from agent_configurations.
// Every field is a pointer so that an absent column is distinguishable from a
// zero value; merging over defaults happens per-field in the brain package.
type AgentConfigRow struct {
	Model                        *string  `json:"model"`
	Temperature                  *float64 `json:"temperature"`
	MaxTokens                    *int     `json:"max_tokens"`
	ContextMessageCount          *int     `json:"context_message_count"`
	IdleTimeoutMinutes           *int     `json:"idle_timeout_minutes"`
	EnableQueryRewriting         *bool    `json:"enable_query_rewriting"`
	EnableIntentDetection        *bool    `json:"enable_intent_detection"`
	EnableDocumentDetection      *bool    `json:"enable_document_detection"`
	EnableSearchConfigGeneration *bool    `json:"enable_search_config_generation"`
	SkipSearchForConversational  *bool    `json:"skip_search_for_conversational"`
	StreamImmediateAck           *bool    `json:"stream_immediate_ack"`
	StreamAnalysisStep           *bool    `json:"stream_analysis_step"`
	FallbackToKeywords           *bool    `json:"fallback_to_keywords"`
}
