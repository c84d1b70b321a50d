package brain

import (
	"context"
	"encoding/json"

	"github.com/docuchat/console/internal/store"
)

// ContextStore is the resolve-or-create conversation call of the external store.
type ContextStore interface {
	ResolveConversationContext(ctx context.Context, q store.ContextQuery) (*store.ContextRow, error)
}

// LoadContext resolves (or creates) the conversation and gathers everything
// the analyzer and router need. Unlike config resolution, failure here is
// fatal: the request cannot be routed without context.
func LoadContext(ctx context.Context, cs ContextStore, req Request, cfg BrainConfig) (*AgentContext, error) {
	row, err := cs.ResolveConversationContext(ctx, store.ContextQuery{
		UserID:             req.UserID,
		OrgID:              req.OrgID,
		ProjectID:          req.ProjectID,
		AppID:              req.AppID,
		ConversationID:     req.ConversationID,
		IdleTimeoutMinutes: cfg.IdleTimeoutMinutes,
		MessageLimit:       cfg.ContextMessageCount,
	})
	if err != nil {
		return nil, &ContextError{Err: err}
	}

	agentCtx := &AgentContext{
		ConversationID:    row.ConversationID,
		OrgID:             firstNonEmpty(row.OrgID, req.OrgID),
		AppID:             firstNonEmpty(row.AppID, req.AppID),
		SystemPrompt:      row.SystemPrompt,
		PromptParams:      decodeObject(row.PromptParams),
		ProjectFacts:      decodeStringList(row.ProjectFacts),
		Messages:          decodeMessages(row.Messages),
		Summary:           row.Summary,
		FirstMessage:      row.FirstMessage,
		PreviousSourceIDs: decodeStringList(row.PreviousSources),
		KeyDocuments:      decodeKeyDocuments(row.KeyDocuments),
		MessageCount:      row.MessageCount,
	}

	return agentCtx, nil
}

// The store serializes collection columns either as JSON values or as
// string-encoded JSON depending on the row's origin. The decode* helpers are
// the single defensive boundary for that ambiguity: downstream code only ever
// sees typed values, and a malformed field degrades to an empty collection
// instead of failing the request.

func decodeStringList(raw json.RawMessage) []string {
	var out []string
	if unwrapJSON(raw, &out) {
		return out
	}
	return []string{}
}

func decodeMessages(raw json.RawMessage) []ContextMessage {
	var out []ContextMessage
	if unwrapJSON(raw, &out) {
		return out
	}
	return []ContextMessage{}
}

func decodeKeyDocuments(raw json.RawMessage) []KeyDocument {
	var out []KeyDocument
	if unwrapJSON(raw, &out) {
		return out
	}
	return []KeyDocument{}
}

func decodeObject(raw json.RawMessage) map[string]any {
	var out map[string]any
	if unwrapJSON(raw, &out) && out != nil {
		return out
	}
	return map[string]any{}
}

// unwrapJSON decodes raw into target, unwrapping one level of
// string-encoding if present. Returns false on any failure.
func unwrapJSON(raw json.RawMessage, target interface{}) bool {
	if len(raw) == 0 {
		return false
	}
	if json.Unmarshal(raw, target) == nil {
		return true
	}
	var encoded string
	if json.Unmarshal(raw, &encoded) != nil {
		return false
	}
	return json.Unmarshal([]byte(encoded), target) == nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
