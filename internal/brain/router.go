package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"unicode"
)

// cannedReplies maps normalized greeting/thanks keys to ready-made replies.
// Matching is exact or short-prefix, so "bonjour !" still hits "bonjour".
var cannedReplies = map[string]string{
	"bonjour":   "Bonjour ! Comment puis-je vous aider sur vos documents ?",
	"bonsoir":   "Bonsoir ! Comment puis-je vous aider sur vos documents ?",
	"salut":     "Salut ! Que puis-je faire pour vous ?",
	"hello":     "Hello! How can I help you with your documents?",
	"hi":        "Hi! How can I help you with your documents?",
	"hey":       "Hey! How can I help you?",
	"merci":     "Avec plaisir ! N'hésitez pas si vous avez d'autres questions.",
	"thanks":    "You're welcome! Let me know if you have any other questions.",
	"thank you": "You're welcome! Let me know if you have any other questions.",
	"au revoir": "Au revoir, à bientôt !",
	"bye":       "Goodbye, see you soon!",
}

const genericReply = "Je suis là pour répondre à vos questions sur vos documents. Comment puis-je vous aider ?"

// ConversationalReply is the short-circuit answer for pure salutations. No
// generation call happens, but the conversation id is always included so the
// client keeps continuity.
type ConversationalReply struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversation_id"`
}

// ReplyConversational picks a canned reply for the normalized query. The
// prefix fallback scans keys in sorted order so the pick is deterministic.
func ReplyConversational(query, conversationID string) ConversationalReply {
	q := normalizeQuery(query)

	reply := genericReply
	if r, ok := cannedReplies[q]; ok {
		reply = r
	} else {
		keys := make([]string, 0, len(cannedReplies))
		for key := range cannedReplies {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if strings.HasPrefix(q, key) {
				reply = cannedReplies[key]
				break
			}
		}
	}

	return ConversationalReply{Reply: reply, ConversationID: conversationID}
}

func normalizeQuery(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	return strings.TrimRightFunc(q, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// DelegationPayload is the single payload handed to the downstream
// retrieval+generation agent. The agent context rides along as a read-only
// preloaded block so the agent never re-fetches it.
type DelegationPayload struct {
	Query          string         `json:"query"`
	Analysis       AnalysisResult `json:"analysis"`
	UserID         string         `json:"user_id"`
	OrgID          string         `json:"org_id,omitempty"`
	ProjectID      string         `json:"project_id,omitempty"`
	AppID          string         `json:"app_id,omitempty"`
	ConversationID string         `json:"conversation_id"`
	GenerationMode string         `json:"generation_mode,omitempty"`
	LayerFilter    []string       `json:"layer_filter,omitempty"`
	SourceFilter   []string       `json:"source_filter,omitempty"`
	Stream         bool           `json:"stream"`

	PreloadedContext *AgentContext `json:"preloaded_context"`
}

// Router dispatches analyzed requests either to the conversational
// short-circuit or to the downstream agent.
type Router struct {
	agentURL string
	client   *http.Client
}

// NewRouter creates a router for the downstream agent endpoint. The HTTP
// client carries no client-level timeout so long-lived downstream streams
// are never cut off mid-answer.
func NewRouter(agentURL string, client *http.Client) *Router {
	if client == nil {
		client = &http.Client{}
	}
	return &Router{agentURL: agentURL, client: client}
}

// Delegate invokes the downstream agent with the caller's bearer credential
// forwarded. On success the raw response is returned so the coordinator can
// either proxy its body chunk-by-chunk or buffer it, depending on mode.
// Non-2xx responses become a DownstreamError carrying the agent's status and
// message.
func (r *Router) Delegate(ctx context.Context, payload DelegationPayload, bearerToken string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal delegation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.agentURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build downstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &DownstreamError{Status: http.StatusBadGateway, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &DownstreamError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	return resp, nil
}

// readErrorMessage extracts a usable message from a downstream error body,
// preferring the conventional {"error": "..."} / {"message": "..."} shapes.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}

	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &parsed) == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return strings.TrimSpace(string(data))
}
