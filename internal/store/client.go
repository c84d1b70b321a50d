// Package store talks to the external Supabase-backed context/config store.
// The store owns conversations, message history, key documents, and per-app
// behavior rows; this package only reads (and, through the RPC, lazily
// creates) them.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// Config holds store connection configuration
type Config struct {
	URL    string
	APIKey string
}

// Client implements the Store interface against Supabase
type Client struct {
	client *supabase.Client

	restURL string
	headers map[string]string
}

// New creates a new store client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("store URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("store API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		client:  client,
		restURL: cfg.URL + "/rest/v1",
		headers: map[string]string{
			"apikey":        cfg.APIKey,
			"Authorization": "Bearer " + cfg.APIKey,
		},
	}, nil
}

// rpcClient builds a postgrest client for one RPC call. The error channel of
// an RPC is the client's ClientError field, which is per-client state, so a
// shared instance would race under concurrent requests.
func (c *Client) rpcClient() *postgrest.Client {
	return postgrest.NewClient(c.restURL, "", c.headers)
}

// ResolveConversationContext performs the atomic resolve-or-create
// conversation call. The RPC reuses an existing conversation when its last
// activity falls inside the idle window and starts a fresh one otherwise,
// returning recent messages, summary, key documents, and the previous turn's
// source-file ids in one round trip.
func (c *Client) ResolveConversationContext(ctx context.Context, q ContextQuery) (*ContextRow, error) {
	params := map[string]interface{}{
		"p_user_id":              q.UserID,
		"p_idle_timeout_minutes": q.IdleTimeoutMinutes,
		"p_message_limit":        q.MessageLimit,
	}
	if q.OrgID != "" {
		params["p_org_id"] = q.OrgID
	}
	if q.ProjectID != "" {
		params["p_project_id"] = q.ProjectID
	}
	if q.AppID != "" {
		params["p_app_id"] = q.AppID
	}
	if q.ConversationID != "" {
		params["p_conversation_id"] = q.ConversationID
	}

	rest := c.rpcClient()
	raw := rest.Rpc("resolve_conversation_context", "", params)
	if err := rest.ClientError; err != nil {
		return nil, fmt.Errorf("resolve_conversation_context rpc failed: %w", err)
	}
	if raw == "" {
		return nil, fmt.Errorf("resolve_conversation_context returned empty response")
	}

	var row ContextRow
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return nil, fmt.Errorf("failed to decode conversation context: %w", err)
	}
	if row.ConversationID == "" {
		return nil, fmt.Errorf("conversation context has no conversation id")
	}

	return &row, nil
}

// ActiveAgentConfig looks up the active behavior row for (agentType, appID),
// preferring an org-scoped row over the app-wide null-org row. A missing row
// is not an error: (nil, nil) means "use defaults".
func (c *Client) ActiveAgentConfig(ctx context.Context, agentType, appID, orgID string) (*AgentConfigRow, error) {
	if orgID != "" {
		row, err := c.lookupConfig(agentType, appID, orgID)
		if err != nil {
			return nil, err
		}
		if row != nil {
			return row, nil
		}
	}
	return c.lookupConfig(agentType, appID, "")
}

func (c *Client) lookupConfig(agentType, appID, orgID string) (*AgentConfigRow, error) {
	query := c.client.From("agent_configurations").
		Select("*", "", false).
		Eq("agent_type", agentType).
		Eq("app_id", appID).
		Eq("is_active", "true")

	if orgID != "" {
		query = query.Eq("organization_id", orgID)
	} else {
		query = query.Is("organization_id", "null")
	}

	var rows []AgentConfigRow
	if _, err := query.Limit(1, "").ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("failed to look up agent configuration: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
