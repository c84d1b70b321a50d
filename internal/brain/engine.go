package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// Engine wires the pipeline together: config resolution, context loading,
// analysis, the safety gate, and routing. It holds no per-request state, so
// any number of requests may run through it concurrently.
type Engine struct {
	configStore  ConfigStore
	contextStore ContextStore
	analyzer     *Analyzer
	router       *Router
}

// NewEngine creates the query-orchestration engine.
func NewEngine(configStore ConfigStore, contextStore ContextStore, analyzer *Analyzer, router *Router) *Engine {
	return &Engine{
		configStore:  configStore,
		contextStore: contextStore,
		analyzer:     analyzer,
		router:       router,
	}
}

// pipelineResult carries the sequential pipeline's output into routing.
type pipelineResult struct {
	cfg      BrainConfig
	agentCtx *AgentContext
	analysis AnalysisResult
}

// runPipeline executes config → context → analysis → safety gate. Config
// resolution cannot fail (defaults), analysis cannot fail (fallback); only
// context loading can, and that error is fatal by design.
func (e *Engine) runPipeline(ctx context.Context, req Request) (*pipelineResult, error) {
	cfg := ResolveConfig(ctx, e.configStore, req.AppID, req.OrgID)
	return e.finishPipeline(ctx, req, cfg)
}

// finishPipeline runs the stages after config resolution. Split out because
// streaming mode resolves config early to learn the ack toggles.
func (e *Engine) finishPipeline(ctx context.Context, req Request, cfg BrainConfig) (*pipelineResult, error) {
	agentCtx, err := LoadContext(ctx, e.contextStore, req, cfg)
	if err != nil {
		return nil, err
	}

	analysis := e.analyzer.Analyze(ctx, req.Query, agentCtx, cfg)
	analysis.RequiresSearch = SafeRequiresSearch(req.Query, analysis.RequiresSearch)

	log.Debug().
		Str("conversation_id", agentCtx.ConversationID).
		Str("intent", string(analysis.Intent)).
		Bool("requires_search", analysis.RequiresSearch).
		Str("rewritten_query", analysis.RewrittenQuery).
		Msg("Query analyzed")

	return &pipelineResult{cfg: cfg, agentCtx: agentCtx, analysis: analysis}, nil
}

// isConversational reports whether the request short-circuits to a canned
// reply instead of delegating downstream.
func (p *pipelineResult) isConversational() bool {
	return p.cfg.SkipSearchForConversational && !p.analysis.RequiresSearch
}

// HandleBuffered runs the whole pipeline and returns one JSON-ready response
// object. For delegated requests the downstream agent's full JSON is awaited
// and the analysis is spliced in as metadata.
func (e *Engine) HandleBuffered(ctx context.Context, req Request) (map[string]any, error) {
	p, err := e.runPipeline(ctx, req)
	if err != nil {
		return nil, err
	}

	if p.isConversational() {
		reply := ReplyConversational(req.Query, p.agentCtx.ConversationID)
		return map[string]any{
			"reply":           reply.Reply,
			"conversation_id": reply.ConversationID,
			"analysis":        p.analysis,
		}, nil
	}

	resp, err := e.router.Delegate(ctx, e.delegationPayload(req, p, false), req.BearerToken)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DownstreamError{Status: resp.StatusCode, Message: fmt.Sprintf("reading downstream body: %v", err)}
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &DownstreamError{Status: resp.StatusCode, Message: "downstream returned invalid JSON"}
	}

	result["analysis"] = p.analysis
	if _, ok := result["conversation_id"]; !ok {
		result["conversation_id"] = p.agentCtx.ConversationID
	}
	return result, nil
}

func (e *Engine) delegationPayload(req Request, p *pipelineResult, stream bool) DelegationPayload {
	return DelegationPayload{
		Query:            req.Query,
		Analysis:         p.analysis,
		UserID:           req.UserID,
		OrgID:            req.OrgID,
		ProjectID:        req.ProjectID,
		AppID:            req.AppID,
		ConversationID:   p.agentCtx.ConversationID,
		GenerationMode:   req.GenerationMode,
		LayerFilter:      req.LayerFilter,
		SourceFilter:     req.SourceFilter,
		Stream:           stream,
		PreloadedContext: p.agentCtx,
	}
}
