package brain

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
)

// Sink is the single output channel of a streaming request. The coordinator
// owns it: exactly one producer writes at a time, in strict sequence —
// synthetic events first, then the proxied downstream bytes. Implementations
// must treat writes after client disconnect as a no-op error, never a panic.
type Sink interface {
	// Event writes one typed frame (step, message, done, error) with a JSON
	// payload.
	Event(event string, payload any) error
	// Raw forwards a chunk of the downstream byte stream verbatim.
	Raw(chunk []byte) error
}

// Step payloads for the synthetic progress frames.
type stepPayload struct {
	Step string `json:"step"`
}

type errorPayload struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

// HandleStream drives a streaming request. The sink is open before any work
// happens: when enabled, step:received and step:analyzing are written before
// context loading or analysis has even begun, so the client observes activity
// with near-zero latency. Errors after this point can only be communicated
// in-band; bytes already sent are never retracted.
func (e *Engine) HandleStream(ctx context.Context, req Request, sink Sink) {
	cfg := ResolveConfig(ctx, e.configStore, req.AppID, req.OrgID)

	if cfg.StreamImmediateAck {
		if err := sink.Event("step", stepPayload{Step: "received"}); err != nil {
			log.Debug().Err(err).Msg("Client gone before first frame")
			return
		}
	}
	if cfg.StreamAnalysisStep {
		if err := sink.Event("step", stepPayload{Step: "analyzing"}); err != nil {
			return
		}
	}

	p, err := e.finishPipeline(ctx, req, cfg)
	if err != nil {
		e.emitError(sink, err)
		return
	}

	if p.isConversational() {
		reply := ReplyConversational(req.Query, p.agentCtx.ConversationID)
		if err := sink.Event("message", reply); err != nil {
			return
		}
		sink.Event("done", map[string]any{
			"conversation_id": p.agentCtx.ConversationID,
			"analysis":        p.analysis,
		})
		return
	}

	resp, err := e.router.Delegate(ctx, e.delegationPayload(req, p, true), req.BearerToken)
	if err != nil {
		e.emitError(sink, err)
		return
	}
	defer resp.Body.Close()

	// Forward the downstream stream chunk-by-chunk, in order, without
	// re-buffering. When it closes, this stream closes with it.
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if writeErr := sink.Raw(buf[:n]); writeErr != nil {
				// Client went away; stop pulling from downstream.
				log.Debug().Err(writeErr).Msg("Stream write failed, aborting proxy")
				return
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				log.Warn().Err(readErr).Msg("Downstream stream ended abnormally")
				e.emitError(sink, &DownstreamError{Status: resp.StatusCode, Message: readErr.Error()})
			}
			return
		}
	}
}

// emitError writes the single in-band error frame. Best effort: if the sink
// is already gone there is nobody left to tell.
func (e *Engine) emitError(sink Sink, err error) {
	payload := errorPayload{Error: err.Error()}

	var downstream *DownstreamError
	if errors.As(err, &downstream) {
		payload.Status = downstream.Status
		payload.Error = downstream.Message
	}

	log.Error().Err(err).Msg("Streaming request failed")
	if sinkErr := sink.Event("error", payload); sinkErr != nil {
		log.Debug().Err(sinkErr).Msg("Could not deliver error frame")
	}
}
