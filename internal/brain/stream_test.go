package brain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/console/internal/store"
)

func ackDisabledRow() *store.AgentConfigRow {
	return &store.AgentConfigRow{
		StreamImmediateAck: boolPtr(false),
		StreamAnalysisStep: boolPtr(false),
	}
}

type sinkFrame struct {
	event   string
	payload any
}

// recordingSink captures every frame and raw chunk in write order. failOn
// makes the named event fail, simulating a client disconnect at that point.
type recordingSink struct {
	frames []sinkFrame
	raw    []byte
	failOn string
}

func (s *recordingSink) Event(event string, payload any) error {
	if s.failOn != "" && event == s.failOn {
		return errors.New("client disconnected")
	}
	s.frames = append(s.frames, sinkFrame{event: event, payload: payload})
	return nil
}

func (s *recordingSink) Raw(chunk []byte) error {
	s.raw = append(s.raw, chunk...)
	return nil
}

func (s *recordingSink) events() []string {
	names := make([]string, len(s.frames))
	for i, f := range s.frames {
		names[i] = f.event
	}
	return names
}

func TestHandleStream_AckFramesPrecedePipeline(t *testing.T) {
	body := "event: message\ndata: {\"chunk\": \"Le marché\"}\n\nevent: done\ndata: {}\n\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	gen := &fakeGenerator{response: `{"requires_search": true}`}
	engine, _ := newTestEngine(gen, srv.URL)
	sink := &recordingSink{}

	engine.HandleStream(context.Background(), Request{Query: "durée ?", UserID: "u-1", Stream: true}, sink)

	require.GreaterOrEqual(t, len(sink.frames), 2)
	assert.Equal(t, "step", sink.frames[0].event)
	assert.Equal(t, stepPayload{Step: "received"}, sink.frames[0].payload)
	assert.Equal(t, "step", sink.frames[1].event)
	assert.Equal(t, stepPayload{Step: "analyzing"}, sink.frames[1].payload)
	assert.Equal(t, body, string(sink.raw), "downstream bytes are proxied verbatim")
}

func TestHandleStream_ClientGoneBeforeFirstFrame(t *testing.T) {
	gen := &fakeGenerator{response: `{"requires_search": true}`}
	engine, contextStore := newTestEngine(gen, "http://unused")
	sink := &recordingSink{failOn: "step"}

	engine.HandleStream(context.Background(), Request{Query: "durée ?", UserID: "u-1", Stream: true}, sink)

	assert.Equal(t, 0, gen.calls, "no analysis for a client that is already gone")
	assert.Empty(t, contextStore.gotQuery.UserID, "no context load either")
}

func TestHandleStream_ConversationalEmitsMessageThenDone(t *testing.T) {
	engine, _ := newTestEngine(&fakeGenerator{response: skipSearchResponse}, "http://unused")
	sink := &recordingSink{}

	engine.HandleStream(context.Background(), Request{Query: "Bonjour", UserID: "u-1", Stream: true}, sink)

	assert.Equal(t, []string{"step", "step", "message", "done"}, sink.events())
	msg, ok := sink.frames[2].payload.(ConversationalReply)
	require.True(t, ok)
	assert.Equal(t, cannedReplies["bonjour"], msg.Reply)
	assert.Equal(t, "conv-1", msg.ConversationID)
	assert.Empty(t, sink.raw)
}

func TestHandleStream_DownstreamErrorBecomesErrorFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": "agent down"}`))
	}))
	defer srv.Close()

	engine, _ := newTestEngine(&fakeGenerator{response: `{"requires_search": true}`}, srv.URL)
	sink := &recordingSink{}

	engine.HandleStream(context.Background(), Request{Query: "durée ?", UserID: "u-1", Stream: true}, sink)

	events := sink.events()
	require.NotEmpty(t, events)
	assert.Equal(t, "error", events[len(events)-1])
	payload, ok := sink.frames[len(sink.frames)-1].payload.(errorPayload)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, payload.Status)
	assert.Equal(t, "agent down", payload.Error)
}

func TestHandleStream_ContextFailureEmitsErrorFrame(t *testing.T) {
	engine, contextStore := newTestEngine(&fakeGenerator{response: skipSearchResponse}, "http://unused")
	contextStore.row = nil
	contextStore.err = errors.New("rpc unreachable")
	sink := &recordingSink{}

	engine.HandleStream(context.Background(), Request{Query: "Bonjour", UserID: "u-1", Stream: true}, sink)

	// Acks first, then the failure arrives in-band.
	assert.Equal(t, []string{"step", "step", "error"}, sink.events())
}

func TestHandleStream_AckTogglesDisableStepFrames(t *testing.T) {
	engine, _ := newTestEngine(&fakeGenerator{response: skipSearchResponse}, "http://unused")
	engine.configStore = &fakeConfigStore{row: ackDisabledRow()}
	sink := &recordingSink{}

	engine.HandleStream(context.Background(), Request{Query: "Bonjour", UserID: "u-1", Stream: true}, sink)

	assert.Equal(t, []string{"message", "done"}, sink.events())
}

func TestHandleStream_DoneFrameCarriesAnalysis(t *testing.T) {
	engine, _ := newTestEngine(&fakeGenerator{response: skipSearchResponse}, "http://unused")
	sink := &recordingSink{}

	engine.HandleStream(context.Background(), Request{Query: "Merci", UserID: "u-1", Stream: true}, sink)

	done := sink.frames[len(sink.frames)-1]
	require.Equal(t, "done", done.event)
	payload, ok := done.payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "conv-1", payload["conversation_id"])

	data, err := json.Marshal(payload["analysis"])
	require.NoError(t, err)
	var analysis AnalysisResult
	require.NoError(t, json.Unmarshal(data, &analysis))
	assert.False(t, analysis.RequiresSearch)
}
