package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var errSinkClosed = errors.New("sse sink closed")

// sseSink implements brain.Sink over an echo response. Every frame is
// flushed immediately; after the first write failure (client disconnect)
// all further writes are no-ops.
type sseSink struct {
	c      echo.Context
	closed bool
}

func newSSESink(c echo.Context) *sseSink {
	return &sseSink{c: c}
}

// Open sets the event-stream headers and flushes them so the client sees the
// connection before any frame is produced.
func (s *sseSink) Open() {
	h := s.c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	s.c.Response().WriteHeader(http.StatusOK)
	s.c.Response().Flush()
}

// Event writes one typed frame with a JSON payload.
func (s *sseSink) Event(event string, payload any) error {
	if s.isClosed() {
		return errSinkClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	if _, err := fmt.Fprintf(s.c.Response(), "event: %s\ndata: %s\n\n", event, data); err != nil {
		s.closed = true
		return fmt.Errorf("write %s frame: %w", event, err)
	}
	s.c.Response().Flush()
	return nil
}

// Raw forwards already-framed downstream bytes verbatim.
func (s *sseSink) Raw(chunk []byte) error {
	if s.isClosed() {
		return errSinkClosed
	}

	if _, err := s.c.Response().Write(chunk); err != nil {
		s.closed = true
		return fmt.Errorf("write proxied chunk: %w", err)
	}
	s.c.Response().Flush()
	return nil
}

func (s *sseSink) isClosed() bool {
	if s.closed {
		return true
	}
	if s.c.Request().Context().Err() != nil {
		s.closed = true
		return true
	}
	return false
}
