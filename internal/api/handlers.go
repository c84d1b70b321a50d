package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/docuchat/console/internal/brain"
)

// handleQuery is the single client-facing chat endpoint. Validation happens
// before any work; after that the engine owns the request, in buffered or
// streaming mode depending on the client flag.
func (s *Server) handleQuery(c echo.Context) error {
	var req brain.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("malformed request body"))
	}

	req.BearerToken = bearerToken(c)

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return writeEngineError(c, &brain.ValidationError{Field: "query", Reason: "is required"})
	}
	if req.UserID == "" {
		// The auth collaborator already verified the token upstream; the
		// subject claim is only read as an identity fallback, not trusted
		// for authorization.
		req.UserID = subjectFromToken(req.BearerToken)
	}
	if req.UserID == "" {
		return writeEngineError(c, &brain.ValidationError{Field: "user_id", Reason: "is required"})
	}

	if req.Stream {
		return s.handleStreamingQuery(c, req)
	}

	result, err := s.engine.HandleBuffered(c.Request().Context(), req)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleStreamingQuery(c echo.Context, req brain.Request) error {
	sink := newSSESink(c)
	sink.Open()

	s.engine.HandleStream(c.Request().Context(), req, sink)
	return nil
}

// writeEngineError maps pre-stream pipeline errors to HTTP. Errors after the
// stream has started never reach here; those go in-band.
func writeEngineError(c echo.Context, err error) error {
	var validation *brain.ValidationError
	if errors.As(err, &validation) {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	var downstream *brain.DownstreamError
	if errors.As(err, &downstream) {
		status := downstream.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		return c.JSON(status, errorBody(downstream.Message))
	}

	var contextErr *brain.ContextError
	if errors.As(err, &contextErr) {
		log.Error().Err(err).Msg("Context loading failed")
		return c.JSON(http.StatusInternalServerError, errorBody("failed to load conversation context"))
	}

	log.Error().Err(err).Msg("Unhandled engine error")
	return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// subjectFromToken reads the sub claim without verifying the signature.
func subjectFromToken(token string) string {
	if token == "" {
		return ""
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
