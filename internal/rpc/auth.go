package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"pps/internal/resilience"
	"pps/internal/trace"
)

// envelope is the shared request shape every endpoint starts from (spec.md
// §4.8: "an identical request envelope {token, ...arguments}").
type envelope struct {
	Token string `json:"token"`
}

// withAuth reads the request body once, checks the shared-secret token
// before any layer code runs, then re-attaches the body so handler can bind
// its own richer request struct. Every call — authenticated or not — logs a
// trace event (spec.md §4.8 "every endpoint logs a trace event").
func (s *Server) withAuth(eventType string, handler echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_input", "request body could not be read")
		}
		var env envelope
		_ = json.Unmarshal(body, &env)

		if s.entity == nil || !s.entity.VerifyToken(env.Token) {
			s.logTrace(c, eventType, start, nil)
			return jsonError(c, http.StatusUnauthorized, string(resilience.KindAuthFailure), "missing or invalid entity token")
		}

		c.Request().Body = io.NopCloser(bytes.NewReader(body))
		err = handler(c)
		s.logTrace(c, eventType, start, err)
		return err
	}
}

func (s *Server) logTrace(c echo.Context, eventType string, start time.Time, err error) {
	if s.traces == nil {
		return
	}
	_ = s.traces.Log(c.Request().Context(), trace.Event{
		SessionID: c.Response().Header().Get(echo.HeaderXRequestID),
		EventType: eventType,
		Duration:  time.Since(start),
		Err:       err,
	})
}
