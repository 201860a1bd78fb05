package httpserver

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Createyouracccount/last-mike/internal/agent"
)

type createSessionRequest struct {
	ID string `json:"id"`
}

type turnRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) createSession(c echo.Context) error {
	var req createSessionRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
	}
	res, err := s.service.Start(c.Request().Context(), strings.TrimSpace(req.ID))
	if err != nil {
		return s.internalError(c, "start", err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) getSession(c echo.Context) error {
	sess, err := s.service.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, agent.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	}
	if err != nil {
		return s.internalError(c, "get", err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) postTurn(c echo.Context) error {
	var req turnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	res, err := s.service.Turn(c.Request().Context(), c.Param("id"), req.Text)
	if errors.Is(err, agent.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	}
	if err != nil {
		return s.internalError(c, "turn", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) deleteSession(c echo.Context) error {
	err := s.service.End(c.Request().Context(), c.Param("id"))
	if errors.Is(err, agent.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	}
	if err != nil {
		return s.internalError(c, "end", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// internalError logs err and answers with the hotline fallback, never the raw error.
func (s *Server) internalError(c echo.Context, op string, err error) error {
	log.Printf("[%s] %s failed: %v", c.Param("id"), op, err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal", Message: agent.MsgTemporaryProblem})
}
