package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediconsult/internal/api/auth"
	"github.com/mediconsult/internal/registry"
)

func (s *Server) mapRegistryError(err error) error {
	switch {
	case errors.Is(err, registry.ErrConversationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	case errors.Is(err, registry.ErrNotAuthorized):
		return echo.NewHTTPError(http.StatusForbidden, "not authorized for this conversation")
	default:
		s.logger.Error().Err(err).Msg("conversation request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) listConversations(c echo.Context) error {
	conversations, err := s.registry.List(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return s.mapRegistryError(err)
	}
	return c.JSON(http.StatusOK, conversations)
}

func (s *Server) getConversation(c echo.Context) error {
	conv, err := s.registry.Get(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return s.mapRegistryError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) listMessages(c echo.Context) error {
	ctx := c.Request().Context()

	// Ownership check before reading the log.
	if _, err := s.registry.Get(ctx, auth.UserID(c), c.Param("id")); err != nil {
		return s.mapRegistryError(err)
	}

	messages, err := s.pipeline.List(ctx, c.Param("id"))
	if err != nil {
		return s.mapRegistryError(err)
	}
	return c.JSON(http.StatusOK, messages)
}

func (s *Server) closeConversation(c echo.Context) error {
	changed, err := s.registry.Close(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return s.mapRegistryError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"closed": changed})
}

func (s *Server) deleteConversation(c echo.Context) error {
	if err := s.registry.Delete(c.Request().Context(), auth.UserID(c), c.Param("id")); err != nil {
		return s.mapRegistryError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
