package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/briefops/briefer/internal/runtime"
	"github.com/briefops/briefer/internal/store"
)

type UsersHandler struct {
	Store *store.Store
}

func (h *UsersHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("/history", h.history)
	g.GET("/stats", h.stats)
	g.GET("/conversations", h.conversations)
	g.DELETE("/briefs", h.deleteBriefs)
}

// history returns the user's recent briefs, oldest first.
func (h *UsersHandler) history(c echo.Context) error {
	userID := c.Get("user_id").(string)
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	briefs, err := h.Store.GetRecentBriefs(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, briefs)
}

func (h *UsersHandler) stats(c echo.Context) error {
	userID := c.Get("user_id").(string)
	stats, err := h.Store.GetUserStats(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *UsersHandler) conversations(c echo.Context) error {
	userID := c.Get("user_id").(string)
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	convs, err := h.Store.ListConversations(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, convs)
}

func (h *UsersHandler) deleteBriefs(c echo.Context) error {
	userID := c.Get("user_id").(string)
	n, err := h.Store.DeleteUserBriefs(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int64{"deleted": n})
}
