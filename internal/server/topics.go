package server

import (
	"net/http"

	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"

	"github.com/briefops/briefer/internal/brief"
	"github.com/briefops/briefer/internal/runtime"
	"github.com/briefops/briefer/internal/store"
)

// TopicsHandler manages standing topics the scheduler refreshes.
type TopicsHandler struct {
	Store *store.Store
}

func (h *TopicsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.list)
	g.POST("", h.create)
}

func (h *TopicsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	all, err := h.Store.ListAllTopics(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	own := make([]store.Topic, 0, len(all))
	for _, t := range all {
		if t.UserID == userID {
			own = append(own, t)
		}
	}
	return c.JSON(http.StatusOK, own)
}

func (h *TopicsHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req TopicCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}
	if req.ScheduleCron == "" {
		req.ScheduleCron = "@daily"
	}
	if req.ScheduleCron != "@daily" && req.ScheduleCron != "@hourly" {
		if _, err := cronexpr.Parse(req.ScheduleCron); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid schedule_cron")
		}
	}
	depth := string(brief.ParseDepth(req.Depth))
	id, err := h.Store.CreateTopic(c.Request().Context(), userID, req.Name, depth, req.ScheduleCron)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}
