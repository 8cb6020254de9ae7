package server

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/briefops/briefer/internal/brief"
	"github.com/briefops/briefer/internal/index"
	"github.com/briefops/briefer/internal/runtime"
	"github.com/briefops/briefer/internal/store"
)

// Runner drives one research run to a brief. *brief.Engine satisfies
// it; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, state *brief.PipelineState) brief.FinalBrief
}

type BriefsHandler struct {
	Store         *store.Store
	Index         *index.Index
	Engine        Runner
	HistoryWindow int
	Logger        *log.Logger
}

func (h *BriefsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("", h.generate)
	g.GET("/search", h.search)
	g.GET("/:id", h.get)
}

func (h *BriefsHandler) generate(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req GenerateBriefRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic required")
	}
	depth := brief.ParseDepth(req.Depth)
	ctx := c.Request().Context()

	window := h.HistoryWindow
	if window <= 0 {
		window = 3
	}
	var history []brief.FinalBrief
	if req.IsFollowUp {
		var err error
		history, err = h.Store.GetRecentBriefs(ctx, userID, window)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	state := brief.NewPipelineState(req.Topic, userID, depth, req.IsFollowUp, req.AdditionalContext, history)
	result := h.Engine.Run(ctx, state)

	id, err := h.Store.SaveBrief(ctx, userID, string(depth), result)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Store.SaveConversation(ctx, userID, req.Topic, req.IsFollowUp, id); err != nil {
		h.Logger.Printf("save conversation for brief %s: %v", id, err)
	}
	if h.Index != nil {
		if err := h.Index.IndexBrief(id, userID, result); err != nil {
			h.Logger.Printf("index brief %s: %v", id, err)
		}
	}
	return c.JSON(http.StatusOK, GenerateBriefResponse{ID: id, Brief: result})
}

func (h *BriefsHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	rec, err := h.Store.GetBrief(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "brief not found")
	}
	if rec.UserID != userID {
		return echo.NewHTTPError(http.StatusNotFound, "brief not found")
	}
	return c.JSON(http.StatusOK, rec.Brief)
}

func (h *BriefsHandler) search(c echo.Context) error {
	if h.Index == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "index disabled")
	}
	userID := c.Get("user_id").(string)
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	k := 10
	if raw := c.QueryParam("k"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			k = n
		}
	}
	hits, err := h.Index.Search(q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	own := make([]index.Hit, 0, len(hits))
	for _, hit := range hits {
		if hit.UserID == userID {
			own = append(own, hit)
		}
	}
	return c.JSON(http.StatusOK, own)
}
