package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/briefops/briefer/config"
	"github.com/briefops/briefer/internal/brief"
	"github.com/briefops/briefer/internal/fetch"
	"github.com/briefops/briefer/internal/index"
	"github.com/briefops/briefer/internal/llm"
	"github.com/briefops/briefer/internal/runtime"
	"github.com/briefops/briefer/internal/search"
	"github.com/briefops/briefer/internal/store"
	"github.com/briefops/briefer/internal/telemetry"
)

// Run wires the HTTP API, the research engine and the scheduler, then
// serves until the listener fails.
func Run(cfg *config.Config, addr string) error {
	e := newEcho()

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return err
	}
	dsn := cfg.Storage.Postgres.DSN()
	if err := store.Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st, err := store.New(ctx, dsn)
	if err != nil {
		return err
	}

	var ix *index.Index
	if cfg.Index.Enabled {
		ix, err = index.New(cfg.Index.Path)
		if err != nil {
			return err
		}
	}

	tele := telemetry.New(cfg.Telemetry)
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	invoker := llm.NewInvoker(provider, cfg.LLM.Routing)
	searcher, err := search.NewSearcher(cfg.Search)
	if err != nil {
		return err
	}
	var upgrader brief.Upgrader
	if cfg.Fetch.Enabled {
		upgrader = fetch.Fetcher{Timeout: cfg.Fetch.Timeout, MaxChars: cfg.Fetch.MaxChars}
	}
	engine := brief.NewEngine(cfg, invoker, searcher, upgrader, tele)

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	httpLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	api := e.Group("/api")
	(&AuthHandler{Store: st, Secret: secret}).Register(api.Group("/auth"))
	(&BriefsHandler{
		Store:         st,
		Index:         ix,
		Engine:        engine,
		HistoryWindow: cfg.Pipeline.HistoryWindow,
		Logger:        httpLogger,
	}).Register(api.Group("/briefs"), secret)
	(&UsersHandler{Store: st}).Register(api.Group("/me"), secret)
	(&TopicsHandler{Store: st}).Register(api.Group("/topics"), secret)

	if cfg.Scheduler.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		sched := &Scheduler{
			Store:        st,
			Engine:       engine,
			Index:        ix,
			Rdb:          rdb,
			Stop:         make(chan struct{}),
			TickInterval: cfg.Scheduler.TickInterval,
			LockTTL:      cfg.Scheduler.LockTTL,
		}
		sched.Start()
	}

	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// newEcho builds the shared echo instance with recovery, CORS and the
// unified JSON error handler.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))
	return e
}
