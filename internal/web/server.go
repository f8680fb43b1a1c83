// Package web serves the engine over HTTP: a JSON API for records, a plain
// text rendering endpoint, and a datastar SSE stream per tab.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"atlvs-cli/internal/engine"
	"atlvs-cli/internal/logging"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Config struct {
	// Secret signs bearer tokens. Empty means dev mode.
	Secret []byte
	// DevActor acts for requests without an actor header in dev mode.
	DevActor string
	Log      *slog.Logger
	// KeepAlive is the SSE heartbeat period.
	KeepAlive time.Duration
}

type Server struct {
	eng  *engine.Engine
	cfg  Config
	log  *slog.Logger
	echo *echo.Echo
}

func New(eng *engine.Engine, cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 25 * time.Second
	}
	s := &Server{eng: eng, cfg: cfg, log: cfg.Log}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.requestLog)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api", s.authenticate)
	api.GET("/modules", s.handleModules)
	api.GET("/w/:ws/search", s.handleSearch)

	tab := api.Group("/w/:ws/:module/:tab")
	tab.GET("", s.handleTab)
	tab.GET("/render", s.handleRender)
	tab.GET("/stream", s.handleStream)
	tab.POST("/items", s.handleCreate)
	tab.GET("/items/:id", s.handleGet)
	tab.PATCH("/items/:id", s.handleUpdate)
	tab.DELETE("/items/:id", s.handleDelete)

	s.echo = e
	return s
}

func (s *Server) Handler() http.Handler { return s.echo }

// Serve listens on addr until ctx is done, then drains open requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web server listening", "addr", addr, "auth", s.authMode())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		// Open SSE streams never go idle.
		return srv.Close()
	}
	return err
}

func (s *Server) authMode() string {
	if len(s.cfg.Secret) == 0 {
		return "dev"
	}
	return "jwt"
}

func (s *Server) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		begin := time.Now()
		req := c.Request()
		log := s.log.With("method", req.Method, "path", req.URL.Path)
		c.SetRequest(req.WithContext(logging.With(req.Context(), log)))
		err := next(c)
		log.Debug("http request",
			"status", c.Response().Status,
			"elapsed", time.Since(begin),
			"err", err,
		)
		return err
	}
}
