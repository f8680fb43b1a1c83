package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/command"
	"atlvs-cli/internal/format"
	"atlvs-cli/internal/logging"
	"atlvs-cli/internal/model"
	"atlvs-cli/internal/registry"
	"atlvs-cli/internal/search"
	"atlvs-cli/internal/view"

	"github.com/labstack/echo/v4"
)

const maxBody = 1 << 20

type tabResponse struct {
	Binding binding.Binding  `json:"binding"`
	Data    []model.DataItem `json:"data"`
}

type itemResponse struct {
	model.DataItem
	DescriptionHTML string `json:"description_html,omitempty"`
}

func (s *Server) handleModules(c echo.Context) error {
	mods := s.eng.Registry().Modules()
	if mods == nil {
		mods = []registry.Module{}
	}
	return c.JSON(http.StatusOK, mods)
}

// bind resolves the tab in the path. Repeated ?filter=key=value parameters
// narrow the query.
func (s *Server) bind(c echo.Context) (binding.Binding, error) {
	filters, err := binding.ParseFilters(c.QueryParams()["filter"])
	if err != nil {
		return binding.Binding{}, &command.ValidationError{Field: "filter", Reason: err.Error()}
	}
	return s.eng.Bind(c.Param("ws"), c.Param("module"), c.Param("tab"), filters)
}

func (s *Server) handleTab(c echo.Context) error {
	b, err := s.bind(c)
	if err != nil {
		return err
	}
	items, err := s.eng.List(c.Request().Context(), actorOf(c), b)
	if err != nil {
		return err
	}
	items = search.Filter(items, c.QueryParam("q"))
	if items == nil {
		items = []model.DataItem{}
	}
	return c.JSON(http.StatusOK, tabResponse{Binding: b, Data: items})
}

func (s *Server) handleGet(c echo.Context) error {
	b, err := s.bind(c)
	if err != nil {
		return err
	}
	it, err := s.eng.Get(c.Request().Context(), actorOf(c), b, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, itemResponse{DataItem: it, DescriptionHTML: renderMarkdownHTML(it.Description)})
}

func readPatch(c echo.Context) (model.Patch, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBody))
	if err != nil {
		return nil, err
	}
	p, err := model.DecodePatch(body)
	if err != nil {
		return nil, &command.ValidationError{Field: "body", Reason: err.Error()}
	}
	return p, nil
}

func (s *Server) handleCreate(c echo.Context) error {
	b, err := s.bind(c)
	if err != nil {
		return err
	}
	patch, err := readPatch(c)
	if err != nil {
		return err
	}
	// The path names the workspace; a body may repeat it but not contradict it.
	if _, ok := patch["workspace_id"]; !ok {
		patch["workspace_id"] = b.Handle.Workspace
	}
	it, err := s.eng.Dispatcher(actorOf(c)).Create(c.Request().Context(), b.Handle, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, it)
}

func (s *Server) handleUpdate(c echo.Context) error {
	b, err := s.bind(c)
	if err != nil {
		return err
	}
	patch, err := readPatch(c)
	if err != nil {
		return err
	}
	it, err := s.eng.Dispatcher(actorOf(c)).Update(c.Request().Context(), b.Handle, c.Param("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, it)
}

func (s *Server) handleDelete(c echo.Context) error {
	b, err := s.bind(c)
	if err != nil {
		return err
	}
	if err := s.eng.Dispatcher(actorOf(c)).Delete(c.Request().Context(), b.Handle, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleSearch runs ?q= across the workspace. Queries under two runes find nothing.
func (s *Server) handleSearch(c echo.Context) error {
	ws := c.Param("ws")
	limit := 0
	if l := strings.TrimSpace(c.QueryParam("limit")); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return &command.ValidationError{Field: "limit", Reason: "must be a positive integer"}
		}
		limit = n
	}
	hits, err := s.eng.Search(c.Request().Context(), actorOf(c), ws, c.QueryParam("q"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hits)
}

func (s *Server) handleRender(c echo.Context) error {
	b, err := s.bind(c)
	if err != nil {
		return err
	}
	width := 100
	if w := strings.TrimSpace(c.QueryParam("width")); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil || n <= 0 {
			return &command.ValidationError{Field: "width", Reason: "must be a positive integer"}
		}
		width = n
	}
	items, err := s.eng.List(c.Request().Context(), actorOf(c), b)
	if err != nil {
		return err
	}
	out := s.eng.Render(b, c.QueryParam("view"), search.Filter(items, c.QueryParam("q")), nil, view.Options{
		Width: width,
		Theme: "notty",
	})
	c.Response().Header().Set("X-Atlvs-View", string(out.View))
	return c.String(http.StatusOK, out.Text+"\n")
}

// handleError writes every failure as {"error": {kind, message, field}}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, kind := http.StatusInternalServerError, string(command.KindInternal)
	msg := err.Error()

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
		kind = strings.ToLower(strings.ReplaceAll(http.StatusText(he.Code), " ", "_"))
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	case errors.Is(err, binding.ErrNoWorkspace):
		status, kind = http.StatusBadRequest, "bad_request"
	default:
		switch k := command.KindOf(err); k {
		case command.KindValidation:
			status, kind = http.StatusUnprocessableEntity, string(k)
		case command.KindAuthorization:
			status, kind = http.StatusForbidden, string(k)
		case command.KindNotFound:
			status, kind = http.StatusNotFound, string(k)
		}
	}
	if status >= 500 {
		logging.From(c.Request().Context()).Error("request failed", "err", err)
		msg = "internal error"
	}

	body := format.ErrorBody{Error: format.ErrorInfo{Kind: kind, Message: msg, Field: command.FieldOf(err)}}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}
