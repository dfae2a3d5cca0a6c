package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"serialscope/channel"
	"serialscope/config"
	"serialscope/export"
	"serialscope/macro"
	"serialscope/serial"
	"serialscope/store"
)

// ok wraps a successful response in the {success, ...} envelope
func ok(c echo.Context, extra map[string]any) error {
	body := map[string]any{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(http.StatusOK, body)
}

// fail maps an error onto the failure envelope with an appropriate status
func fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, macro.ErrAborted):
		status = http.StatusBadGateway
	case errors.Is(err, serial.ErrInvalidConfig),
		errors.Is(err, channel.ErrInvalidEncoding):
		status = http.StatusBadRequest
	case errors.Is(err, serial.ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, channel.ErrNotConnected):
		status = http.StatusConflict
	}
	return c.JSON(status, map[string]any{"success": false, "error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": msg})
}

type channelRequest struct {
	ChannelID string             `json:"channelId"`
	Config    *config.PortConfig `json:"config"`
	Data      string             `json:"data"`
	Mode      string             `json:"mode"`
}

func (s *Server) handleListPorts(c echo.Context) error {
	ports, err := s.deps.List()
	if err != nil {
		return fail(c, err)
	}
	return ok(c, map[string]any{"ports": ports})
}

func (s *Server) handleConnect(c echo.Context) error {
	var req channelRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	var cfg config.PortConfig
	if req.Config != nil {
		cfg = *req.Config
	}
	if err := s.deps.Manager.Connect(req.ChannelID, cfg); err != nil {
		return fail(c, err)
	}
	return ok(c, map[string]any{"channelId": channel.Normalize(req.ChannelID)})
}

func (s *Server) handleDisconnect(c echo.Context) error {
	var req channelRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	s.deps.Manager.Disconnect(req.ChannelID)
	return ok(c, nil)
}

func (s *Server) handleStatus(c echo.Context) error {
	id := c.QueryParam("channelId")
	if id != "" {
		return ok(c, map[string]any{"status": s.deps.Manager.Status(id)})
	}
	return ok(c, map[string]any{"channels": s.deps.Manager.AllStatuses()})
}

func (s *Server) handleClear(c echo.Context) error {
	var req channelRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	s.deps.Manager.ClearBuffer(req.ChannelID)
	return ok(c, nil)
}

type exportRequest struct {
	ChannelID string `json:"channelId"`
	Format    string `json:"format"`
	StartTime *int64 `json:"startTime"`
	EndTime   *int64 `json:"endTime"`
	Filter    string `json:"filter"`
}

func (s *Server) handleExport(c echo.Context) error {
	var req exportRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	entries := s.deps.Manager.Buffer(req.ChannelID, 0, 0)
	data, err := export.Export(entries, export.Options{
		Format:    req.Format,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Filter:    req.Filter,
	})
	if err != nil {
		return badRequest(c, err.Error())
	}

	filename := export.Filename(req.Format, time.Now())
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, export.ContentType(req.Format), data)
}

func (s *Server) handleListMacros(c echo.Context) error {
	return ok(c, map[string]any{"macros": s.deps.Macros.List()})
}

func (s *Server) handleCreateMacro(c echo.Context) error {
	var m store.Macro
	if err := c.Bind(&m); err != nil {
		return badRequest(c, "invalid request body")
	}
	created, err := s.deps.Macros.Create(m)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, map[string]any{"macro": created})
}

func (s *Server) handleGetMacro(c echo.Context) error {
	m, err := s.deps.Macros.Get(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, map[string]any{"macro": m})
}

func (s *Server) handleUpdateMacro(c echo.Context) error {
	var m store.Macro
	if err := c.Bind(&m); err != nil {
		return badRequest(c, "invalid request body")
	}
	updated, err := s.deps.Macros.Update(c.Param("id"), m)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, map[string]any{"macro": updated})
}

func (s *Server) handleDeleteMacro(c echo.Context) error {
	if err := s.deps.Macros.Delete(c.Param("id")); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

type runMacroRequest struct {
	ChannelID string            `json:"channelId"`
	Params    map[string]string `json:"params"`
}

func (s *Server) handleRunMacro(c echo.Context) error {
	var req runMacroRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	id := channel.Normalize(req.ChannelID)
	err := s.deps.Executor.Run(c.Request().Context(), c.Param("id"), id, req.Params)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleListProfiles(c echo.Context) error {
	return ok(c, map[string]any{"profiles": s.deps.Profiles.List()})
}

func (s *Server) handleCreateProfile(c echo.Context) error {
	var p store.Profile
	if err := c.Bind(&p); err != nil {
		return badRequest(c, "invalid request body")
	}
	created, err := s.deps.Profiles.Create(p)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, map[string]any{"profile": created})
}

func (s *Server) handleGetProfile(c echo.Context) error {
	p, err := s.deps.Profiles.Get(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, map[string]any{"profile": p})
}

func (s *Server) handleUpdateProfile(c echo.Context) error {
	var p store.Profile
	if err := c.Bind(&p); err != nil {
		return badRequest(c, "invalid request body")
	}
	updated, err := s.deps.Profiles.Update(c.Param("id"), p)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, map[string]any{"profile": updated})
}

func (s *Server) handleDeleteProfile(c echo.Context) error {
	if err := s.deps.Profiles.Delete(c.Param("id")); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

func (s *Server) handleListPlugins(c echo.Context) error {
	return ok(c, map[string]any{"plugins": s.deps.Registry.List()})
}

func (s *Server) handleShutdown(c echo.Context) error {
	s.logger.Info("Shutdown requested over HTTP")
	if s.deps.Shutdown != nil {
		// Defer the actual shutdown so the response gets out first
		go s.deps.Shutdown()
	}
	return ok(c, map[string]any{"message": "shutting down"})
}
