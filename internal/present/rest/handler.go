package rest

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ngonendi/edgestore"
	"github.com/ngonendi/edgestore/internal/domain"
	"github.com/ngonendi/edgestore/internal/present/rest/middleware"
	"github.com/ngonendi/edgestore/internal/present/rest/presenter"
	"github.com/ngonendi/edgestore/internal/usecase"
)

// RealtimeStreamer feeds invalidation events to the realtime endpoint.
// Implementations return when ctx ends and must never assume the channels
// get closed.
type RealtimeStreamer interface {
	Realtime(ctx context.Context, input chan []string, output chan edgestore.Event)
}

type Handler struct {
	developer *usecase.DeveloperUsecase
	user      *usecase.UserUsecase
	signal    RealtimeStreamer
}

func NewHandler(
	developer *usecase.DeveloperUsecase,
	user *usecase.UserUsecase,
	signal RealtimeStreamer,
) *Handler {
	return &Handler{
		developer: developer,
		user:      user,
		signal:    signal,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, auth *middleware.AuthMiddleware) {
	api := e.Group("/api/v1")
	api.GET("/developers", h.handleListDevelopers)
	api.GET("/developers/:id", h.handleGetDeveloper)
	api.POST("/developers", h.handleCreateDeveloper, auth.RequireAdmin)
	api.PUT("/developers/:id", h.handleUpdateDeveloper, auth.RequireAdmin)
	api.DELETE("/developers/:id", h.handleDeleteDeveloper, auth.RequireAdmin)
	api.POST("/developers/:id/status", h.handleSetStatus, auth.RequireAdmin)
	api.POST("/cache/reset", h.handleResetCache, auth.RequireAdmin)
	api.POST("/users", h.handleCreateUser, auth.RequireAdmin)
	api.GET("/users/:id", h.handleGetUser)
	api.DELETE("/users/:id", h.handleDeleteUser, auth.RequireAdmin)
	e.GET("/realtime", h.handleRealtime)
}

// developerParam unescapes the :id segment; emails arrive percent-encoded.
func developerParam(c echo.Context) (string, error) {
	id, err := url.QueryUnescape(c.Param("id"))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (h *Handler) handleListDevelopers(c echo.Context) error {
	ctx := c.Request().Context()

	var ids []string
	if raw := c.QueryParam("ids"); raw != "" {
		ids = strings.Split(raw, ",")
	}

	result, err := h.developer.List(ctx, ids)
	if err != nil {
		return presenter.FromError(c, err)
	}
	return presenter.OK(c, result)
}

func (h *Handler) handleGetDeveloper(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := developerParam(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid id")
	}

	dev, err := h.developer.Get(ctx, id)
	if err != nil {
		return presenter.FromError(c, err)
	}
	return presenter.OK(c, dev)
}

type developerRequest struct {
	Email      string            `json:"email"`
	FirstName  string            `json:"firstName"`
	LastName   string            `json:"lastName"`
	UserName   string            `json:"userName"`
	Status     edgestore.Status  `json:"status"`
	Attributes map[string]string `json:"attributes"`
	OwnerID    *int64            `json:"ownerId"`
}

func (h *Handler) handleCreateDeveloper(c echo.Context) error {
	ctx := c.Request().Context()

	var req developerRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.Email == "" {
		return presenter.BadRequestMessage(c, "email is required")
	}

	dev := &edgestore.Developer{
		Email:      edgestore.NormalizeEmail(req.Email),
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		UserName:   req.UserName,
		Status:     req.Status,
		Attributes: req.Attributes,
		OwnerID:    req.OwnerID,
	}

	if err := h.developer.Create(ctx, dev); err != nil {
		return presenter.FromError(c, err)
	}
	return presenter.OK(c, dev)
}

func (h *Handler) handleUpdateDeveloper(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := developerParam(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid id")
	}

	var req developerRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	dev, err := h.developer.Get(ctx, id)
	if err != nil {
		return presenter.FromError(c, err)
	}

	if req.Email != "" {
		dev.SetEmail(req.Email)
	}
	if req.FirstName != "" {
		dev.FirstName = req.FirstName
	}
	if req.LastName != "" {
		dev.LastName = req.LastName
	}
	if req.UserName != "" {
		dev.UserName = req.UserName
	}
	if req.Status != "" {
		dev.Status = req.Status
	}
	if req.Attributes != nil {
		dev.Attributes = req.Attributes
	}
	if req.OwnerID != nil {
		dev.OwnerID = req.OwnerID
	}

	if err := h.developer.Save(ctx, dev); err != nil {
		return presenter.FromError(c, err)
	}
	return presenter.OK(c, dev)
}

func (h *Handler) handleDeleteDeveloper(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := developerParam(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid id")
	}

	if err := h.developer.Delete(ctx, id); err != nil {
		return presenter.FromError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type statusRequest struct {
	Status edgestore.Status `json:"status"`
}

func (h *Handler) handleSetStatus(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := developerParam(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid id")
	}

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.Status != edgestore.StatusActive && req.Status != edgestore.StatusInactive {
		return presenter.BadRequestMessage(c, "status must be active or inactive")
	}

	dev, err := h.developer.SetStatus(ctx, id, req.Status)
	if err != nil {
		return presenter.FromError(c, err)
	}
	return presenter.OK(c, dev)
}

type resetRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) handleResetCache(c echo.Context) error {
	ctx := c.Request().Context()

	var req resetRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	var ids []string
	if len(req.IDs) > 0 {
		ids = req.IDs
	}

	if err := h.developer.ResetCache(ctx, ids); err != nil {
		return presenter.FromError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type userRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handler) handleCreateUser(c echo.Context) error {
	ctx := c.Request().Context()

	var req userRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.Email == "" {
		return presenter.BadRequestMessage(c, "email is required")
	}

	user, err := h.user.Create(ctx, domain.User{Name: req.Name, Email: req.Email})
	if err != nil {
		return presenter.FromError(c, err)
	}
	return presenter.OK(c, user)
}

func (h *Handler) handleGetUser(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid user id")
	}

	user, err := h.user.Get(ctx, id)
	if err != nil {
		return presenter.FromError(c, err)
	}
	return presenter.OK(c, user)
}

func (h *Handler) handleDeleteUser(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid user id")
	}

	if err := h.user.Delete(ctx, id); err != nil {
		return presenter.FromError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type     string   `json:"type"`
	Prefixes []string `json:"prefixes"`
}

// handleRealtime streams cache invalidation events over a websocket so
// operators and sibling replicas can watch evictions as they happen.
func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	// The streamer and the read loop both send on these channels, so they
	// are never closed here; teardown is cancellation only, and every send
	// is paired with a ctx.Done case.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan edgestore.Event)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req realtimeRequest
			err := ws.ReadJSON(&req)
			if err != nil {
				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Prefixes:
				case <-ctx.Done():
					return
				}
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
