package messaging

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/httpx"
	"github.com/sudo-init-do/skillhub/internal/middleware"
)

const (
	PresenceJoin  = "presence_join"
	PresenceLeave = "presence_leave"
)

// Authorizer decides whether an identity may follow a task thread.
type Authorizer interface {
	AuthorizeThread(ctx context.Context, id auth.Identity, taskID string) error
}

type Handler struct {
	hub      *Hub
	authz    Authorizer
	upgrader websocket.Upgrader
}

// NewHandler accepts upgrades from the given origins. "*" allows any origin;
// requests without an Origin header (non-browser clients) are always allowed.
func NewHandler(hub *Hub, authz Authorizer, allowedOrigins []string) *Handler {
	anyOrigin := slices.Contains(allowedOrigins, "*")
	return &Handler{
		hub:   hub,
		authz: authz,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || anyOrigin || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// GET /tasks/:task_id/ws
//
// Server push only: client frames are read and discarded to notice closes.
func (h *Handler) Subscribe(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	taskID := c.Param("task_id")
	if _, err := uuid.Parse(taskID); err != nil {
		return httpx.Error(c, apperr.NotFound("task not found"))
	}
	if err := h.authz.AuthorizeThread(c.Request().Context(), id, taskID); err != nil {
		return httpx.Error(c, err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the request.
		return nil
	}
	cl := newClient(ws)
	done := make(chan struct{})
	go cl.writeLoop(done)

	h.hub.register(taskID, cl)
	h.hub.Broadcast(taskID, PresenceJoin, echo.Map{"user_id": id.UserID})

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	close(done)
	h.hub.unregister(taskID, cl)
	_ = ws.Close()
	h.hub.Broadcast(taskID, PresenceLeave, echo.Map{"user_id": id.UserID})
	return nil
}
