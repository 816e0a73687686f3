package marketplace

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/httpx"
	"github.com/sudo-init-do/skillhub/internal/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GET /tasks?category_id=&status=
func (h *Handler) ListTasks(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	f := TaskFilter{
		CategoryID: c.QueryParam("category_id"),
		Status:     c.QueryParam("status"),
	}
	tasks, err := h.svc.ListTasks(c.Request().Context(), id, f)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, tasks)
}

// POST /tasks
func (h *Handler) CreateTask(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	var req CreateTaskRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Error(c, err)
	}
	t, err := h.svc.CreateTask(c.Request().Context(), id, req)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// GET /tasks/:task_id
func (h *Handler) GetTask(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	taskID, err := taskParam(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	t, err := h.svc.GetTask(c.Request().Context(), id, taskID)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// PUT /tasks/:task_id
func (h *Handler) UpdateTask(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	taskID, err := taskParam(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	var req UpdateTaskRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Error(c, err)
	}
	t, err := h.svc.UpdateTask(c.Request().Context(), id, taskID, req)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// GET /tasks/:task_id/applications
func (h *Handler) ListApplications(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	taskID, err := taskParam(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	apps, err := h.svc.ListApplications(c.Request().Context(), id, taskID)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, apps)
}

// POST /tasks/:task_id/applications
func (h *Handler) ApplyToTask(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	taskID, err := taskParam(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	var req ApplyRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Error(c, err)
	}
	a, err := h.svc.ApplyToTask(c.Request().Context(), id, taskID, req)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// PUT /applications/:application_id
func (h *Handler) UpdateApplication(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	appID := c.Param("application_id")
	if _, err := uuid.Parse(appID); err != nil {
		return httpx.Error(c, apperr.NotFound("application not found"))
	}
	var req UpdateApplicationRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Error(c, err)
	}
	a, err := h.svc.UpdateApplication(c.Request().Context(), id, appID, req)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// GET /tasks/:task_id/messages
func (h *Handler) ListMessages(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	taskID, err := taskParam(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	msgs, err := h.svc.ListMessages(c.Request().Context(), id, taskID)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, msgs)
}

// POST /tasks/:task_id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	taskID, err := taskParam(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	var req SendMessageRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Error(c, err)
	}
	m, err := h.svc.SendMessage(c.Request().Context(), id, taskID, req)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// POST /tasks/:task_id/reviews
func (h *Handler) CreateReview(c echo.Context) error {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	taskID, err := taskParam(c)
	if err != nil {
		return httpx.Error(c, err)
	}
	var req CreateReviewRequest
	if err := httpx.Bind(c, &req); err != nil {
		return httpx.Error(c, err)
	}
	r, err := h.svc.CreateReview(c.Request().Context(), id, taskID, req)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// GET /profiles/:user_id/reviews?page=&limit=
// Public; malformed paging values fall back to the defaults.
func (h *Handler) ListReviews(c echo.Context) error {
	userID := c.Param("user_id")
	if _, err := uuid.Parse(userID); err != nil {
		return httpx.Error(c, apperr.NotFound("profile not found"))
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	out, err := h.svc.ListReviews(c.Request().Context(), userID, page, limit)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Ids are uuids; anything else cannot name a row.
func taskParam(c echo.Context) (string, error) {
	taskID := c.Param("task_id")
	if _, err := uuid.Parse(taskID); err != nil {
		return "", apperr.NotFound("task not found")
	}
	return taskID, nil
}
