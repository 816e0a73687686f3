// Package server assembles the echo application: middleware, routes and the
// handlers of every domain package.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/catalog"
	"github.com/sudo-init-do/skillhub/internal/httpx"
	"github.com/sudo-init-do/skillhub/internal/marketplace"
	"github.com/sudo-init-do/skillhub/internal/messaging"
	"github.com/sudo-init-do/skillhub/internal/middleware"
	"github.com/sudo-init-do/skillhub/internal/user"
)

const (
	apiName    = "SkillHub API"
	apiVersion = "1.0.0"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger      *slog.Logger
	Resolver    middleware.IdentityResolver
	Tasks       *marketplace.Service
	Profiles    *user.Service
	Categories  catalog.Store
	Hub         *messaging.Hub
	Store       Pinger
	CORSOrigins []string
	// PublicRate is the per-IP requests/second allowed on unauthenticated routes.
	PublicRate float64
}

func New(d Deps) *echo.Echo {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.PublicRate <= 0 {
		d.PublicRate = 20
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = httpx.NewValidator()
	e.HTTPErrorHandler = httpx.ErrorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(echomw.BodyLimit("1M"))

	tasks := marketplace.NewHandler(d.Tasks)
	profiles := user.NewHandler(d.Profiles)
	categories := catalog.NewHandler(d.Categories)
	threads := messaging.NewHandler(d.Hub, d.Tasks, origins)

	api := e.Group("/api")

	// Public routes, rate limited per client IP.
	public := api.Group("", echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(rate.Limit(d.PublicRate))))
	public.GET("", root)
	public.GET("/", root)
	public.GET("/health", health(d.Store))
	public.GET("/ready", ready(d.Store))
	public.GET("/service-categories", categories.ServiceCategories)
	public.GET("/categories", categories.Categories)
	public.GET("/profiles/:user_id", profiles.GetPublicProfile)
	public.GET("/profiles/:user_id/reviews", tasks.ListReviews)

	// Authenticated routes. Authentication is attached per route rather than
	// on the group, so unknown paths under /api still answer 404. Role gates
	// run before binding; the services check roles again.
	authn := middleware.Authenticate(d.Resolver)
	customers := middleware.RequireRoles(auth.RoleCustomer)
	taskers := middleware.RequireRoles(auth.RoleTasker)
	authed := api.Group("")
	authed.GET("/profile", profiles.GetOwnProfile, authn)
	authed.PUT("/profile", profiles.UpdateOwnProfile, authn)

	authed.GET("/tasks", tasks.ListTasks, authn)
	authed.POST("/tasks", tasks.CreateTask, authn, customers)
	authed.GET("/tasks/:task_id", tasks.GetTask, authn)
	authed.PUT("/tasks/:task_id", tasks.UpdateTask, authn)
	authed.GET("/tasks/:task_id/applications", tasks.ListApplications, authn)
	authed.POST("/tasks/:task_id/applications", tasks.ApplyToTask, authn, taskers)
	authed.PUT("/applications/:application_id", tasks.UpdateApplication, authn)
	authed.GET("/tasks/:task_id/messages", tasks.ListMessages, authn)
	authed.POST("/tasks/:task_id/messages", tasks.SendMessage, authn)
	authed.GET("/tasks/:task_id/ws", threads.Subscribe, authn)
	authed.POST("/tasks/:task_id/reviews", tasks.CreateReview, authn, customers)

	authed.GET("/bookings", tasks.ListBookings, authn)
	authed.POST("/bookings", tasks.CreateBooking, authn)

	return e
}

func root(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"message": apiName, "version": apiVersion})
}

// health always answers 200; the store state is reported, not enforced.
func health(store Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		status := "connected"
		if !storeUp(c.Request().Context(), store) {
			status = "disconnected"
		}
		return c.JSON(http.StatusOK, echo.Map{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"services":  echo.Map{"store": status},
		})
	}
}

// ready answers 503 until the store is reachable, for load balancer checks.
func ready(store Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !storeUp(c.Request().Context(), store) {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "store unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	}
}

func storeUp(ctx context.Context, store Pinger) bool {
	if store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return store.Ping(ctx) == nil
}
